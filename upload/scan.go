package upload

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"
)

// scanHeaderSize is the amount of data read for structural checks: magic
// bytes, polyglot detection and OLE2 VBA markers.
const scanHeaderSize = 8 * 1024

// Verdict is the outcome of an antivirus scan.
type Verdict struct {
	Infected  bool
	Signature string
}

// Scanner checks a file on disk for malware. An error means the scan
// itself failed; it says nothing about the file.
type Scanner interface {
	Scan(ctx context.Context, path string) (Verdict, error)
}

// NopScanner accepts every file. Used when scanning is disabled.
type NopScanner struct{}

func (NopScanner) Scan(context.Context, string) (Verdict, error) { return Verdict{}, nil }

// CommandScanner runs an external scanner with the file path appended to
// Command. Exit status 0 is clean and 1 is infected, as with clamscan and
// clamdscan; anything else is a scan failure.
type CommandScanner struct {
	Command []string
}

func (s *CommandScanner) Scan(ctx context.Context, path string) (Verdict, error) {
	if len(s.Command) == 0 {
		return Verdict{}, errors.New("scan: no command configured")
	}
	args := append(append([]string{}, s.Command[1:]...), path)
	cmd := exec.CommandContext(ctx, s.Command[0], args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	// Children of a killed scanner may hold the output pipes open.
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if err == nil {
		return Verdict{}, nil
	}
	if ctx.Err() != nil {
		return Verdict{}, fmt.Errorf("scan: %w", ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return Verdict{Infected: true, Signature: foundSignature(out.String())}, nil
	}
	return Verdict{}, fmt.Errorf("scan: %s: %w: %s", s.Command[0], err, strings.TrimSpace(out.String()))
}

// foundSignature picks the signature out of "<path>: <name> FOUND".
func foundSignature(output string) string {
	for line := range strings.SplitSeq(output, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutSuffix(line, " FOUND"); ok {
			if i := strings.LastIndex(rest, ": "); i >= 0 {
				return rest[i+2:]
			}
			return rest
		}
	}
	return ""
}

// ClamdScanner streams the file to clamd with the INSTREAM command, so no
// shared filesystem is needed. Protocol: zINSTREAM\0, then chunks each
// prefixed by a 4-byte big-endian length, then a zero-length chunk.
type ClamdScanner struct {
	SocketPath string
	// Network defaults to "unix".
	Network string
}

func (s *ClamdScanner) Scan(ctx context.Context, path string) (Verdict, error) {
	network := s.Network
	if network == "" {
		network = "unix"
	}
	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := d.DialContext(dialCtx, network, s.SocketPath)
	if err != nil {
		return Verdict{}, fmt.Errorf("connect clamd: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	f, err := os.Open(path)
	if err != nil {
		return Verdict{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	if _, err := conn.Write([]byte("zINSTREAM\x00")); err != nil {
		return Verdict{}, fmt.Errorf("send instream cmd: %w", err)
	}
	buf := make([]byte, 8192)
	lenBuf := make([]byte, 4)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			binary.BigEndian.PutUint32(lenBuf, uint32(n))
			if _, err := conn.Write(lenBuf); err != nil {
				return Verdict{}, fmt.Errorf("send chunk length: %w", err)
			}
			if _, err := conn.Write(buf[:n]); err != nil {
				return Verdict{}, fmt.Errorf("send chunk data: %w", err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return Verdict{}, fmt.Errorf("read file: %w", readErr)
		}
	}
	if _, err := conn.Write([]byte{0, 0, 0, 0}); err != nil {
		return Verdict{}, fmt.Errorf("send terminator: %w", err)
	}

	// Responses are short; cap at 4 KiB.
	resp, err := io.ReadAll(io.LimitReader(conn, 4096))
	if err != nil {
		return Verdict{}, fmt.Errorf("read response: %w", err)
	}
	line := strings.TrimRight(strings.TrimSpace(string(resp)), "\x00")
	// "stream: OK" or "stream: <name> FOUND"
	switch {
	case strings.HasSuffix(line, "OK"):
		return Verdict{}, nil
	case strings.HasSuffix(line, "FOUND"):
		return Verdict{Infected: true, Signature: foundSignature(line)}, nil
	default:
		return Verdict{}, fmt.Errorf("clamd: %s", line)
	}
}

// structuralWarning runs the header checks that need no antivirus: several
// executable or document magics in one file, or a legacy Office container
// carrying a VBA project. A non-empty result blocks the upload.
func structuralWarning(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for scan: %w", err)
	}
	defer f.Close()

	header := make([]byte, scanHeaderSize)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("read file for scan: %w", err)
	}
	header = header[:n]

	if w := checkPolyglot(header); w != "" {
		return w, nil
	}
	return checkMacro(header), nil
}

func checkPolyglot(header []byte) string {
	if len(header) < 16 {
		return ""
	}
	var detected []string
	if bytes.Contains(header[:min(1024, len(header))], []byte("%PDF")) {
		detected = append(detected, "PDF")
	}
	if bytes.HasPrefix(header, []byte("PK\x03\x04")) {
		detected = append(detected, "ZIP")
	}
	if bytes.HasPrefix(header, oleMagic) {
		detected = append(detected, "OLE2")
	}
	if bytes.HasPrefix(header, []byte("\x7fELF")) {
		detected = append(detected, "ELF")
	}
	if bytes.HasPrefix(header, []byte("MZ")) && bytes.Contains(header, []byte("PE\x00\x00")) {
		detected = append(detected, "PE")
	}
	if len(detected) > 1 {
		return "polyglot_suspect: " + strings.Join(detected, "+")
	}
	// An executable is never a spreadsheet.
	if len(detected) == 1 && (detected[0] == "ELF" || detected[0] == "PE") {
		return "executable: " + detected[0]
	}
	return ""
}

var oleMagic = []byte("\xd0\xcf\x11\xe0\xa1\xb1\x1a\xe1")

func checkMacro(header []byte) string {
	if !bytes.HasPrefix(header, oleMagic) {
		return ""
	}
	if bytes.Contains(header, []byte("_VBA_PROJECT")) || bytes.Contains(header, []byte("VBAProject")) {
		return "macro_detected: OLE2+VBA"
	}
	return ""
}
