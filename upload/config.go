package upload

import (
	"fmt"
	"mime"
	"os"
	"slices"
	"strings"
	"time"
)

// Config holds the upload validation and scanning settings.
type Config struct {
	// MaxBytes is an exclusive bound: a file of MaxBytes bytes or more is
	// rejected.
	MaxBytes            int64         `yaml:"max_bytes"`
	AllowedContentTypes []string      `yaml:"allowed_content_types"`
	TempDir             string        `yaml:"temp_dir"`
	Scanner             ScannerConfig `yaml:"scanner"`
	// ScanTimeout bounds one antivirus scan. 0 disables the bound.
	ScanTimeout time.Duration `yaml:"scan_timeout"`
}

// ScannerConfig selects the antivirus backend.
type ScannerConfig struct {
	Mode       string   `yaml:"mode"`        // command | clamd | none
	Command    []string `yaml:"command"`     // argv; the file path is appended
	SocketPath string   `yaml:"socket_path"` // clamd unix socket
}

const (
	ScannerCommand = "command"
	ScannerClamd   = "clamd"
	ScannerNone    = "none"
)

// DefaultContentTypes is the upload allow-list: plain text, CSV, TSV and
// the three spreadsheet containers.
var DefaultContentTypes = []string{
	"text/plain",
	"text/csv",
	"text/tab-separated-values",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.oasis.opendocument.spreadsheet",
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		MaxBytes:            1_000_000,
		AllowedContentTypes: slices.Clone(DefaultContentTypes),
		TempDir:             os.TempDir(),
		Scanner: ScannerConfig{
			Mode:       ScannerCommand,
			Command:    []string{"clamdscan", "--no-summary", "--fdpass"},
			SocketPath: "/var/run/clamav/clamd.ctl",
		},
		ScanTimeout: 2 * time.Minute,
	}
}

// defaults fills zero fields of a hand-built Config. ScanTimeout is left
// alone: zero means unbounded.
func (c *Config) defaults() {
	def := DefaultConfig()
	if c.MaxBytes <= 0 {
		c.MaxBytes = def.MaxBytes
	}
	if len(c.AllowedContentTypes) == 0 {
		c.AllowedContentTypes = def.AllowedContentTypes
	}
	if c.TempDir == "" {
		c.TempDir = def.TempDir
	}
	if c.Scanner.Mode == "" {
		c.Scanner.Mode = ScannerNone
	}
	if c.Scanner.Mode == ScannerCommand && len(c.Scanner.Command) == 0 {
		c.Scanner.Command = def.Scanner.Command
	}
	if c.Scanner.Mode == ScannerClamd && c.Scanner.SocketPath == "" {
		c.Scanner.SocketPath = def.Scanner.SocketPath
	}
}

// Validate checks that values are sane.
func (c *Config) Validate() error {
	if c.MaxBytes <= 0 {
		return fmt.Errorf("upload: max_bytes must be > 0")
	}
	if c.ScanTimeout < 0 {
		return fmt.Errorf("upload: scan_timeout must be >= 0")
	}
	for _, ct := range c.AllowedContentTypes {
		if _, _, err := mime.ParseMediaType(ct); err != nil {
			return fmt.Errorf("upload: invalid content type %q: %w", ct, err)
		}
	}
	switch c.Scanner.Mode {
	case ScannerCommand:
		if len(c.Scanner.Command) == 0 {
			return fmt.Errorf("upload: scanner.command is required in command mode")
		}
	case ScannerClamd:
		if c.Scanner.SocketPath == "" {
			return fmt.Errorf("upload: scanner.socket_path is required in clamd mode")
		}
	case ScannerNone, "":
	default:
		return fmt.Errorf("upload: unsupported scanner.mode %q (use command, clamd or none)", c.Scanner.Mode)
	}
	return nil
}

// allowed reports whether contentType, parameters ignored, is in the
// allow-list.
func (c *Config) allowed(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(c.AllowedContentTypes, func(a string) bool {
		return strings.EqualFold(a, mt)
	})
}

// NewScanner builds the Scanner selected by the config.
func (c *Config) NewScanner() Scanner {
	switch c.Scanner.Mode {
	case ScannerCommand:
		return &CommandScanner{Command: c.Scanner.Command}
	case ScannerClamd:
		return &ClamdScanner{SocketPath: c.Scanner.SocketPath}
	default:
		return NopScanner{}
	}
}
