package spreadsheet

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"csv", []byte("a,b\n1,2\n"), FormatCSV},
		{"empty", nil, FormatCSV},
		{"xls", readTestdata(t, "formulas.xls"), FormatXLS},
		{"xlsx", buildXLSX(t, false), FormatXLSX},
		{"ods", buildODS(t, odsSample), FormatODS},
		{"zip without content", buildODS(t, ""), FormatCSV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bytes.NewReader(tt.data)
			// Start mid-stream: detection must rewind before and after.
			r.Seek(int64(len(tt.data)/2), io.SeekStart)
			if got := Detect(r); got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
			if pos, _ := r.Seek(0, io.SeekCurrent); pos != 0 {
				t.Fatalf("stream left at %d", pos)
			}
		})
	}
}

func TestDetect_Predicates(t *testing.T) {
	xlsx := bytes.NewReader(buildXLSX(t, false))
	if !IsOpenXML(xlsx) || !IsBinarySpreadsheet(xlsx) || IsLegacyBinary(xlsx) || IsOpenDocument(xlsx) {
		t.Error("xlsx predicates")
	}
	ods := bytes.NewReader(buildODS(t, odsSample))
	if !IsOpenDocument(ods) || IsBinarySpreadsheet(ods) {
		t.Error("ods predicates")
	}
	csv := strings.NewReader("a,b\n")
	if IsBinarySpreadsheet(csv) || IsOpenDocument(csv) {
		t.Error("csv predicates")
	}
}

func TestParser_ParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.tsv")
	if err := os.WriteFile(path, []byte("a\tb\n1\t2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	p := New(Config{})

	res, err := p.ParseFile(t.Context(), path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Format != FormatTSV || res.Records[0]["b"] != IntValue(2) {
		t.Fatalf("result: %+v", res)
	}

	// The caller's filename wins over the temp path.
	res, err = p.ParseFile(t.Context(), path, Options{Filename: "original.csv"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Format != FormatCSV || len(res.Records[0]) != 1 {
		t.Fatalf("result: %+v", res)
	}

	if f, err := p.DetectFile(path); err != nil || f != FormatCSV {
		t.Fatalf("DetectFile: %s %v", f, err)
	}
	if _, err := p.DetectFile(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParser_ParseFileLimits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.csv")
	if err := os.WriteFile(path, []byte("a\n"+strings.Repeat("1\n", 100)), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(Config{MaxFileSize: 64}).ParseFile(t.Context(), path, Options{}); err == nil {
		t.Fatal("expected size error")
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := New(Config{}).ParseFile(ctx, path, Options{}); err == nil {
		t.Fatal("expected context error")
	}
}

func TestSupportedFormats(t *testing.T) {
	got := SupportedFormats()
	if len(got) != 5 || got[0] != FormatXLS || got[3] != FormatCSV {
		t.Fatalf("got %v", got)
	}
}
