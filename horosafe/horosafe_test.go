package horosafe

import (
	"bytes"
	"strings"
	"testing"
)

func TestValidateSecret(t *testing.T) {
	if err := ValidateSecret([]byte("short")); err == nil {
		t.Fatal("expected error for short secret")
	}
	if err := ValidateSecret(bytes.Repeat([]byte("a"), MinSecretLen)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSafePath(t *testing.T) {
	tests := []struct {
		base, input string
		wantErr     bool
	}{
		{"/data/chunks", "abc/def", false},
		{"/data/chunks", "../etc/passwd", true},
		{"/data/chunks", "abc/../def", true},
		{"/data/chunks", "abc/../../outside", true},
		{"/data/chunks", "normal-id_123", false},
	}
	for _, tt := range tests {
		_, err := SafePath(tt.base, tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("SafePath(%q, %q) error=%v, wantErr=%v", tt.base, tt.input, err, tt.wantErr)
		}
	}
}

func TestValidateServiceURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://www.performance.service.gov.uk", false},
		{"http://10.0.0.1:3039", false}, // internal services are allowed
		{"ftp://evil.com/data", true},
		{"javascript:alert(1)", true},
		{"http:///nohost", true},
		{"://broken", true},
	}
	for _, tt := range tests {
		err := ValidateServiceURL(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateServiceURL(%q) error=%v, wantErr=%v", tt.url, err, tt.wantErr)
		}
	}
}

func TestValidateIdentifier(t *testing.T) {
	if err := ValidateIdentifier("valid-id_123.txt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateIdentifier("../etc/passwd"); err == nil {
		t.Fatal("expected error for path traversal chars")
	}
	if err := ValidateIdentifier(""); err == nil {
		t.Fatal("expected error for empty identifier")
	}
	if err := ValidateIdentifier("has spaces"); err == nil {
		t.Fatal("expected error for spaces")
	}
	long := strings.Repeat("a", 257)
	if err := ValidateIdentifier(long); err == nil {
		t.Fatal("expected error for long identifier")
	}
}

func TestLimitedReadAll(t *testing.T) {
	data := strings.Repeat("x", 100)
	got, err := LimitedReadAll(strings.NewReader(data), 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("expected 100 bytes, got %d", len(got))
	}

	_, err = LimitedReadAll(strings.NewReader(data), 50)
	if err == nil {
		t.Fatal("expected error for oversized read")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"data.csv", "data.csv"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\report 2015.xlsx`, "report_2015.xlsx"},
		{".hidden", "hidden"},
		{"", "upload"},
		{"..", "upload"},
		{"données.ods", "donn_es.ods"},
		{"a..b...csv", "a.b.csv"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	long := strings.Repeat("a", 300) + ".csv"
	if got := SanitizeFilename(long); len(got) != maxFilenameLen || !strings.HasSuffix(got, ".csv") {
		t.Errorf("long name: got %q (len %d)", got, len(got))
	}
}
