// Package idgen provides pluggable ID generation for the admin service.
//
// The ingester and the upload store accept a Generator, so tests can pin
// IDs while production uses time-sortable UUIDv7 values.
package idgen

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// NanoID returns a Generator that produces base-36 IDs of the given length.
// Short and URL-safe; used for OAuth state values.
func NanoID(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i := range buf {
			buf[i] = alphabet[int(buf[i])%len(alphabet)]
		}
		return string(buf)
	}
}

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7. Prefixed variants compose on top.
var Default Generator = UUIDv7()

// Upload and Request name upload history rows and per-request resources.
var (
	Upload  = Prefixed("upl_", Default)
	Request = Prefixed("req_", Default)
)

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Parse validates a UUID, optionally behind a "xxx_" prefix, and returns it
// in canonical form with the prefix kept.
func Parse(s string) (string, error) {
	prefix := ""
	if i := strings.IndexByte(s, '_'); i >= 0 {
		prefix, s = s[:i+1], s[i+1:]
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid UUID: %w", err)
	}
	return prefix + u.String(), nil
}
