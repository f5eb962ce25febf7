// Package shield provides the HTTP middleware stack of the admin service:
// security headers, body limits, request tracing, flash messages, and HEAD
// method handling.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultBOStack(shield.StackConfig{MaxUploadBody: 2 << 20}) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"net/http"
)

type contextKey string

const (
	// LoggerKey is the context key for the per-request structured logger.
	LoggerKey contextKey = "shield_logger"

	// FlashKey is the context key for flash messages.
	FlashKey contextKey = "shield_flash"
)

// FlashMessage is a one-time notification shown on the next page view.
type FlashMessage struct {
	Type    string // "success" or "error"
	Message string
}

// GetFlash retrieves the flash message from the request context.
func GetFlash(ctx context.Context) *FlashMessage {
	v, _ := ctx.Value(FlashKey).(*FlashMessage)
	return v
}

// StackConfig sizes the body limits of DefaultBOStack.
type StackConfig struct {
	// MaxFormBody bounds url-encoded forms (default 64 KiB).
	MaxFormBody int64
	// MaxUploadBody bounds multipart requests (default 2 MiB). It must
	// exceed the largest accepted upload plus multipart framing.
	MaxUploadBody int64
}

func (c *StackConfig) defaults() {
	if c.MaxFormBody <= 0 {
		c.MaxFormBody = 64 * 1024
	}
	if c.MaxUploadBody <= 0 {
		c.MaxUploadBody = 2 << 20
	}
}

// DefaultBOStack returns the middleware stack for the back-office admin.
// Order: HeadToGet → SecurityHeaders → MaxBody → TraceID → Flash.
// No rate limiting: the admin is only reachable by signed-in staff.
func DefaultBOStack(cfg StackConfig) []func(http.Handler) http.Handler {
	cfg.defaults()
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(cfg.MaxFormBody, cfg.MaxUploadBody),
		TraceID,
		Flash,
	}
}
