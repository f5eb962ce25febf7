package shield

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Flash reads the "flash" cookie, parses the type prefix ("success:" or "error:"),
// stores the FlashMessage in the context under FlashKey, and clears the cookie.
func Flash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("flash")
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		http.SetCookie(w, &http.Cookie{Name: "flash", MaxAge: -1, Path: "/"})

		raw, _ := url.QueryUnescape(cookie.Value)
		flash := &FlashMessage{Type: "error", Message: raw}
		if after, ok := strings.CutPrefix(raw, "success:"); ok {
			flash.Type = "success"
			flash.Message = after
		} else if after, ok := strings.CutPrefix(raw, "error:"); ok {
			flash.Message = after
		}

		ctx := context.WithValue(r.Context(), FlashKey, flash)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetFlash sets a flash cookie with the given type and message, read back
// by Flash on the redirect target. The cookie is HttpOnly and SameSite=Lax
// with a 10-second TTL; long messages are cut to fit a cookie.
func SetFlash(w http.ResponseWriter, flashType, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "flash",
		Value:    url.QueryEscape(truncateFlash(flashType + ":" + message)),
		Path:     "/",
		MaxAge:   10,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// maxFlashLen keeps the escaped cookie under the 4 KiB browser limit.
const maxFlashLen = 1024

// SetFlashList joins several problems into one error flash.
func SetFlashList(w http.ResponseWriter, flashType string, messages []string) {
	SetFlash(w, flashType, strings.Join(messages, "\n"))
}

func truncateFlash(s string) string {
	if len(s) <= maxFlashLen {
		return s
	}
	s = s[:maxFlashLen]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s + "…"
}
