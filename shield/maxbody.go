package shield

import (
	"mime"
	"net/http"
)

// MaxBody returns middleware that limits request bodies by content type:
// url-encoded forms to formMax, multipart uploads to uploadMax. Other
// content types are passed through.
func MaxBody(formMax, uploadMax int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
			switch mt {
			case "application/x-www-form-urlencoded":
				r.Body = http.MaxBytesReader(w, r.Body, formMax)
			case "multipart/form-data":
				r.Body = http.MaxBytesReader(w, r.Body, uploadMax)
			}
			next.ServeHTTP(w, r)
		})
	}
}
