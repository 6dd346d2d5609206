package middleware

import (
	"net/http"

	"github.com/tinychat/server/internal/api/problem"
)

// DefaultMaxBodySize is 1MB, enough for any JSON body the API accepts.
const DefaultMaxBodySize int64 = 1 << 20

// RequestSize caps request bodies at maxBytes (DefaultMaxBodySize when
// maxBytes is not positive). A declared Content-Length over the cap is
// refused with 413 before the handler runs; chunked bodies are wrapped in
// http.MaxBytesReader so decoding fails once the cap is crossed.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypeTooLarge, "Request body too large", nil, "")
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
