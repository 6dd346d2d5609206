package middleware

import (
	"net/http"
)

const hstsValue = "max-age=31536000; includeSubDomains"

var apiSecurityHeaders = map[string]string{
	"X-Frame-Options":              "DENY",
	"X-Content-Type-Options":       "nosniff",
	"Referrer-Policy":              "no-referrer",
	"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'",
	"Cross-Origin-Resource-Policy": "same-site",
}

// SecurityHeaders sets the JSON API's response hardening headers.
//
// Responses can carry bearer tokens, so nothing under /v1/ is cacheable.
// HSTS is added when requireHTTPS is set and the connection is TLS.
func SecurityHeaders(requireHTTPS bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for name, value := range apiSecurityHeaders {
				h.Set(name, value)
			}
			if len(r.URL.Path) >= 4 && r.URL.Path[:4] == "/v1/" {
				h.Set("Cache-Control", "no-store")
			}
			if requireHTTPS && r.TLS != nil {
				h.Set("Strict-Transport-Security", hstsValue)
			}
			next.ServeHTTP(w, r)
		})
	}
}
