// Package problem writes RFC 9457 problem+json error responses.
package problem

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

const contentType = "application/problem+json"

const typeBase = "https://tinychat.dev/problems/"

// Problem type URIs shared by handlers and middleware.
const (
	TypeValidation       = typeBase + "validation-error"
	TypeUnauthorized     = typeBase + "unauthorized"
	TypeForbidden        = typeBase + "forbidden"
	TypeNotFound         = typeBase + "not-found"
	TypeConflict         = typeBase + "conflict"
	TypeMethodNotAllowed = typeBase + "method-not-allowed"
	TypeTooLarge         = typeBase + "payload-too-large"
	TypeRateLimited      = typeBase + "rate-limited"
	TypeUnavailable      = typeBase + "unavailable"
	TypeServerError      = typeBase + "server-error"
)

type ProblemDetails struct {
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Status    int            `json:"status"`
	Detail    string         `json:"detail,omitempty"`
	Instance  string         `json:"instance,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Errors    map[string]any `json:"errors,omitempty"`
}

type Option func(*ProblemDetails)

func WithDetail(detail string) Option {
	return func(p *ProblemDetails) { p.Detail = detail }
}

func WithErrors(errs map[string]any) Option {
	return func(p *ProblemDetails) { p.Errors = errs }
}

// Write sends a problem response for r. Without WithDetail, err's message
// becomes the detail only in development and test; elsewhere the status
// text stands in. The request id already set on w by the correlation
// middleware is echoed in the body. err is logged at error for 5xx and
// warn otherwise.
func Write(w http.ResponseWriter, r *http.Request, status int, typ, title string, err error, env string, opts ...Option) {
	p := ProblemDetails{
		Type:      typ,
		Title:     title,
		Status:    status,
		Instance:  r.URL.Path,
		RequestID: w.Header().Get("X-Request-ID"),
	}
	for _, opt := range opts {
		opt(&p)
	}
	if p.Detail == "" && err != nil {
		p.Detail = http.StatusText(status)
		if env == "development" || env == "test" {
			p.Detail = err.Error()
		}
	}

	if err != nil {
		level := zerolog.WarnLevel
		if status >= http.StatusInternalServerError {
			level = zerolog.ErrorLevel
		}
		zerolog.Ctx(r.Context()).WithLevel(level).
			Err(err).
			Int("status", status).
			Str("type", typ).
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Msg(title)
	}

	WriteProblem(w, p)
}

func WriteProblem(w http.ResponseWriter, p ProblemDetails) {
	payload, err := json.Marshal(p)
	if err != nil {
		p = ProblemDetails{Type: TypeServerError, Title: http.StatusText(http.StatusInternalServerError), Status: http.StatusInternalServerError}
		payload, _ = json.Marshal(p)
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(p.Status)
	_, _ = w.Write(payload)
}

// Unauthorized writes the one 401 body every authentication failure gets.
// It carries no detail, instance, or request id, so responses cannot be
// told apart.
func Unauthorized(w http.ResponseWriter, r *http.Request) {
	WriteProblem(w, ProblemDetails{
		Type:   TypeUnauthorized,
		Title:  "Unauthorized",
		Status: http.StatusUnauthorized,
	})
}
