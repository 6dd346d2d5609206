// Package audit records security-relevant account and guild changes as
// structured log entries, separate from request logs.
package audit

import (
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/tinychat/server/internal/api/middleware"
)

// Actions recorded by the router.
const (
	ActionAccountUpdate = "account.update"
	ActionAccountDelete = "account.delete"
	ActionGuildUpdate   = "guild.update"
	ActionGuildDelete   = "guild.delete"
	ActionInviteJoin    = "invite.join"
)

// Entry represents a single audit log entry with structured fields
type Entry struct {
	Timestamp    time.Time
	Action       string
	ActorID      string
	ResourceType string
	ResourceID   string
	IPAddress    string
	Status       string // "success" or "failure"
	HTTPStatus   int
}

type Logger struct {
	logger zerolog.Logger
}

func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger.With().Str("component", "audit").Logger()}
}

// Log writes entry. Failures are logged at warn so they stand out.
func (l *Logger) Log(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	event := l.logger.Info()
	if entry.Status != "success" {
		event = l.logger.Warn()
	}
	event.
		Time("at", entry.Timestamp).
		Str("action", entry.Action).
		Str("actor_id", entry.ActorID).
		Str("resource_type", entry.ResourceType).
		Str("resource_id", entry.ResourceID).
		Str("ip", entry.IPAddress).
		Str("status", entry.Status).
		Int("http_status", entry.HTTPStatus).
		Msg("audit")
}

// Middleware records one entry per request once the wrapped handler has
// answered. It must run inside RequireAuth so the actor is known; the
// resource id is read from the {pathParam} wildcard, or is the actor itself
// when pathParam is empty.
func (l *Logger) Middleware(action, resourceType, pathParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			entry := Entry{
				Action:       action,
				ResourceType: resourceType,
				IPAddress:    clientIP(r),
				HTTPStatus:   rec.status,
				Status:       "success",
			}
			if rec.status >= http.StatusBadRequest {
				entry.Status = "failure"
			}
			if user, ok := middleware.UserFromContext(r.Context()); ok {
				entry.ActorID = user.ID
				entry.ResourceID = user.ID
			}
			if pathParam != "" {
				entry.ResourceID = r.PathValue(pathParam)
			}
			l.Log(entry)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

// clientIP is the peer address; proxy headers are left to the rate limiter,
// which knows the trusted proxy list.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
