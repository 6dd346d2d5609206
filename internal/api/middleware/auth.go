package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/tinychat/server/internal/api/problem"
	"github.com/tinychat/server/internal/auth"
	"github.com/tinychat/server/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const userKey contextKey = "user"

// Authenticator resolves an Authorization header to the caller.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) (*storage.User, error)
}

// RequireAuth rejects requests whose bearer token does not verify. Every
// rejection gets the same 401 body; a failing credential store is a 503.
func RequireAuth(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authenticator.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				if errors.Is(err, auth.ErrUnavailable) {
					problem.Write(w, r, http.StatusServiceUnavailable, problem.TypeUnavailable, "Service Unavailable", err, "")
					return
				}
				problem.Unauthorized(w, r)
				return
			}

			trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("user.id", user.ID))
			logger := LoggerFromContext(r.Context()).With().Str("user_id", user.ID).Logger()
			ctx := logger.WithContext(ContextWithUser(r.Context(), user))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ContextWithUser stores the authenticated caller on ctx.
func ContextWithUser(ctx context.Context, user *storage.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the caller stored by RequireAuth.
func UserFromContext(ctx context.Context) (*storage.User, bool) {
	user, ok := ctx.Value(userKey).(*storage.User)
	return user, ok && user != nil
}
