package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tinychat/server/internal/auth"
	"github.com/tinychat/server/internal/storage"
)

type stubAuthenticator struct {
	user *storage.User
	err  error
}

func (s stubAuthenticator) Authenticate(context.Context, string) (*storage.User, error) {
	return s.user, s.err
}

func TestRequireAuthPassesUser(t *testing.T) {
	user := &storage.User{ID: "915655285018624", Username: "tea"}
	var seen *storage.User
	handler := RequireAuth(stubAuthenticator{user: user})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := UserFromContext(r.Context())
		require.True(t, ok)
		seen = got
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/users/@me", nil)
	req.Header.Set("Authorization", "Bearer token")
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, user, seen)
}

func TestRequireAuthRejectsWithGenericBody(t *testing.T) {
	handler := RequireAuth(stubAuthenticator{err: auth.ErrUnauthorized})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	var bodies []string
	for _, header := range []string{"", "Bearer", "Bearer garbage", "Basic abc"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/users/@me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		bodies = append(bodies, rec.Body.String())
	}
	for _, body := range bodies[1:] {
		require.Equal(t, bodies[0], body)
	}
}

func TestRequireAuthStoreFailureIs503(t *testing.T) {
	err := errors.Join(auth.ErrUnavailable, errors.New("connection refused"))
	handler := RequireAuth(stubAuthenticator{err: err})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/users/@me", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotContains(t, rec.Body.String(), "connection refused")
}

func TestUserFromContextMissing(t *testing.T) {
	_, ok := UserFromContext(context.Background())
	require.False(t, ok)

	_, ok = UserFromContext(ContextWithUser(context.Background(), nil))
	require.False(t, ok)
}
