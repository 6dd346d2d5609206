package audit

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinychat/server/internal/api/middleware"
	"github.com/tinychat/server/internal/storage"
)

func decodeEntries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLoggerLog(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf))

	logger.Log(Entry{
		Action:       ActionGuildDelete,
		ActorID:      "915655285018624",
		ResourceType: "guild",
		ResourceID:   "915655285018625",
		IPAddress:    "192.0.2.1",
		Status:       "success",
		HTTPStatus:   http.StatusNoContent,
	})

	entries := decodeEntries(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "info", entries[0]["level"])
	assert.Equal(t, "audit", entries[0]["component"])
	assert.Equal(t, ActionGuildDelete, entries[0]["action"])
	assert.Equal(t, "915655285018625", entries[0]["resource_id"])
	assert.NotEmpty(t, entries[0]["at"])
}

func TestLoggerLogFailureIsWarn(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(zerolog.New(&buf)).Log(Entry{Action: ActionAccountDelete, Status: "failure"})

	entries := decodeEntries(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "warn", entries[0]["level"])
}

func TestMiddlewareRecordsActorAndResource(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf))

	mux := http.NewServeMux()
	mux.Handle("DELETE /v1/guilds/{id}", logger.Middleware(ActionGuildDelete, "guild", "id")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})))

	req := httptest.NewRequest(http.MethodDelete, "/v1/guilds/42", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	req = req.WithContext(middleware.ContextWithUser(req.Context(), &storage.User{ID: "915655285018624"}))
	mux.ServeHTTP(httptest.NewRecorder(), req)

	entries := decodeEntries(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "915655285018624", entries[0]["actor_id"])
	assert.Equal(t, "42", entries[0]["resource_id"])
	assert.Equal(t, "192.0.2.7", entries[0]["ip"])
	assert.Equal(t, "failure", entries[0]["status"])
	assert.EqualValues(t, http.StatusForbidden, entries[0]["http_status"])
}

func TestMiddlewareDefaultsResourceToActor(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf))

	handler := logger.Middleware(ActionAccountUpdate, "user", "")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		}))

	req := httptest.NewRequest(http.MethodPatch, "/v1/users/@me", nil)
	req = req.WithContext(middleware.ContextWithUser(req.Context(), &storage.User{ID: "915655285018624"}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := decodeEntries(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "915655285018624", entries[0]["resource_id"])
	assert.Equal(t, "success", entries[0]["status"])
	assert.EqualValues(t, http.StatusOK, entries[0]["http_status"])
}
