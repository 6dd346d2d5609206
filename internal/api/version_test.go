package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionHandler(t *testing.T) {
	tests := []struct {
		name string
		info BuildInfo
		want BuildInfo
	}{
		{
			name: "stamped build",
			info: BuildInfo{Version: "0.3.0", GitCommit: "9f2c1e7", BuildDate: "2026-10-01T08:00:00Z"},
			want: BuildInfo{Version: "0.3.0", GitCommit: "9f2c1e7", BuildDate: "2026-10-01T08:00:00Z"},
		},
		{
			name: "unstamped build",
			want: BuildInfo{Version: "dev", GitCommit: "unknown", BuildDate: "unknown"},
		},
		{
			name: "commit missing",
			info: BuildInfo{Version: "0.3.0", BuildDate: "2026-10-01T08:00:00Z"},
			want: BuildInfo{Version: "0.3.0", GitCommit: "unknown", BuildDate: "2026-10-01T08:00:00Z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			VersionHandler(tt.info).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp versionResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "tinychat", resp.Service)
			assert.Equal(t, tt.want, resp.BuildInfo)
			assert.Equal(t, runtime.Version(), resp.GoVersion)
		})
	}
}

func TestVersionResponseIsFlat(t *testing.T) {
	rec := httptest.NewRecorder()
	VersionHandler(BuildInfo{Version: "1.0.0"}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	var raw map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, "1.0.0", raw["version"])
	assert.Contains(t, raw, "git_commit")
	assert.Contains(t, raw, "build_date")
}
