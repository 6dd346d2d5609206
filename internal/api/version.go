package api

import (
	"encoding/json"
	"net/http"
	"runtime"
)

// BuildInfo is the build metadata stamped into the binary with -ldflags.
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
}

func (b BuildInfo) withDefaults() BuildInfo {
	if b.Version == "" {
		b.Version = "dev"
	}
	if b.GitCommit == "" {
		b.GitCommit = "unknown"
	}
	if b.BuildDate == "" {
		b.BuildDate = "unknown"
	}
	return b
}

type versionResponse struct {
	Service string `json:"service"`
	BuildInfo
	GoVersion string `json:"go_version"`
}

// VersionHandler serves the build metadata as JSON. The body is computed
// once since none of it changes while the process runs.
func VersionHandler(info BuildInfo) http.Handler {
	payload, _ := json.Marshal(versionResponse{
		Service:   "tinychat",
		BuildInfo: info.withDefaults(),
		GoVersion: runtime.Version(),
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	})
}
