package cmd

import (
	"encoding/json"
	"runtime"
	"strings"
	"testing"

	"github.com/tinychat/server/internal/api"
)

func withBuildInfo(t *testing.T, version, commit, date string) {
	t.Helper()
	origVersion, origCommit, origDate := Version, GitCommit, BuildDate
	t.Cleanup(func() {
		Version, GitCommit, BuildDate = origVersion, origCommit, origDate
	})
	Version, GitCommit, BuildDate = version, commit, date
}

func TestVersionCommand(t *testing.T) {
	withBuildInfo(t, "1.0.0", "abc123", "2026-10-01T12:00:00Z")

	output, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	for _, expected := range []string{
		"tinychat server 1.0.0",
		"commit:   abc123",
		"built:    2026-10-01T12:00:00Z",
		runtime.Version(),
	} {
		if !strings.Contains(output, expected) {
			t.Errorf("expected output to contain %q, got:\n%s", expected, output)
		}
	}
}

// version must not load config or dial anything.
func TestVersionCommandJSON(t *testing.T) {
	withBuildInfo(t, "dev", "unknown", "unknown")
	t.Setenv("DATABASE_URL", "")

	output, err := execute(t, "version", "--json")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	var info api.BuildInfo
	if err := json.Unmarshal([]byte(output), &info); err != nil {
		t.Fatalf("decode output: %v\n%s", err, output)
	}
	if info != (api.BuildInfo{Version: "dev", GitCommit: "unknown", BuildDate: "unknown"}) {
		t.Fatalf("unexpected build info %+v", info)
	}
}

func TestVersionCommandRejectsArgs(t *testing.T) {
	if _, err := execute(t, "version", "extra"); err == nil {
		t.Fatal("expected error for extra argument")
	}
}
