package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/tinychat/server/internal/metrics"
)

// HealthCheck represents the health status of the server
type HealthCheck struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	GitCommit string                 `json:"git_commit"`
	Slot      string                 `json:"slot,omitempty"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// CheckResult represents the result of a single health check
type CheckResult struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	LatencyMs int64                  `json:"latency_ms,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Pinger is anything that can report its own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// MigrationStatus reports the applied schema version.
type MigrationStatus func(ctx context.Context) (version uint, dirty bool, err error)

// HealthChecker aggregates dependency checks for /health and /readyz.
type HealthChecker struct {
	database   Pinger
	pubsub     Pinger
	jobs       Pinger
	migrations MigrationStatus
	version    string
	gitCommit  string
	timeout    time.Duration
}

type HealthOption func(*HealthChecker)

// WithJobQueue adds the background job queue check. Without it the check
// reports warn.
func WithJobQueue(p Pinger) HealthOption {
	return func(h *HealthChecker) { h.jobs = p }
}

func WithMigrations(status MigrationStatus) HealthOption {
	return func(h *HealthChecker) { h.migrations = status }
}

// NewHealthChecker creates a new health checker with the given dependencies
func NewHealthChecker(database, pubsub Pinger, version, gitCommit string, opts ...HealthOption) *HealthChecker {
	h := &HealthChecker{
		database:  database,
		pubsub:    pubsub,
		version:   version,
		gitCommit: gitCommit,
		timeout:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health returns a comprehensive health check handler
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
			return
		default:
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := h.runChecks(ctx)
		overallStatus, statusCode := summarize(checks)

		// Deployment slot identifier for blue-green deployments
		slot := os.Getenv("DEPLOYMENT_SLOT")
		if slot == "" {
			slot = os.Getenv("SLOT")
		}

		writeJSON(w, statusCode, HealthCheck{
			Status:    overallStatus,
			Version:   h.version,
			GitCommit: h.gitCommit,
			Slot:      slot,
			Checks:    checks,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// Readyz answers 200 only when the database and message bus respond.
func (h *HealthChecker) Readyz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if h.pingCheck(ctx, h.database, "database").Status == "fail" ||
			h.pingCheck(ctx, h.pubsub, "pubsub").Status == "fail" {
			respondHealth(w, http.StatusServiceUnavailable, "not_ready")
			return
		}
		respondHealth(w, http.StatusOK, "ready")
	})
}

func (h *HealthChecker) runChecks(ctx context.Context) map[string]CheckResult {
	checks := map[string]CheckResult{
		"database":   h.pingCheck(ctx, h.database, "database"),
		"pubsub":     h.pingCheck(ctx, h.pubsub, "pubsub"),
		"migrations": h.checkMigrations(ctx),
	}
	if h.jobs == nil {
		checks["job_queue"] = CheckResult{Status: "warn", Message: "Job queue not running"}
	} else {
		checks["job_queue"] = h.pingCheck(ctx, h.jobs, "job queue")
	}
	for name, result := range checks {
		value := 0.0
		if result.Status != "fail" {
			value = 1
		}
		metrics.HealthCheckStatus.WithLabelValues(name).Set(value)
	}
	return checks
}

func summarize(checks map[string]CheckResult) (string, int) {
	status := "healthy"
	for _, check := range checks {
		switch check.Status {
		case "fail":
			return "unhealthy", http.StatusServiceUnavailable
		case "warn":
			status = "degraded"
		}
	}
	return status, http.StatusOK
}

func (h *HealthChecker) pingCheck(ctx context.Context, p Pinger, name string) CheckResult {
	if p == nil {
		return CheckResult{Status: "fail", Message: name + " not initialized"}
	}

	// Per-check timeout so one slow dependency cannot starve the rest.
	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(checkCtx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		message := name + " unreachable"
		if errors.Is(err, context.DeadlineExceeded) {
			message = fmt.Sprintf("%s timed out after %s", name, h.timeout)
		}
		return CheckResult{
			Status:    "fail",
			Message:   message,
			LatencyMs: latency,
			Details:   map[string]interface{}{"error": err.Error()},
		}
	}
	return CheckResult{Status: "pass", Message: name + " reachable", LatencyMs: latency}
}

func (h *HealthChecker) checkMigrations(ctx context.Context) CheckResult {
	if h.migrations == nil {
		return CheckResult{Status: "warn", Message: "Migration status unavailable"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	version, dirty, err := h.migrations(checkCtx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return CheckResult{
			Status:    "fail",
			Message:   "Failed to read migration version",
			LatencyMs: latency,
			Details: map[string]interface{}{
				"error":       err.Error(),
				"remediation": "Run: server migrate up",
			},
		}
	}
	if dirty {
		return CheckResult{
			Status:    "fail",
			Message:   "Database in dirty migration state - manual intervention required",
			LatencyMs: latency,
			Details: map[string]interface{}{
				"version": version,
				"dirty":   true,
				"action":  "Do NOT run new migrations until this is resolved",
			},
		}
	}
	return CheckResult{
		Status:    "pass",
		Message:   fmt.Sprintf("Migrations applied successfully (version %d)", version),
		LatencyMs: latency,
		Details:   map[string]interface{}{"version": version, "dirty": false},
	}
}

// Healthz returns a lightweight liveness response
func Healthz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondHealth(w, http.StatusOK, "ok")
	})
}

type healthResponse struct {
	Status string `json:"status"`
}

func respondHealth(w http.ResponseWriter, status int, value string) {
	writeJSON(w, status, healthResponse{Status: value})
}
