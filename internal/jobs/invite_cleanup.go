package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
	"github.com/tinychat/server/internal/metrics"
)

// InviteExpirer deletes invites whose expiry has passed.
type InviteExpirer interface {
	ExpireInvites(ctx context.Context) (int64, error)
}

type InviteCleanupArgs struct{}

func (InviteCleanupArgs) Kind() string { return JobKindInviteCleanup }

// InviteCleanupWorker removes expired invites. Lookups already treat them
// as missing, so this only reclaims rows.
type InviteCleanupWorker struct {
	river.WorkerDefaults[InviteCleanupArgs]
	Invites InviteExpirer
	Logger  *slog.Logger
}

func (InviteCleanupWorker) Kind() string { return JobKindInviteCleanup }

func (w InviteCleanupWorker) Work(ctx context.Context, job *river.Job[InviteCleanupArgs]) error {
	if job == nil {
		return fmt.Errorf("invite cleanup job missing")
	}
	if w.Invites == nil {
		return fmt.Errorf("invite expirer not configured")
	}

	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	start := time.Now()
	deleted, err := w.Invites.ExpireInvites(ctx)
	if err != nil {
		return fmt.Errorf("expire invites: %w", err)
	}
	metrics.InvitesDeleted.Add(float64(deleted))

	logger.Info("invite cleanup completed",
		"deleted_count", deleted,
		"attempt", job.Attempt,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// NewWorkers registers every worker the server runs.
func NewWorkers(invites InviteExpirer, logger *slog.Logger) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[InviteCleanupArgs](workers, &InviteCleanupWorker{Invites: invites, Logger: logger})
	return workers
}
