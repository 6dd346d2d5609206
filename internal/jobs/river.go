package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/riverqueue/river/rivertype"
)

const JobKindInviteCleanup = "invite_cleanup"

// Backoff is a capped exponential retry schedule for one job kind.
type Backoff struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
}

// Delay is Base doubled per prior attempt, capped at Cap.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := b.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if b.Cap > 0 && delay >= b.Cap {
			return b.Cap
		}
	}
	if b.Cap > 0 && delay > b.Cap {
		return b.Cap
	}
	return delay
}

var (
	defaultBackoff = Backoff{MaxAttempts: 5, Base: 30 * time.Second, Cap: 30 * time.Minute}

	// A missed cleanup run is harmless; the next periodic run catches up.
	kindBackoff = map[string]Backoff{
		JobKindInviteCleanup: {MaxAttempts: 3, Base: time.Minute, Cap: 15 * time.Minute},
	}
)

func backoffFor(kind string) Backoff {
	if b, ok := kindBackoff[kind]; ok {
		return b
	}
	return defaultBackoff
}

// RetryPolicy schedules retries from each kind's Backoff.
type RetryPolicy struct{}

func (RetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	from := time.Now()
	if job.AttemptedAt != nil {
		from = *job.AttemptedAt
	}
	return from.Add(backoffFor(job.Kind).Delay(job.Attempt))
}

// InsertOptsForKind sets MaxAttempts from the kind's Backoff.
func InsertOptsForKind(kind string) river.InsertOpts {
	return river.InsertOpts{MaxAttempts: backoffFor(kind).MaxAttempts}
}

func newClientConfig(workers *river.Workers, logger *slog.Logger, hooks []rivertype.Hook, periodicJobs []*river.PeriodicJob, maxWorkers int) *river.Config {
	config := &river.Config{
		Workers:      workers,
		RetryPolicy:  RetryPolicy{},
		MaxAttempts:  defaultBackoff.MaxAttempts,
		PeriodicJobs: periodicJobs,
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: max(maxWorkers, 1)},
		},
		Hooks: hooks,
	}
	if logger != nil {
		config.Logger = logger
		config.ErrorHandler = NewErrorHandler(logger)
	}
	return config
}

// NewClient creates a River client on the shared pgx pool.
func NewClient(pool *pgxpool.Pool, workers *river.Workers, logger *slog.Logger, hooks []rivertype.Hook, periodicJobs []*river.PeriodicJob, maxWorkers int) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), newClientConfig(workers, logger, hooks, periodicJobs, maxWorkers))
}

// NewPeriodicJobs schedules invite cleanup every interval, defaulting to
// hourly, with a first run at startup.
func NewPeriodicJobs(inviteCleanupInterval time.Duration) []*river.PeriodicJob {
	if inviteCleanupInterval <= 0 {
		inviteCleanupInterval = time.Hour
	}
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(inviteCleanupInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				opts := InsertOptsForKind(JobKindInviteCleanup)
				return InviteCleanupArgs{}, &opts
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}

// Migrate brings River's own tables up to date.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), &rivermigrate.Config{Logger: logger})
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("migrate river: %w", err)
	}
	return nil
}
