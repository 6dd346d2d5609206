package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// maxNotifyPayload is the PostgreSQL limit for a NOTIFY payload.
const maxNotifyPayload = 8000

// PostgresBus maps channels onto LISTEN/NOTIFY. Each subscription holds its
// own connection outside the pool.
type PostgresBus struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewPostgresBus(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresBus {
	return &PostgresBus{
		pool:   pool,
		logger: logger.With().Str("component", "pubsub").Str("driver", DriverPostgres).Logger(),
	}
}

func (b *PostgresBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if len(payload) >= maxNotifyPayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	if _, err := b.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, channel, string(payload)); err != nil {
		return fmt.Errorf("pg_notify %s: %w", channel, err)
	}
	return nil
}

func (b *PostgresBus) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	conn, err := pgx.ConnectConfig(ctx, b.pool.Config().ConnConfig.Copy())
	if err != nil {
		return nil, fmt.Errorf("connect listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("listen %s: %w", channel, err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	sub := &postgresSubscription{
		conn:     conn,
		channel:  channel,
		messages: make(chan []byte),
		cancel:   cancel,
		stopped:  make(chan struct{}),
		logger:   b.logger,
	}
	go sub.run(listenCtx)
	return sub, nil
}

func (b *PostgresBus) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}

// Close is a no-op; the pool belongs to the caller.
func (b *PostgresBus) Close() error {
	return nil
}

type postgresSubscription struct {
	conn     *pgx.Conn
	channel  string
	messages chan []byte
	cancel   context.CancelFunc
	stopped  chan struct{}
	once     sync.Once
	logger   zerolog.Logger
}

func (s *postgresSubscription) run(ctx context.Context) {
	defer close(s.stopped)
	defer close(s.messages)
	defer func() { _ = s.conn.Close(context.Background()) }()

	for {
		n, err := s.conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Str("channel", s.channel).Msg("listener connection lost")
			}
			return
		}
		select {
		case s.messages <- []byte(n.Payload):
		case <-ctx.Done():
			return
		}
	}
}

func (s *postgresSubscription) Messages() <-chan []byte { return s.messages }

func (s *postgresSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.stopped
	})
	return nil
}
