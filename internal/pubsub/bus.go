// Package pubsub carries JSON payloads between this service and the
// realtime gateway over named channels.
package pubsub

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Channel names shared with the realtime gateway.
const (
	// ChannelGateway carries events from this service to the gateway.
	ChannelGateway = "gateway"
	// ChannelREST carries requests from the gateway to this service.
	ChannelREST = "rest"
)

const (
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

var (
	ErrClosed          = errors.New("pubsub: bus closed")
	ErrUnknownDriver   = errors.New("pubsub: unknown driver")
	ErrPayloadTooLarge = errors.New("pubsub: payload too large")
)

// Bus publishes to and subscribes on named channels. Delivery is at most
// once; a subscriber only sees messages published after it subscribed.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Ping(ctx context.Context) error
	Close() error
}

// Subscription delivers payloads until it is closed or its transport fails,
// at which point Messages is closed.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

type Options struct {
	Driver   string
	RedisURL string
	// Pool is required by the postgres driver.
	Pool   *pgxpool.Pool
	Logger zerolog.Logger
}

// Open constructs the bus selected by opts.Driver.
func Open(ctx context.Context, opts Options) (Bus, error) {
	switch opts.Driver {
	case DriverRedis:
		return DialRedis(ctx, opts.RedisURL, opts.Logger)
	case DriverPostgres:
		if opts.Pool == nil {
			return nil, fmt.Errorf("pubsub: postgres driver requires a pool")
		}
		return NewPostgresBus(opts.Pool, opts.Logger), nil
	case DriverMemory:
		return NewMemoryBus(opts.Logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}
