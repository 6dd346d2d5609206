package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/tinychat/server/internal/auth"
	"github.com/tinychat/server/internal/metrics"
	"github.com/tinychat/server/internal/pubsub"
	"github.com/tinychat/server/internal/storage"
	"github.com/tinychat/server/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = telemetry.Tracer("gateway")

// Authenticator resolves a raw bearer token to its identity.
type Authenticator interface {
	AuthenticateToken(ctx context.Context, token string) (*storage.User, error)
}

type ResponderConfig struct {
	// Workers bounds how many messages are processed at once.
	Workers int
	// HandleTimeout bounds the verification and reply for one message.
	HandleTimeout time.Duration
	// RetryBase and RetryMax shape the resubscribe backoff.
	RetryBase time.Duration
	RetryMax  time.Duration
}

func (c ResponderConfig) withDefaults() ResponderConfig {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.HandleTimeout <= 0 {
		c.HandleTimeout = 5 * time.Second
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 200 * time.Millisecond
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 10 * time.Second
	}
	return c
}

// Responder answers confirm_auth requests arriving on the rest channel.
type Responder struct {
	bus       pubsub.Bus
	auth      Authenticator
	publisher *Publisher
	cfg       ResponderConfig
	logger    zerolog.Logger
}

func NewResponder(bus pubsub.Bus, authenticator Authenticator, publisher *Publisher, cfg ResponderConfig, logger zerolog.Logger) *Responder {
	return &Responder{
		bus:       bus,
		auth:      authenticator,
		publisher: publisher,
		cfg:       cfg.withDefaults(),
		logger:    logger.With().Str("component", "responder").Logger(),
	}
}

// Run listens until ctx is cancelled. A dropped subscription is re-opened
// with backoff. On return every in-flight message has been answered and the
// subscription is closed.
func (r *Responder) Run(ctx context.Context) error {
	for {
		sub, err := r.subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		r.logger.Info().Str("channel", pubsub.ChannelREST).Msg("listening for gateway requests")
		r.consume(ctx, sub)
		_ = sub.Close()

		if ctx.Err() != nil {
			r.logger.Info().Msg("responder stopped")
			return nil
		}
		r.logger.Warn().Msg("subscription closed, resubscribing")
	}
}

func (r *Responder) subscribe(ctx context.Context) (pubsub.Subscription, error) {
	backoff := retry.WithCappedDuration(r.cfg.RetryMax, retry.NewExponential(r.cfg.RetryBase))

	var sub pubsub.Subscription
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		s, err := r.bus.Subscribe(ctx, pubsub.ChannelREST)
		if err != nil {
			if errors.Is(err, pubsub.ErrClosed) {
				return err
			}
			r.logger.Warn().Err(err).Msg("subscribe failed, retrying")
			return retry.RetryableError(err)
		}
		sub = s
		return nil
	})
	return sub, err
}

// consume returns when ctx is done or the subscription ends, after all
// started handlers finish.
func (r *Responder) consume(ctx context.Context, sub pubsub.Subscription) {
	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	defer func() { _ = g.Wait() }()

	// handlers outlive shutdown so accepted requests still get a reply
	handleCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub.Messages():
			if !ok {
				return
			}
			g.Go(func() error {
				r.handle(handleCtx, payload)
				return nil
			})
		}
	}
}

func (r *Responder) handle(ctx context.Context, payload []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("gateway message handler panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.HandleTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "gateway.handle", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	msg, err := ParseInbound(payload)
	if err != nil {
		span.SetStatus(codes.Error, "malformed message")
		metrics.GatewayConfirmAuth.WithLabelValues("malformed").Inc()
		r.logger.Warn().Err(err).Int("bytes", len(payload)).Msg("dropping malformed gateway message")
		return
	}

	switch m := msg.(type) {
	case ConfirmAuthRequest:
		r.confirmAuth(ctx, m)
	default:
		metrics.GatewayConfirmAuth.WithLabelValues("ignored").Inc()
		r.logger.Debug().Interface("message", m).Msg("ignoring gateway message")
	}
}

func (r *Responder) confirmAuth(ctx context.Context, req ConfirmAuthRequest) {
	span := trace.SpanFromContext(ctx)
	user, err := r.auth.AuthenticateToken(ctx, req.Token)
	switch {
	case err == nil:
		span.SetAttributes(attribute.String("confirm_auth.result", "valid"), attribute.String("user.id", user.ID))
		metrics.GatewayConfirmAuth.WithLabelValues("valid").Inc()
		id := user.ID
		r.publisher.ConfirmAuth(ctx, &id, true, req.Token)
	case errors.Is(err, auth.ErrUnauthorized):
		span.SetAttributes(attribute.String("confirm_auth.result", "invalid"))
		metrics.GatewayConfirmAuth.WithLabelValues("invalid").Inc()
		r.publisher.ConfirmAuth(ctx, nil, false, req.Token)
	default:
		// no verdict could be reached; the gateway times the request out
		span.SetStatus(codes.Error, "credential store unavailable")
		metrics.GatewayConfirmAuth.WithLabelValues("unavailable").Inc()
		r.logger.Error().Err(err).Msg("confirm_auth skipped")
	}
}
