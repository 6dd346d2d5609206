package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/tinychat/server/internal/api/handlers"
	"github.com/tinychat/server/internal/auth"
	"github.com/tinychat/server/internal/config"
	"github.com/tinychat/server/internal/domain/guilds"
	"github.com/tinychat/server/internal/domain/ids"
	"github.com/tinychat/server/internal/domain/users"
	"github.com/tinychat/server/internal/gateway"
	"github.com/tinychat/server/internal/pubsub"
	"github.com/tinychat/server/internal/storage/postgres"
)

// app holds the long-lived dependencies shared by serve and the tooling
// subcommands.
type app struct {
	cfg    config.Config
	logger zerolog.Logger

	pool      *pgxpool.Pool
	repo      *postgres.Repository
	bus       pubsub.Bus
	codec     *auth.TokenCodec
	verifier  *auth.Verifier
	publisher *gateway.Publisher
	users     *users.Service
	guilds    *guilds.Service
}

func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	pool, err := openPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("repository init: %w", err)
	}

	bus, err := pubsub.Open(ctx, pubsub.Options{
		Driver:   cfg.PubSub.Driver,
		RedisURL: cfg.PubSub.RedisURL,
		Pool:     pool,
		Logger:   logger,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open message bus: %w", err)
	}

	gen, err := ids.NewGenerator(cfg.NodeID)
	if err != nil {
		_ = bus.Close()
		pool.Close()
		return nil, err
	}

	codec := auth.NewTokenCodec()
	publisher := gateway.NewPublisher(bus, cfg.PubSub.PublishTimeout, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		repo:      repo,
		bus:       bus,
		codec:     codec,
		verifier:  auth.NewVerifier(codec, repo.Users(), logger),
		publisher: publisher,
		users:     users.NewService(repo.Users(), auth.NewArgon2idHasher(), codec, gen, publisher, logger),
		guilds:    guilds.NewService(repo, gen, publisher, logger),
	}, nil
}

func (a *app) healthChecker(jobs handlers.Pinger) *handlers.HealthChecker {
	opts := []handlers.HealthOption{
		handlers.WithMigrations(func(context.Context) (uint, bool, error) {
			return postgres.MigrationVersion(a.cfg.Database.URL, "")
		}),
	}
	if jobs != nil {
		opts = append(opts, handlers.WithJobQueue(jobs))
	}
	return handlers.NewHealthChecker(a.repo, a.bus, Version, GitCommit, opts...)
}

func (a *app) Close() {
	if err := a.bus.Close(); err != nil {
		a.logger.Error().Err(err).Msg("message bus close error")
	}
	a.pool.Close()
}

func openPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}
	if cfg.MaxIdle > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdle)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return pool, nil
}

