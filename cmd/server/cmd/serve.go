package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/spf13/cobra"
	"github.com/tinychat/server/internal/api"
	"github.com/tinychat/server/internal/api/handlers"
	"github.com/tinychat/server/internal/config"
	"github.com/tinychat/server/internal/gateway"
	"github.com/tinychat/server/internal/jobs"
	"github.com/tinychat/server/internal/metrics"
	"github.com/tinychat/server/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

type serveOptions struct {
	*rootOptions
	host string
	port int
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and gateway responder",
		Long: `Start the HTTP API, the confirm_auth responder, and background jobs.

The server will:
- Load configuration from the --config file and environment variables
- Serve the REST API until SIGINT or SIGTERM
- Answer confirm_auth requests from the realtime gateway
- Expire stale invites on a schedule when jobs are enabled

Examples:
  # Start with default configuration (from env vars)
  server serve

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Start with debug logging
  server serve --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if opts.host != "" {
				cfg.Server.Host = opts.host
			}
			if opts.port != 0 {
				cfg.Server.Port = opts.port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "server host address (default: 0.0.0.0)")
	cmd.Flags().IntVar(&opts.port, "port", 0, "server port (default: 8080)")
	return cmd
}

func runServer(ctx context.Context, cfg config.Config) error {
	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("version", Version).Msg("starting tinychat server")

	metrics.Init(Version, GitCommit, BuildDate)

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	a, err := newApp(setupCtx, cfg, logger)
	cancel()
	if err != nil {
		return err
	}
	defer a.Close()
	metrics.Registry.MustRegister(metrics.NewPoolCollector(a.pool))

	var riverClient *river.Client[pgx.Tx]
	if cfg.Jobs.Enabled {
		riverClient, err = newRiverClient(ctx, a)
		if err != nil {
			return err
		}
	}

	var jobsPing handlers.Pinger
	if riverClient != nil {
		jobsPing = handlers.PingFunc(func(ctx context.Context) error {
			_, err := riverClient.JobList(ctx, river.NewJobListParams().First(1))
			return err
		})
	}

	server := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: api.NewRouter(api.Dependencies{
			Config:        cfg,
			Logger:        logger,
			Users:         a.users,
			Guilds:        a.guilds,
			Authenticator: a.verifier,
			Health:        a.healthChecker(jobsPing),
			Build:         buildInfo(),
		}),
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	responder := gateway.NewResponder(a.bus, a.verifier, a.publisher, gateway.ResponderConfig{
		Workers:       cfg.Gateway.ResponderWorkers,
		HandleTimeout: cfg.Gateway.HandleTimeout,
		RetryBase:     cfg.Gateway.RetryBase,
		RetryMax:      cfg.Gateway.RetryMax,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return responder.Run(gctx)
	})

	if riverClient != nil {
		// River stops through Stop below, not through cancellation.
		riverCtx, riverCancel := context.WithCancel(context.WithoutCancel(ctx))
		defer riverCancel()
		if err := riverClient.Start(riverCtx); err != nil {
			return fmt.Errorf("river workers failed to start: %w", err)
		}
		logger.Info().Msg("background job workers started")
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if riverClient != nil {
			if err := riverClient.Stop(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("river workers shutdown error")
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newRiverClient(ctx context.Context, a *app) (*river.Client[pgx.Tx], error) {
	slogger := config.NewSlogLogger(a.cfg.Logging)
	if err := jobs.Migrate(ctx, a.pool, slogger); err != nil {
		return nil, err
	}

	client, err := jobs.NewClient(
		a.pool,
		jobs.NewWorkers(a.guilds, slogger),
		slogger,
		[]rivertype.Hook{metrics.NewRiverMetricsHook()},
		jobs.NewPeriodicJobs(a.cfg.Jobs.InviteCleanupInterval),
		a.cfg.Jobs.MaxWorkers,
	)
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	return client, nil
}
