// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/holomush/authd/internal/auth"
	"github.com/holomush/authd/internal/auth/postgres"
	"github.com/holomush/authd/internal/config"
	"github.com/holomush/authd/internal/observability"
)

// shutdownTimeout bounds graceful shutdown of both servers.
const shutdownTimeout = 10 * time.Second

// serveOptions holds flags that are not configuration.
type serveOptions struct {
	autoMigrate bool
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return newServeCmdWithDeps(nil)
}

func newServeCmdWithDeps(deps *Deps) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication API server",
		Long: `Start the HTTP/JSON authentication API along with the metrics and
health server. Requires a database URL and a JWT signing secret.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cfg, opts, cmd, deps)
		},
	}

	cmd.Flags().String("addr", config.DefaultServerAddr, "API listen address")
	cmd.Flags().String("metrics-addr", config.DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().Int("bcrypt-cost", bcrypt.DefaultCost, "bcrypt work factor for new password hashes")
	cmd.Flags().BoolVar(&opts.autoMigrate, "auto-migrate", false, "apply pending migrations before serving")

	return cmd
}

// runServeWithDeps starts the servers with injectable dependencies and
// blocks until ctx is cancelled or a server fails.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, opts *serveOptions, cmd *cobra.Command, deps *Deps) error {
	deps = deps.withDefaults()
	if opts == nil {
		opts = &serveOptions{}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := setupLogging(cfg)
	logger.Info("starting authd",
		"addr", cfg.Server.Addr,
		"metrics_addr", cfg.Metrics.Addr,
		"log_format", cfg.Log.Format,
	)

	if opts.autoMigrate {
		if err := runAutoMigrate(cfg.Database.URL, deps.MigratorFactory); err != nil {
			return err
		}
	}

	pool, err := deps.PoolFactory(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	svc, err := newService(cfg, postgres.NewUserRepository(pool), logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, observability.PingChecker(pool))
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	httpServer := deps.HTTPServerFactory(cfg.Server.Addr, svc, metrics)
	httpErrChan, err := httpServer.Start()
	if err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		if obsServer != nil {
			if stopErr := obsServer.Stop(stopCtx); stopErr != nil {
				logger.Warn("failed to stop observability server during cleanup", "error", stopErr)
			}
		}
		return fmt.Errorf("failed to start API server: %w", err)
	}
	go monitorServerErrors(ctx, cancel, httpErrChan, "api")

	cmd.Println("authd started")
	logger.Info("authd ready", "addr", httpServer.Addr())

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping API server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

// newService builds the auth service for cfg on top of users.
func newService(cfg *config.Config, users auth.UserRepository, logger *slog.Logger) (*auth.Service, error) {
	hasher, err := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to create password hasher: %w", err)
	}
	codec, err := auth.NewTokenCodec([]byte(cfg.JWT.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create token codec: %w", err)
	}
	svc, err := auth.NewService(users, hasher, codec,
		auth.WithTokenTTLs(cfg.Tokens.AccessTTL.Std(), cfg.Tokens.RefreshTTL.Std()),
		auth.WithMinUsernameLength(cfg.Auth.MinUsernameLength),
		auth.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth service: %w", err)
	}
	return svc, nil
}

// runAutoMigrate applies pending migrations and always closes the migrator.
func runAutoMigrate(databaseURL string, factory func(string) (Migrator, error)) (err error) {
	migrator, err := factory(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return fmt.Errorf("failed to run auto-migration: %w", err)
	}
	slog.Info("database migrations applied")
	return nil
}

// monitorServerErrors cancels ctx with the error a server reports.
// A closed channel or a nil error means the server stopped cleanly.
func monitorServerErrors(ctx context.Context, cancel context.CancelCauseFunc, errChan <-chan error, name string) {
	select {
	case err, ok := <-errChan:
		if !ok || err == nil {
			return
		}
		slog.Error("server error, triggering shutdown", "server", name, "error", err)
		cancel(fmt.Errorf("%s server failed: %w", name, err))
	case <-ctx.Done():
	}
}
