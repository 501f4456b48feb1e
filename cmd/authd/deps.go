// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"

	"github.com/holomush/authd/internal/auth/postgres"
	"github.com/holomush/authd/internal/config"
	"github.com/holomush/authd/internal/httpapi"
	"github.com/holomush/authd/internal/observability"
	"github.com/holomush/authd/internal/store"
)

// Deps contains injectable dependencies for commands that touch the
// database or start servers. Nil fields use their default implementations.
type Deps struct {
	// PoolFactory opens the database pool.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, cfg *config.Config) (Pool, error)

	// MigratorFactory creates a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// HTTPServerFactory creates the API server.
	// Default: httpapi.NewServer
	HTTPServerFactory func(addr string, svc httpapi.AuthService, metrics *observability.Metrics) HTTPServer

	// PasswordReader prompts for a password without echo.
	// Default: readPasswordFromTerminal
	PasswordReader func(prompt string) (string, error)
}

// Pool is the database handle: queries for the user repository plus
// readiness pings.
type Pool interface {
	postgres.Querier
	Ping(ctx context.Context) error
	Close()
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// HTTPServer wraps the methods used from httpapi.Server.
type HTTPServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// withDefaults returns a copy of d with every nil factory filled in.
func (d *Deps) withDefaults() *Deps {
	out := &Deps{}
	if d != nil {
		*out = *d
	}
	d = out
	if d.PoolFactory == nil {
		d.PoolFactory = func(ctx context.Context, cfg *config.Config) (Pool, error) {
			return store.Connect(ctx, cfg.Database.URL,
				store.WithConnectAttempts(cfg.Database.ConnectAttempts),
				store.WithMaxConns(cfg.Database.MaxConns))
		}
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if d.HTTPServerFactory == nil {
		d.HTTPServerFactory = func(addr string, svc httpapi.AuthService, metrics *observability.Metrics) HTTPServer {
			return httpapi.NewServer(addr, svc, httpapi.WithMetrics(metrics))
		}
	}
	if d.PasswordReader == nil {
		d.PasswordReader = readPasswordFromTerminal
	}
	return d
}
