// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store provides PostgreSQL connectivity and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Connection retry defaults.
const (
	DefaultConnectAttempts  = 5
	DefaultConnectBaseDelay = 500 * time.Millisecond
	maxConnectDelay         = 10 * time.Second
)

type connectConfig struct {
	attempts  uint64
	baseDelay time.Duration
	maxConns  int32
	logger    *slog.Logger
}

// ConnectOption configures Connect.
type ConnectOption func(*connectConfig)

// WithConnectAttempts sets how many times Connect tries before giving up.
func WithConnectAttempts(n uint64) ConnectOption {
	return func(c *connectConfig) {
		c.attempts = n
	}
}

// WithConnectBaseDelay sets the first backoff delay.
func WithConnectBaseDelay(d time.Duration) ConnectOption {
	return func(c *connectConfig) {
		c.baseDelay = d
	}
}

// WithMaxConns caps the pool size. Zero keeps the pgxpool default.
func WithMaxConns(n int32) ConnectOption {
	return func(c *connectConfig) {
		c.maxConns = n
	}
}

// WithConnectLogger sets the logger for retry warnings.
func WithConnectLogger(logger *slog.Logger) ConnectOption {
	return func(c *connectConfig) {
		c.logger = logger
	}
}

// Connect opens a pgx pool and pings it, retrying with exponential backoff
// while the database is unreachable. Malformed URLs fail immediately.
func Connect(ctx context.Context, databaseURL string, opts ...ConnectOption) (*pgxpool.Pool, error) {
	cfg := connectConfig{
		attempts:  DefaultConnectAttempts,
		baseDelay: DefaultConnectBaseDelay,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.attempts == 0 {
		cfg.attempts = 1
	}

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("STORE_INVALID_URL").Wrap(err)
	}
	if cfg.maxConns > 0 {
		poolConfig.MaxConns = cfg.maxConns
	}

	backoff := retry.WithCappedDuration(maxConnectDelay, retry.NewExponential(cfg.baseDelay))
	backoff = retry.WithMaxRetries(cfg.attempts-1, backoff)

	attempt := 0
	pool, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (*pgxpool.Pool, error) {
		attempt++
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, oops.Code("STORE_CONNECT_FAILED").With("attempt", attempt).Wrap(err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			cfg.logger.WarnContext(ctx, "database not reachable",
				"attempt", attempt,
				"max_attempts", cfg.attempts,
				"error", err)
			return nil, retry.RetryableError(oops.Code("STORE_CONNECT_FAILED").With("attempt", attempt).Wrap(err))
		}
		return pool, nil
	})
	if err != nil {
		return nil, oops.With("attempts", attempt).Wrap(err)
	}
	return pool, nil
}
