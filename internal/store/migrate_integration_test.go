// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/authd/internal/store"
)

func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("authd_test"),
		postgres.WithUsername("authd"),
		postgres.WithPassword("authd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return "", nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return "", nil, err
	}
	return connStr, func() { _ = container.Terminate(ctx) }, nil
}

func tableExists(ctx context.Context, pool *pgxpool.Pool, name string) bool {
	var exists bool
	err := pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, name).Scan(&exists)
	Expect(err).NotTo(HaveOccurred())
	return exists
}

var _ = Describe("Migrator", Ordered, func() {
	var (
		ctx       context.Context
		connStr   string
		terminate func()
		pool      *pgxpool.Pool
		migrator  *store.Migrator
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		connStr, terminate, err = startPostgres(ctx)
		Expect(err).NotTo(HaveOccurred())

		pool, err = store.Connect(ctx, connStr)
		Expect(err).NotTo(HaveOccurred())

		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if migrator != nil {
			Expect(migrator.Close()).To(Succeed())
		}
		if pool != nil {
			pool.Close()
		}
		if terminate != nil {
			terminate()
		}
	})

	It("starts at version zero with everything pending", func() {
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())

		pending, err := migrator.PendingMigrations()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(Equal([]uint{1, 2}))
	})

	It("creates the users table on up", func() {
		Expect(migrator.Up()).To(Succeed())
		Expect(tableExists(ctx, pool, "auth_users")).To(BeTrue())

		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(2)))
	})

	It("is idempotent", func() {
		Expect(migrator.Up()).To(Succeed())
	})

	It("rejects mixed-case emails at the schema level", func() {
		_, err := pool.Exec(ctx, `
			INSERT INTO auth_users (id, username, email, password_hash)
			VALUES ('01HZZZZZZZZZZZZZZZZZZZZZZZ', 'casey', 'Casey@Example.com', 'x')`)
		Expect(err).To(HaveOccurred())
	})

	It("touches updated_at on update", func() {
		_, err := pool.Exec(ctx, `
			INSERT INTO auth_users (id, username, email, password_hash, updated_at)
			VALUES ('01HYYYYYYYYYYYYYYYYYYYYYYY', 'touch', 'touch@example.com', 'x', now() - interval '1 day')`)
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx, `UPDATE auth_users SET is_active = FALSE WHERE username = 'touch'`)
		Expect(err).NotTo(HaveOccurred())

		var age time.Duration
		err = pool.QueryRow(ctx,
			`SELECT EXTRACT(EPOCH FROM now() - updated_at)::bigint * 1000000000 FROM auth_users WHERE username = 'touch'`).
			Scan(&age)
		Expect(err).NotTo(HaveOccurred())
		Expect(age).To(BeNumerically("<", time.Minute))
	})

	It("steps back one migration", func() {
		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))
	})

	It("drops everything on down", func() {
		Expect(migrator.Down()).To(Succeed())
		Expect(tableExists(ctx, pool, "auth_users")).To(BeFalse())
	})
})
