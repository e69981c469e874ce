//go:build integration

// Package pgtest boots a throwaway Postgres container with the schema
// migrated, for repository integration tests.
package pgtest

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/diagnosis/buildhub/pkg/config"
	"github.com/diagnosis/buildhub/pkg/database"
)

// Harness owns the container and the pool connected to it.
type Harness struct {
	container *postgres.PostgresContainer
	pool      *pgxpool.Pool
}

func Start(ctx context.Context) (*Harness, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("buildhub"),
		postgres.WithUsername("buildhub"),
		postgres.WithPassword("buildhub"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("resolve connection string: %w", err)
	}

	pool, err := database.Connect(ctx, config.DatabaseConfig{
		URL:         dsn,
		MaxConns:    10,
		MinConns:    1,
		MaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		container.Terminate(ctx)
		return nil, err
	}

	h := &Harness{container: container, pool: pool}
	if err := database.Migrate(pool); err != nil {
		h.Close(ctx)
		return nil, err
	}
	return h, nil
}

func (h *Harness) Pool() *pgxpool.Pool {
	return h.pool
}

// Reset truncates every table so each test starts from an empty schema.
func (h *Harness) Reset(ctx context.Context) error {
	_, err := h.pool.Exec(ctx, `TRUNCATE outbox, booking_idempotency, bookings, services, verification_codes, users RESTART IDENTITY CASCADE`)
	if err != nil {
		return fmt.Errorf("reset tables: %w", err)
	}
	return nil
}

func (h *Harness) Close(ctx context.Context) {
	if h.pool != nil {
		h.pool.Close()
	}
	if h.container != nil {
		_ = h.container.Terminate(ctx)
	}
}
