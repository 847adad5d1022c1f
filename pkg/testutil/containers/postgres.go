//go:build integration

package containers

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"enrollgate/internal/platform/config"
	"enrollgate/internal/platform/database"
)

// PostgresContainer is a throwaway PostgreSQL with the pending schema applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
	pool      *database.Pool
}

// NewPostgresContainer starts PostgreSQL and migrates it through the same
// pool and migration path the server uses.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("enrollgate_test"),
		postgres.WithUsername("enrollgate"),
		postgres.WithPassword("enrollgate_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	pool, err := database.New(ctx, config.DatabaseConfig{URL: dsn, MaxOpenConns: 10}, nil)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	if err := pool.Migrate(ctx); err != nil {
		_ = pool.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to migrate postgres: %v", err)
	}

	// No t.Cleanup: the Manager shares the container across suites and Ryuk
	// removes it when the test process exits.
	return &PostgresContainer{Container: container, DSN: dsn, DB: pool.DB(), pool: pool}
}

// TruncateAll empties the pending table and restarts its insertion sequence.
func (p *PostgresContainer) TruncateAll(ctx context.Context) error {
	_, err := p.DB.ExecContext(ctx, "TRUNCATE TABLE pending_registrations RESTART IDENTITY")
	return err
}

// Health reports whether the container still answers.
func (p *PostgresContainer) Health(ctx context.Context) error {
	return p.pool.Health(ctx)
}
