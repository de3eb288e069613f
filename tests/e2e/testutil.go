// Package e2e exercises the batching runtime against a real PostgreSQL
// server. A shared container is started on first use; set DATABASE_URL to
// run against an existing server instead.
package e2e

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Singleton container state
var (
	singletonOnce sync.Once
	singletonDSN  string
	singletonErr  error
)

// ensureDSN lazily starts the shared PostgreSQL container. Safe for
// concurrent access via sync.Once.
func ensureDSN() (string, error) {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url, nil
	}

	singletonOnce.Do(func() {
		ctx := context.Background()

		container, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("singlefetch"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			singletonErr = fmt.Errorf("failed to start PostgreSQL container: %w", err)
			return
		}

		dsn, err := container.ConnectionString(ctx)
		if err != nil {
			_ = container.Terminate(ctx)
			singletonErr = fmt.Errorf("failed to get PostgreSQL connection string: %w", err)
			return
		}

		// Append sslmode=disable for local testing
		dsn += "sslmode=disable"

		singletonDSN = dsn
		// Container is not stored - ryuk will handle cleanup automatically
	})

	return singletonDSN, singletonErr
}

// openDB returns a connection to the shared test server. The connection is
// closed when the test completes.
func openDB(tb testing.TB) *sql.DB {
	tb.Helper()

	dsn, err := ensureDSN()
	require.NoError(tb, err, "failed to start PostgreSQL container")

	db, err := sql.Open("pgx", dsn)
	require.NoError(tb, err, "failed to connect to test database")

	err = db.Ping()
	require.NoError(tb, err, "failed to ping test database")

	tb.Cleanup(func() { _ = db.Close() })

	return db
}
