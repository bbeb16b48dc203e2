package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB starts a PostgreSQL container and points the package pool at it.
func setupTestDB(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	require.NoError(t, InitDB(DBConfig{
		Host:     host,
		Port:     port.Int(),
		User:     "test",
		Password: "test",
		DBName:   "testdb",
		SSLMode:  "disable",
	}))
	t.Cleanup(CloseDB)
	require.NoError(t, EnsureSchema(ctx))
}

func TestPostgresStore(t *testing.T) {
	setupTestDB(t)
	exerciseStore(t, Postgres{})

	ctx := context.Background()
	require.NoError(t, ResetCycleNumber(ctx, 41))
	next, err := IncrementCycleNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, 42, next)

	// schema creation is idempotent
	require.NoError(t, EnsureSchema(ctx))
	require.NoError(t, TestDBConnection())

	require.NoError(t, DropSchema(ctx))
	_, err = GetCurrentCycleNumber(ctx)
	require.Error(t, err)
}
