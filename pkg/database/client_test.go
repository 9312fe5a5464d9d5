package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestConfig starts a disposable PostgreSQL container and returns a
// Config pointing at it.
func newTestConfig(t *testing.T) Config {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("tripforge_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return Config{
		Host:         host,
		Port:         port.Int(),
		User:         "test",
		Password:     "test",
		Database:     "tripforge_test",
		SSLMode:      "disable",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	}
}

func TestNewClientConnectsAndMigrates(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)

	client, err := NewClient(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.DB().PingContext(ctx))

	// Migrations created both tables.
	for _, table := range []string{"itineraries", "itinerary_revisions"} {
		var exists bool
		err := client.DB().QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
			table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "table %s should exist", table)
	}
}

func TestNewClientMigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)

	first, err := NewClient(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// A second startup against the same database finds nothing to apply.
	second, err := NewClient(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestHealthReportsPoolStats(t *testing.T) {
	ctx := context.Background()
	client, err := NewClient(ctx, newTestConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	health, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 10, health.Pool.MaxOpenConns)
	assert.GreaterOrEqual(t, health.ResponseTime, int64(0))
	assert.Less(t, health.ResponseTime, int64(1000))
}
