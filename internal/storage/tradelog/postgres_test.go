package tradelog

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

func setupPostgres(t *testing.T) *PostgresSink {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container test skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("sandbox"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	sink, err := NewPostgresSink(ctx, pool)
	require.NoError(t, err)
	return sink
}

func TestPostgresSink_Insert(t *testing.T) {
	sink := setupPostgres(t)
	ctx := context.Background()

	require.NoError(t, sink.Append(sampleRecord("p1")))
	require.NoError(t, sink.Append(sampleRecord("p2")))
	// duplicates are ignored
	require.NoError(t, sink.Insert(ctx, sampleRecord("p1")))

	n, err := sink.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
