// Tests use testcontainers-go to spin up a PostgreSQL container.
package store

import (
	"context"
	"encoding/json"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestStore creates a PostgreSQL container and returns a migrated store.
// Skips the test if Docker is not available.
func setupTestStore(t *testing.T) (*Postgres, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	st := NewPostgres(pool)
	require.NoError(t, st.Migrate(ctx))

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return st, cleanup
}

func TestPostgresGetPutDelete(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	var missing testDoc
	assert.ErrorIs(t, st.Get(ctx, "docs/a", &missing), ErrNotFound)

	require.NoError(t, st.Put(ctx, "docs/a", testDoc{Name: "a", Count: 1}))

	var got testDoc
	require.NoError(t, st.Get(ctx, "docs/a", &got))
	assert.Equal(t, testDoc{Name: "a", Count: 1}, got)

	require.NoError(t, st.Put(ctx, "docs/a", testDoc{Name: "a", Count: 2}))
	require.NoError(t, st.Get(ctx, "docs/a", &got))
	assert.Equal(t, 2, got.Count)

	require.NoError(t, st.Delete(ctx, "docs/a"))
	assert.ErrorIs(t, st.Get(ctx, "docs/a", &got), ErrNotFound)
}

func TestPostgresList(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "docs/a", testDoc{Name: "a"}))
	require.NoError(t, st.Put(ctx, "docs/b", testDoc{Name: "b"}))
	require.NoError(t, st.Put(ctx, "other/c", testDoc{Name: "c"}))

	out, err := st.List(ctx, "docs/")
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Contains(t, out, "docs/a")
	assert.Contains(t, out, "docs/b")
}

func TestPostgresTransact(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	// Create through a transaction on an absent record.
	committed, err := st.Transact(ctx, "docs/a", func(current []byte) ([]byte, error) {
		require.Nil(t, current)
		return json.Marshal(testDoc{Count: 1})
	})
	require.NoError(t, err)
	assert.True(t, committed)

	// Abort leaves the record untouched.
	committed, err = st.Transact(ctx, "docs/a", func(current []byte) ([]byte, error) {
		return nil, ErrAbort
	})
	require.NoError(t, err)
	assert.False(t, committed)

	var got testDoc
	require.NoError(t, st.Get(ctx, "docs/a", &got))
	assert.Equal(t, 1, got.Count)

	// Delete through a transaction.
	committed, err = st.Transact(ctx, "docs/a", func(current []byte) ([]byte, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, committed)
	assert.ErrorIs(t, st.Get(ctx, "docs/a", &got), ErrNotFound)
}

func TestPostgresTransactConcurrentIncrements(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "docs/counter", testDoc{Count: 0}))

	const workers = 4
	const perWorker = 10

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := st.Transact(ctx, "docs/counter", func(current []byte) ([]byte, error) {
					var doc testDoc
					if err := json.Unmarshal(current, &doc); err != nil {
						return nil, err
					}
					doc.Count++
					return json.Marshal(doc)
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	var got testDoc
	require.NoError(t, st.Get(ctx, "docs/counter", &got))
	assert.Equal(t, workers*perWorker, got.Count)
}

func TestPostgresWatch(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	go func() { _ = st.Run(runCtx) }()

	// Give the LISTEN connection a moment to come up.
	time.Sleep(500 * time.Millisecond)

	events, cancel := st.Watch("docs/")
	defer cancel()

	ctx := context.Background()
	require.NoError(t, st.Put(ctx, "docs/a", testDoc{Name: "a"}))

	ev := waitEvent(t, events)
	assert.Equal(t, "docs/a", ev.Path)
	assert.NotNil(t, ev.Data)

	require.NoError(t, st.Delete(ctx, "docs/a"))
	ev = waitEvent(t, events)
	assert.Equal(t, "docs/a", ev.Path)
	assert.Nil(t, ev.Data)
}
