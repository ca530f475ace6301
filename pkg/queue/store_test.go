package queue

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitalworks/constel/pkg/database"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(context.Background(), db, Migrations()))
	return NewStore(db)
}

func TestEnqueueAndDue(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	require.NoError(t, store.Enqueue(ctx, "u1", "p1", "write timeout"))

	items, err := store.Due(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "u1", items[0].UserID)
	assert.Equal(t, "p1", items[0].ProjectID)
	assert.Equal(t, "write timeout", items[0].Cause)
	assert.Equal(t, StatusPending, items[0].Status)
	assert.Equal(t, 0, items[0].Attempts)
}

func TestEnqueueUpsertsExistingPair(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	require.NoError(t, store.Enqueue(ctx, "u1", "p1", "first"))

	items, err := store.Due(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)

	// Park it dead, then re-enqueue: the pair revives as pending with a
	// fresh attempt budget.
	require.NoError(t, store.MarkDead(ctx, items[0].ID, 8, "gave up"))
	require.NoError(t, store.Enqueue(ctx, "u1", "p1", "second"))

	items, err = store.Due(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "second", items[0].Cause)
	assert.Equal(t, 0, items[0].Attempts)
	assert.Empty(t, items[0].LastError)

	pending, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestDueSkipsFutureAndFinalizedItems(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	require.NoError(t, store.Enqueue(ctx, "u1", "p1", ""))
	require.NoError(t, store.Enqueue(ctx, "u2", "p1", ""))
	require.NoError(t, store.Enqueue(ctx, "u3", "p1", ""))

	items, err := store.Due(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 3)

	// Succeeded and rescheduled-into-the-future items drop out.
	require.NoError(t, store.MarkSucceeded(ctx, items[0].ID))
	require.NoError(t, store.MarkFailed(ctx, items[1].ID, 1, "later", time.Now().UTC().Add(time.Hour)))

	items, err = store.Due(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "u3", items[0].UserID)
}

func TestMarkFailedKeepsItemPending(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	require.NoError(t, store.Enqueue(ctx, "u1", "p1", ""))
	items, err := store.Due(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, store.MarkFailed(ctx, items[0].ID, 2, "still broken", time.Now().UTC().Add(-time.Second)))

	items, err = store.Due(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Attempts)
	assert.Equal(t, "still broken", items[0].LastError)
}
