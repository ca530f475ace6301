package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRevoker scripts per-pair outcomes and records calls.
type fakeRevoker struct {
	mu    sync.Mutex
	fail  map[string]error
	calls []string
}

func (f *fakeRevoker) Revoke(_ context.Context, userID, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := userID + "/" + projectID
	f.calls = append(f.calls, key)
	if err, ok := f.fail[key]; ok {
		return err
	}
	return nil
}

func TestSweepDeliversDueItems(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	revoker := &fakeRevoker{}
	sweeper := NewSweeper(store, revoker, nil)

	require.NoError(t, store.Enqueue(ctx, "u1", "p1", ""))
	require.NoError(t, store.Enqueue(ctx, "u2", "p1", ""))

	sweeper.Sweep(ctx)

	assert.ElementsMatch(t, []string{"u1/p1", "u2/p1"}, revoker.calls)

	items, err := store.Due(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, items)

	pending, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestSweepReschedulesFailures(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	revoker := &fakeRevoker{fail: map[string]error{"u1/p1": errors.New("still down")}}
	sweeper := NewSweeper(store, revoker, NewRetryPolicy(RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Hour,
	}))

	require.NoError(t, store.Enqueue(ctx, "u1", "p1", ""))
	sweeper.Sweep(ctx)

	// Rescheduled into the future: no longer due, still pending.
	items, err := store.Due(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, items)

	pending, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestSweepParksExhaustedItemsDead(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	revoker := &fakeRevoker{fail: map[string]error{"u1/p1": errors.New("still down")}}
	sweeper := NewSweeper(store, revoker, NewRetryPolicy(RetryConfig{
		MaxAttempts:  1,
		InitialDelay: time.Millisecond,
	}))

	require.NoError(t, store.Enqueue(ctx, "u1", "p1", ""))
	sweeper.Sweep(ctx)

	pending, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending, "dead items leave the pending pool")

	// Dead items are not retried by later sweeps.
	revoker.calls = nil
	sweeper.Sweep(ctx)
	assert.Empty(t, revoker.calls)
}

func TestSweepSuccessAfterRetry(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	revoker := &fakeRevoker{fail: map[string]error{"u1/p1": errors.New("flaky")}}
	sweeper := NewSweeper(store, revoker, NewRetryPolicy(RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Nanosecond,
	}))

	require.NoError(t, store.Enqueue(ctx, "u1", "p1", ""))
	sweeper.Sweep(ctx)

	// The outage clears; the rescheduled item delivers on the next sweep.
	revoker.mu.Lock()
	revoker.fail = nil
	revoker.mu.Unlock()
	time.Sleep(time.Millisecond)

	sweeper.Sweep(ctx)

	pending, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}
