package sqlite

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/robertarktes/ticket-wallet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptStoreAppendAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore(openTestDB(t))

	a := domain.NewAttempt("QR-1", "", "scanner-1", "gate A", "android 14")
	require.NoError(t, store.Append(ctx, a))

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "QR-1", got.QRCode)
	assert.Empty(t, got.BackupCode)
	assert.Equal(t, "scanner-1", got.ScannedBy)
	assert.Equal(t, "gate A", got.Location)
	assert.Equal(t, domain.AttemptPending, got.Status)
	assert.True(t, a.Timestamp.Equal(got.Timestamp))

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAttemptStorePreservesEnqueueOrder(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore(openTestDB(t))

	var ids []string
	for i := 0; i < 5; i++ {
		a := domain.NewAttempt("QR-1", "", "scanner-1", "", "")
		require.NoError(t, store.Append(ctx, a))
		ids = append(ids, a.ID)
	}

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, a := range all {
		assert.Equal(t, ids[i], a.ID)
	}

	// NextPending follows the same order.
	next, err := store.NextPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[0], next.ID)
}

func TestAttemptStoreStatusTransitions(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore(openTestDB(t))

	a := domain.NewAttempt("QR-1", "", "scanner-1", "", "")
	require.NoError(t, store.Append(ctx, a))

	taken, err := store.MarkProcessing(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, taken)

	// Second take loses the compare-and-set.
	taken, err = store.MarkProcessing(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, taken)

	result := json.RawMessage(`{"valid":true}`)
	require.NoError(t, store.MarkCompleted(ctx, a.ID, result))

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptCompleted, got.Status)
	assert.JSONEq(t, `{"valid":true}`, string(got.Result))

	// Completing again is a conflict, not a silent rewrite.
	assert.ErrorIs(t, store.MarkCompleted(ctx, a.ID, result), domain.ErrConflict)
}

func TestAttemptStoreFailAndReset(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore(openTestDB(t))

	a := domain.NewAttempt("", "123456", "scanner-1", "", "")
	require.NoError(t, store.Append(ctx, a))

	taken, err := store.MarkProcessing(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, taken)
	require.NoError(t, store.MarkFailed(ctx, a.ID, "connection refused"))

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptFailed, got.Status)
	assert.Equal(t, "connection refused", got.Error)

	n, err := store.ResetFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptPending, got.Status)
	assert.Empty(t, got.Error)
}

func TestAttemptStoreResetProcessing(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore(openTestDB(t))

	a := domain.NewAttempt("QR-1", "", "scanner-1", "", "")
	require.NoError(t, store.Append(ctx, a))
	taken, err := store.MarkProcessing(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, taken)

	// Simulates a power-cycle mid network call.
	n, err := store.ResetProcessing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptPending, got.Status)
}

func TestAttemptStoreClears(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore(openTestDB(t))

	done := domain.NewAttempt("QR-1", "", "scanner-1", "", "")
	require.NoError(t, store.Append(ctx, done))
	taken, err := store.MarkProcessing(ctx, done.ID)
	require.NoError(t, err)
	require.True(t, taken)
	require.NoError(t, store.MarkCompleted(ctx, done.ID, json.RawMessage(`{}`)))

	waiting := domain.NewAttempt("QR-2", "", "scanner-1", "", "")
	require.NoError(t, store.Append(ctx, waiting))

	require.NoError(t, store.DeleteCompleted(ctx))
	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, waiting.ID, all[0].ID)

	require.NoError(t, store.DeleteAll(ctx))
	all, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAttemptStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := dir + "/wallet.db"

	db, err := Open(ctx, path, 64<<20)
	require.NoError(t, err)
	store := NewAttemptStore(db)

	a := domain.NewAttempt("QR-1", "", "scanner-1", "", "")
	require.NoError(t, store.Append(ctx, a))

	b := domain.NewAttempt("QR-2", "", "scanner-1", "", "")
	require.NoError(t, store.Append(ctx, b))
	taken, err := store.MarkProcessing(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, taken)
	require.NoError(t, store.MarkFailed(ctx, b.ID, "timeout"))

	require.NoError(t, db.Close())

	// Power-cycle: statuses are preserved on reload.
	db, err = Open(ctx, path, 64<<20)
	require.NoError(t, err)
	defer db.Close()
	store = NewAttemptStore(db)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, domain.AttemptPending, all[0].Status)
	assert.Equal(t, domain.AttemptFailed, all[1].Status)
	assert.Equal(t, "timeout", all[1].Error)
}
