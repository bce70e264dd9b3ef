package sqlite

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/robertarktes/ticket-wallet/internal/domain"
	"github.com/robertarktes/ticket-wallet/internal/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "wallet.db"), 64<<20)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testTicket(id, owner string) domain.Ticket {
	endTime := time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)
	return domain.Ticket{
		ID:           id,
		EventID:      "evt-1",
		OwnerID:      owner,
		TierID:       "tier-vip",
		QRCode:       "QR-" + id,
		BackupCode:   "420042",
		Status:       domain.TicketValid,
		PurchaseDate: time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC),
		EventDetails: domain.EventDetails{
			Title:     "That Luang Festival",
			Venue:     "That Luang Esplanade",
			StartTime: time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC),
			EndTime:   &endTime,
			City:      "Vientiane",
			Country:   "LA",
			Images:    []string{"https://cdn.example.com/evt-1.jpg"},
		},
		TierDetails: domain.TierDetails{Name: "VIP", Price: decimal.RequireFromString("150000.00")},
		CulturalSelections: map[string]string{
			"meal": "vegetarian",
		},
	}
}

func TestTicketStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewTicketStore(openTestDB(t), observability.NewLogger())

	want := testTicket("tkt-1", "usr-1")
	require.NoError(t, store.Put(ctx, want))

	got, err := store.Get(ctx, "tkt-1")
	require.NoError(t, err)

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.EventID, got.EventID)
	assert.Equal(t, want.OwnerID, got.OwnerID)
	assert.Equal(t, want.TierID, got.TierID)
	assert.Equal(t, want.QRCode, got.QRCode)
	assert.Equal(t, want.BackupCode, got.BackupCode)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), got.BackupCode)
	assert.Equal(t, want.Status, got.Status)
	assert.True(t, want.PurchaseDate.Equal(got.PurchaseDate))
	assert.Nil(t, got.UsedAt)
	assert.Equal(t, want.EventDetails, got.EventDetails)
	assert.Equal(t, want.TierDetails.Name, got.TierDetails.Name)
	assert.True(t, want.TierDetails.Price.Equal(got.TierDetails.Price))
	assert.Equal(t, want.CulturalSelections, got.CulturalSelections)
}

func TestTicketStoreRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	store := NewTicketStore(openTestDB(t), observability.NewLogger())

	bad := testTicket("tkt-1", "usr-1")
	bad.BackupCode = "12ab56"
	err := store.Put(ctx, bad)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	// Nothing was written.
	_, err = store.Get(ctx, "tkt-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTicketStoreBatchCompleteness(t *testing.T) {
	ctx := context.Background()
	store := NewTicketStore(openTestDB(t), observability.NewLogger())

	var batch []domain.Ticket
	for _, id := range []string{"tkt-1", "tkt-2", "tkt-3", "tkt-4", "tkt-5"} {
		batch = append(batch, testTicket(id, "usr-1"))
	}
	require.NoError(t, store.PutBatch(ctx, batch))

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	for _, want := range batch {
		got, err := store.Get(ctx, want.ID)
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
	}
}

func TestTicketStoreBatchAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := NewTicketStore(openTestDB(t), observability.NewLogger())

	good := testTicket("tkt-1", "usr-1")
	bad := testTicket("tkt-2", "usr-1")
	bad.QRCode = ""
	err := store.PutBatch(ctx, []domain.Ticket{good, bad})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestTicketStoreUpdatePersistence(t *testing.T) {
	ctx := context.Background()
	store := NewTicketStore(openTestDB(t), observability.NewLogger())

	original := testTicket("tkt-1", "usr-1")
	require.NoError(t, store.Put(ctx, original))

	usedAt := time.Date(2026, 3, 14, 19, 2, 11, 0, time.UTC)
	updated := original
	updated.Status = domain.TicketUsed
	updated.UsedAt = &usedAt
	require.NoError(t, store.Put(ctx, updated))

	got, err := store.Get(ctx, "tkt-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketUsed, got.Status)
	require.NotNil(t, got.UsedAt)
	assert.True(t, usedAt.Equal(*got.UsedAt))

	// No other field changed as a side effect.
	assert.Equal(t, original.QRCode, got.QRCode)
	assert.Equal(t, original.BackupCode, got.BackupCode)
	assert.Equal(t, original.EventDetails, got.EventDetails)
}

func TestTicketStoreOwnerAndStatusLookup(t *testing.T) {
	ctx := context.Background()
	store := NewTicketStore(openTestDB(t), observability.NewLogger())

	mine := testTicket("tkt-1", "usr-1")
	theirs := testTicket("tkt-2", "usr-2")
	used := testTicket("tkt-3", "usr-1")
	used.Status = domain.TicketUsed
	require.NoError(t, store.PutBatch(ctx, []domain.Ticket{mine, theirs, used}))

	byOwner, err := store.GetByOwner(ctx, "usr-1")
	require.NoError(t, err)
	assert.Len(t, byOwner, 2)

	byStatus, err := store.GetByStatus(ctx, domain.TicketUsed)
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "tkt-3", byStatus[0].ID)
}

func TestTicketStoreDeletionFinality(t *testing.T) {
	ctx := context.Background()
	store := NewTicketStore(openTestDB(t), observability.NewLogger())

	require.NoError(t, store.Put(ctx, testTicket("tkt-1", "usr-1")))
	require.NoError(t, store.Put(ctx, testTicket("tkt-2", "usr-1")))

	require.NoError(t, store.Delete(ctx, "tkt-1"))

	_, err := store.Get(ctx, "tkt-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "tkt-2", all[0].ID)

	assert.ErrorIs(t, store.Delete(ctx, "tkt-1"), domain.ErrNotFound)
}

func TestTicketStoreClear(t *testing.T) {
	ctx := context.Background()
	store := NewTicketStore(openTestDB(t), observability.NewLogger())

	require.NoError(t, store.Put(ctx, testTicket("tkt-1", "usr-1")))
	require.NoError(t, store.Clear(ctx))

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStorageInfo(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := NewTicketStore(db, observability.NewLogger())

	require.NoError(t, store.Put(ctx, testTicket("tkt-1", "usr-1")))

	info, err := store.StorageInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, info.TicketCount)
	assert.Greater(t, info.BytesUsed, int64(0))
	assert.Equal(t, int64(64<<20), info.BytesQuota)
	assert.False(t, info.NearLimit)
}

func TestStorageInfoNearLimit(t *testing.T) {
	ctx := context.Background()
	// Tiny quota so a single page crosses the 90% threshold.
	db, err := Open(ctx, filepath.Join(t.TempDir(), "wallet.db"), 1024)
	require.NoError(t, err)
	defer db.Close()
	store := NewTicketStore(db, observability.NewLogger())

	// Near-limit never blocks the write.
	require.NoError(t, store.Put(ctx, testTicket("tkt-1", "usr-1")))

	info, err := store.StorageInfo(ctx)
	require.NoError(t, err)
	assert.True(t, info.NearLimit)

	got, err := store.Get(ctx, "tkt-1")
	require.NoError(t, err)
	assert.Equal(t, "tkt-1", got.ID)
}
