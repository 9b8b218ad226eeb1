package storage

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cruise-drop-alerts/internal/offering"
)

// newTestStore opens a Store inside a throwaway schema of the database named by
// CRUISEWATCH_TEST_DATABASE_DSN.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("CRUISEWATCH_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("CRUISEWATCH_TEST_DATABASE_DSN not set, skipping test")
	}
	ctx := context.Background()

	admin, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	if err := admin.Ping(ctx); err != nil {
		admin.Close()
		t.Skip("PostgreSQL is not available, skipping test")
	}

	schema := "cruisewatch_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+pgx.Identifier{schema}.Sanitize())
	require.NoError(t, err)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	poolConfig.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	require.NoError(t, err)

	store := NewStore(pool)
	t.Cleanup(func() {
		store.Close()
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+pgx.Identifier{schema}.Sanitize()+" CASCADE")
		admin.Close()
	})

	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestStoreSlots(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, found, err := store.ReadSlot(ctx, SlotLatest)
	require.NoError(t, err)
	assert.False(t, found)

	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cheap := sampleOffering("a", 0)
	cheap.Price = decimal.RequireFromString("1234.57")
	snap := offering.NewSnapshot([]offering.Offering{cheap, sampleOffering("b", 250)}, at)
	require.NoError(t, store.WriteSlot(ctx, SlotLatest, snap))

	got, found, err := store.ReadSlot(ctx, SlotLatest)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.UpdatedAt.Equal(at))
	require.Len(t, got.Offerings, 2)
	assert.Equal(t, "a", got.Offerings[0].Key)
	assert.True(t, got.Offerings[0].Price.Equal(decimal.RequireFromString("1234.57")))

	// a second write replaces the slot
	require.NoError(t, store.WriteSlot(ctx, SlotLatest, offering.NewSnapshot(nil, at.Add(time.Hour))))
	got, found, err = store.ReadSlot(ctx, SlotLatest)
	require.NoError(t, err)
	require.True(t, found)
	assert.Empty(t, got.Offerings)

	_, found, err = store.ReadSlot(ctx, SlotPrevious)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStoreDrops(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	precise := sampleDrop("a", base)
	precise.PriceFrom = decimal.RequireFromString("1199.99")
	precise.PriceTo = decimal.RequireFromString("949.95")
	require.NoError(t, store.InsertDrops(ctx, []offering.PriceDropEvent{
		precise,
		sampleDrop("b", base.Add(time.Hour)),
		sampleDrop("c", base.Add(2*time.Hour)),
	}))

	recent, err := store.ListRecentDrops(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].Key)
	assert.Equal(t, "b", recent[1].Key)

	between, err := store.ListDropsBetween(ctx, base, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, between, 2)
	assert.Equal(t, "a", between[0].Key)
	assert.Equal(t, "1199.99", between[0].PriceFrom.String())
	assert.Equal(t, "949.95", between[0].PriceTo.String())
	assert.Equal(t, time.UTC, between[0].DetectedAt.Location())
}

func TestStoreAdvisoryLock(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	key := time.Now().UnixNano()

	unlock, ok, err := store.TryAdvisoryLock(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = store.TryAdvisoryLock(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "a held lock must not be granted to another session")

	unlock()
	unlock2, ok, err := store.TryAdvisoryLock(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	unlock2()
}
