package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netbuy-ranker/internal/domain"
	"netbuy-ranker/internal/storage"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "ranker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func transfer(id string, block int64, amount string) *domain.TransferRecord {
	return &domain.TransferRecord{
		ID:          id,
		FromAddress: "0xfrom",
		ToAddress:   "0xto",
		Amount:      decimal.RequireFromString(amount),
		BlockNumber: block,
	}
}

func TestLedgerStore_UpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore(openTestDB(t))

	ok, err := store.Upsert(ctx, transfer("0xa", 10, "1.25"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Upsert(ctx, transfer("0xa", 99, "7"))
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(10), all[0].BlockNumber)
	assert.Equal(t, "1.25", all[0].Amount.String())
}

func TestLedgerStore_UpsertBulkAndOrder(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore(openTestDB(t))

	n, err := store.UpsertBulk(ctx, []*domain.TransferRecord{
		transfer("0xb", 5, "1"),
		transfer("0xa", 5, "1"),
		transfer("0xc", 9, "1"),
		transfer("0xa", 5, "1"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, err := store.All(ctx)
	require.NoError(t, err)
	ids := []string{all[0].ID, all[1].ID, all[2].ID}
	assert.Equal(t, []string{"0xc", "0xa", "0xb"}, ids)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	has, err := store.Contains(ctx, "0xb")
	require.NoError(t, err)
	assert.True(t, has)
	has, err = store.Contains(ctx, "0xz")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestLedgerStore_UpsertBulkRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore(openTestDB(t))

	_, err := store.UpsertBulk(ctx, []*domain.TransferRecord{transfer("0xa", 1, "1"), nil})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestLedgerStore_SetCategories(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore(openTestDB(t))
	_, err := store.UpsertBulk(ctx, []*domain.TransferRecord{transfer("0xa", 1, "1"), transfer("0xb", 2, "1")})
	require.NoError(t, err)

	require.NoError(t, store.SetCategories(ctx, map[string]domain.Category{
		"0xa":     domain.CategorySell,
		"0xghost": domain.CategoryBuy,
	}))
	require.NoError(t, store.Flush(ctx))

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, domain.Category(""), all[0].Category)
	assert.Equal(t, domain.CategorySell, all[1].Category)
}

func TestLedgerStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ranker.db")

	db, err := Open(path)
	require.NoError(t, err)
	_, err = NewLedgerStore(db).Upsert(ctx, transfer("0xa", 1, "3"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	count, err := NewLedgerStore(db).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSnapshotStore(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore(openTestDB(t))

	_, err := store.Latest(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, store.Save(ctx, &domain.RankingSnapshot{
			ID:          id,
			StartBlock:  100,
			LastUpdated: base.Add(time.Duration(i) * time.Minute),
			LedgerSize:  i + 1,
			Rankings: []domain.WalletStats{{
				Address:     "0xw",
				NetPurchase: decimal.NewFromInt(int64(i)),
				BuyTotal:    decimal.NewFromInt(int64(i)),
				SellTotal:   decimal.Zero,
			}},
		}))
	}

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s3", latest.ID)
	assert.Equal(t, 3, latest.LedgerSize)
	assert.True(t, latest.LastUpdated.Equal(base.Add(2*time.Minute)))
	require.Len(t, latest.Rankings, 1)
	assert.True(t, latest.Rankings[0].NetPurchase.Equal(decimal.NewFromInt(2)))

	hist, err := store.History(ctx, 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "s3", hist[0].ID)
	assert.Equal(t, "s2", hist[1].ID)

	all, err := store.History(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	err = store.Save(ctx, &domain.RankingSnapshot{ID: "bad"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSnapshotStore_DuplicateID(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore(openTestDB(t))
	snap := &domain.RankingSnapshot{ID: "s1", LastUpdated: time.Now()}

	require.NoError(t, store.Save(ctx, snap))
	assert.ErrorIs(t, store.Save(ctx, snap), storage.ErrDuplicateKey)
}
