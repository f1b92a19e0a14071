package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netbuy-ranker/internal/domain"
	"netbuy-ranker/internal/storage"
)

func rec(id string, block int64, amount string) *domain.TransferRecord {
	return &domain.TransferRecord{
		ID:          id,
		FromAddress: "0xfrom",
		ToAddress:   "0xto",
		Amount:      decimal.RequireFromString(amount),
		BlockNumber: block,
	}
}

func TestLedgerStore_MissingFileStartsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "transfers.json")

	s, err := OpenLedger(path, zerolog.Nop())
	require.NoError(t, err)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Flush with nothing pending does not create the file.
	require.NoError(t, s.Flush(ctx))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLedgerStore_FlushAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "transfers.json")

	s, err := OpenLedger(path, zerolog.Nop())
	require.NoError(t, err)

	inserted, err := s.UpsertBulk(ctx, []*domain.TransferRecord{
		rec("0xa", 100, "1.5"),
		rec("0xb", 99, "0.000001"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	require.NoError(t, s.SetCategories(ctx, map[string]domain.Category{"0xa": domain.CategoryBuy}))
	require.NoError(t, s.Flush(ctx))

	reopened, err := OpenLedger(path, zerolog.Nop())
	require.NoError(t, err)

	all, err := reopened.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "0xa", all[0].ID)
	assert.Equal(t, domain.CategoryBuy, all[0].Category)
	assert.True(t, all[0].Amount.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, "0xb", all[1].ID)
	assert.True(t, all[1].Amount.Equal(decimal.RequireFromString("0.000001")))
	assert.Equal(t, domain.Category(""), all[1].Category)
}

func TestLedgerStore_UpsertKeepsFirstObservation(t *testing.T) {
	ctx := context.Background()
	s, err := OpenLedger(filepath.Join(t.TempDir(), "transfers.json"), zerolog.Nop())
	require.NoError(t, err)

	ok, err := s.Upsert(ctx, rec("0xa", 100, "1"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Upsert(ctx, rec("0xa", 200, "5"))
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(100), all[0].BlockNumber)
}

func TestLedgerStore_CorruptFileRecoversEmpty(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "transfers.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s, err := OpenLedger(path, zerolog.Nop())
	require.NoError(t, err)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	matches, err := filepath.Glob(filepath.Join(dir, "transfers.json.corrupt-*"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	_, err = s.Upsert(ctx, rec("0xa", 1, "1"))
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))

	reopened, err := OpenLedger(path, zerolog.Nop())
	require.NoError(t, err)
	n, err = reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLedgerStore_ReadsNumericAmounts(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "transfers.json")
	raw := `{"0xabc": {"from_address": "0x1", "to_address": "0x2", "amount": 12.25, "block_number": 7, "transaction_type": "sell"}}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	s, err := OpenLedger(path, zerolog.Nop())
	require.NoError(t, err)

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "12.25", all[0].Amount.String())
	assert.Equal(t, domain.CategorySell, all[0].Category)
}

func TestLedgerStore_FlushLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := OpenLedger(filepath.Join(dir, "transfers.json"), zerolog.Nop())
	require.NoError(t, err)

	_, err = s.Upsert(ctx, rec("0xa", 1, "1"))
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "transfers.json", entries[0].Name())
}

func TestLedgerStore_InvalidRecord(t *testing.T) {
	s, err := OpenLedger(filepath.Join(t.TempDir(), "transfers.json"), zerolog.Nop())
	require.NoError(t, err)

	_, err = s.UpsertBulk(context.Background(), []*domain.TransferRecord{rec("0xa", 1, "1"), {ID: ""}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	n, _ := s.Count(context.Background())
	assert.Equal(t, 0, n)
}

func TestSnapshotStore_SaveAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rankings.json")

	s, err := OpenSnapshots(path, zerolog.Nop())
	require.NoError(t, err)

	_, err = s.Latest(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	hist, err := s.History(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, hist)

	snap := &domain.RankingSnapshot{
		ID:          "snap-1",
		StartBlock:  167429702,
		LastUpdated: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Rankings: []domain.WalletStats{{
			Address:     "0xw",
			NetPurchase: decimal.NewFromInt(3),
			BuyTotal:    decimal.NewFromInt(5),
			SellTotal:   decimal.NewFromInt(2),
		}},
	}
	require.NoError(t, s.Save(ctx, snap))

	reopened, err := OpenSnapshots(path, zerolog.Nop())
	require.NoError(t, err)

	got, err := reopened.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "snap-1", got.ID)
	assert.Equal(t, int64(167429702), got.StartBlock)
	assert.True(t, got.LastUpdated.Equal(snap.LastUpdated))
	require.Len(t, got.Rankings, 1)
	assert.True(t, got.Rankings[0].NetPurchase.Equal(decimal.NewFromInt(3)))
}

func TestSnapshotStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rankings.json")
	require.NoError(t, os.WriteFile(path, []byte("[1,2"), 0o644))

	s, err := OpenSnapshots(path, zerolog.Nop())
	require.NoError(t, err)

	_, err = s.Latest(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSnapshotStore_ReadsZonelessTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rankings.json")
	legacy := `{
  "last_updated": "2024-11-20T10:11:12.123456",
  "start_block": 167429702,
  "rankings": [{"address": "0xw", "net_purchase": 12.5, "buy": 15.0, "sell": 2.5}]
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	s, err := OpenSnapshots(path, zerolog.Nop())
	require.NoError(t, err)

	got, err := s.Latest(context.Background())
	require.NoError(t, err)
	assert.True(t, got.LastUpdated.Equal(time.Date(2024, 11, 20, 10, 11, 12, 123456000, time.UTC)))
	assert.Equal(t, int64(167429702), got.StartBlock)
	require.Len(t, got.Rankings, 1)
	assert.True(t, got.Rankings[0].NetPurchase.Equal(decimal.RequireFromString("12.5")))

	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSnapshotStore_WritesRFC3339(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rankings.json")
	s, err := OpenSnapshots(path, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, s.Save(context.Background(), &domain.RankingSnapshot{
		ID:          "snap-1",
		LastUpdated: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"last_updated": "2024-05-01T12:00:00Z"`)
}
