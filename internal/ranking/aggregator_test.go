package ranking

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netbuy-ranker/internal/classify"
	"netbuy-ranker/internal/domain"
	"netbuy-ranker/internal/storage/memory"
)

const swap = "0xswap"

func rec(id string, block int64, from, to, amount string) *domain.TransferRecord {
	return &domain.TransferRecord{
		ID:          id,
		FromAddress: from,
		ToAddress:   to,
		Amount:      decimal.RequireFromString(amount),
		BlockNumber: block,
	}
}

func TestRank_SingleBuy(t *testing.T) {
	got := Rank([]*domain.TransferRecord{
		rec("h1", 105, swap, "w1", "10"),
	}, classify.NewSwapSet(swap), 100)

	require.Len(t, got, 1)
	assert.Equal(t, "w1", got[0].Address)
	assert.Equal(t, "10", got[0].NetPurchase.String())
	assert.Equal(t, "10", got[0].BuyTotal.String())
	assert.True(t, got[0].SellTotal.IsZero())
}

func TestRank_ClassificationMatrix(t *testing.T) {
	swaps := classify.NewSwapSet("0xs1", "0xs2")
	records := []*domain.TransferRecord{
		rec("skip", 200, "0xs1", "0xs2", "100"),
		rec("buy", 199, "0xs1", "0xw1", "7"),
		rec("sell", 198, "0xw2", "0xs2", "3"),
		rec("unknown", 197, "0xw3", "0xw4", "50"),
		rec("sell2", 196, "0xw1", "0xs1", "2.5"),
	}

	got := Rank(records, swaps, 0)
	require.Len(t, got, 2)

	assert.Equal(t, "0xw1", got[0].Address)
	assert.Equal(t, "4.5", got[0].NetPurchase.String())
	assert.Equal(t, "7", got[0].BuyTotal.String())
	assert.Equal(t, "2.5", got[0].SellTotal.String())

	assert.Equal(t, "0xw2", got[1].Address)
	assert.Equal(t, "-3", got[1].NetPurchase.String())
}

func TestRank_ExcludesAtOrBelowStartBlock(t *testing.T) {
	got := Rank([]*domain.TransferRecord{
		rec("a", 101, swap, "w1", "1"),
		rec("b", 100, swap, "w1", "5"),
		rec("c", 50, swap, "w2", "5"),
	}, classify.NewSwapSet(swap), 100)

	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].NetPurchase.String())
}

func TestRank_TiesBrokenByAddress(t *testing.T) {
	got := Rank([]*domain.TransferRecord{
		rec("a", 10, swap, "0xc", "5"),
		rec("b", 10, swap, "0xa", "5"),
		rec("c", 10, swap, "0xb", "5"),
		rec("d", 10, swap, "0xd", "9"),
	}, classify.NewSwapSet(swap), 0)

	addrs := make([]string, 0, len(got))
	for _, s := range got {
		addrs = append(addrs, s.Address)
	}
	assert.Equal(t, []string{"0xd", "0xa", "0xb", "0xc"}, addrs)
}

func TestRank_Deterministic(t *testing.T) {
	swaps := classify.NewSwapSet(swap)
	var records []*domain.TransferRecord
	for i := 0; i < 200; i++ {
		wallet := []string{"0xw1", "0xw2", "0xw3", "0xw4"}[i%4]
		id := fmt.Sprintf("h%d", i)
		if i%3 == 0 {
			records = append(records, rec(id, int64(1000-i), wallet, swap, "1.1"))
		} else {
			records = append(records, rec(id, int64(1000-i), swap, wallet, "2.2"))
		}
	}

	want := Rank(records, swaps, 0)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 5; i++ {
		shuffled := append([]*domain.TransferRecord(nil), records...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := Rank(shuffled, swaps, 0)
		require.Len(t, got, len(want))
		for j := range want {
			assert.Equal(t, want[j].Address, got[j].Address)
			assert.True(t, want[j].NetPurchase.Equal(got[j].NetPurchase))
		}
	}
}

func TestTopN(t *testing.T) {
	stats := []domain.WalletStats{{Address: "a"}, {Address: "b"}, {Address: "c"}}
	assert.Len(t, TopN(stats, 2), 2)
	assert.Len(t, TopN(stats, 0), 3)
	assert.Len(t, TopN(stats, 10), 3)
}

func TestAggregator_Compute(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedgerStore()
	_, err := ledger.UpsertBulk(ctx, []*domain.TransferRecord{
		rec("h1", 105, swap, "w1", "10"),
		rec("h2", 104, "w2", swap, "4"),
		rec("h3", 103, "w3", "w4", "1"),
	})
	require.NoError(t, err)

	agg := NewAggregator(AggregatorOptions{Swaps: classify.NewSwapSet(swap), StartBlock: 100})

	res, err := agg.Compute(ctx, ledger)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Records)
	assert.Equal(t, 3, res.Reclassified)
	assert.Equal(t, 1, res.Categories[domain.CategoryBuy])
	assert.Equal(t, 1, res.Categories[domain.CategorySell])
	assert.Equal(t, 1, res.Categories[domain.CategoryUnknown])
	require.Len(t, res.Rankings, 2)
	assert.Equal(t, "w1", res.Rankings[0].Address)
	assert.Equal(t, "w2", res.Rankings[1].Address)

	all, err := ledger.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryBuy, all[0].Category)
	assert.Equal(t, domain.CategorySell, all[1].Category)
	assert.Equal(t, domain.CategoryUnknown, all[2].Category)

	// A second pass over an unchanged ledger rewrites nothing and yields the same ranking.
	again, err := agg.Compute(ctx, ledger)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Reclassified)
	require.Len(t, again.Rankings, len(res.Rankings))
	for i := range res.Rankings {
		assert.Equal(t, res.Rankings[i].Address, again.Rankings[i].Address)
		assert.True(t, res.Rankings[i].NetPurchase.Equal(again.Rankings[i].NetPurchase))
	}
}
