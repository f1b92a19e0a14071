package ranking

import (
	"sort"

	"github.com/shopspring/decimal"

	"netbuy-ranker/internal/classify"
	"netbuy-ranker/internal/domain"
)

// Rank recomputes wallet totals from scratch over records with block_number > startBlock.
// Each record is classified against swaps; buys credit the receiver, sells the sender.
// The result is ordered by NetPurchase DESC, Address ASC.
func Rank(records []*domain.TransferRecord, swaps classify.SwapSet, startBlock int64) []domain.WalletStats {
	totals := make(map[string]*domain.WalletStats)

	for _, r := range records {
		if r.BlockNumber <= startBlock {
			continue
		}
		category := classify.Classify(r.FromAddress, r.ToAddress, swaps)
		wallet := classify.Wallet(r.FromAddress, r.ToAddress, category)
		if wallet == "" {
			continue
		}

		ws, ok := totals[wallet]
		if !ok {
			ws = &domain.WalletStats{
				Address:     wallet,
				NetPurchase: decimal.Zero,
				BuyTotal:    decimal.Zero,
				SellTotal:   decimal.Zero,
			}
			totals[wallet] = ws
		}

		switch category {
		case domain.CategoryBuy:
			ws.BuyTotal = ws.BuyTotal.Add(r.Amount)
		case domain.CategorySell:
			ws.SellTotal = ws.SellTotal.Add(r.Amount)
		}
	}

	result := make([]domain.WalletStats, 0, len(totals))
	for _, ws := range totals {
		ws.NetPurchase = ws.BuyTotal.Sub(ws.SellTotal)
		result = append(result, *ws)
	}
	SortStats(result)
	return result
}

// SortStats orders stats by NetPurchase DESC, Address ASC.
func SortStats(stats []domain.WalletStats) {
	sort.Slice(stats, func(i, j int) bool {
		if c := stats[i].NetPurchase.Cmp(stats[j].NetPurchase); c != 0 {
			return c > 0
		}
		return stats[i].Address < stats[j].Address
	})
}

// TopN returns at most n leading entries. n <= 0 returns all of them.
func TopN(stats []domain.WalletStats, n int) []domain.WalletStats {
	if n <= 0 || n >= len(stats) {
		return stats
	}
	return stats[:n]
}
