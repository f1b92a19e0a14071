package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletStats holds per-wallet totals for one aggregation pass.
type WalletStats struct {
	Address     string          `json:"address"`
	NetPurchase decimal.Decimal `json:"net_purchase"`
	BuyTotal    decimal.Decimal `json:"buy"`
	SellTotal   decimal.Decimal `json:"sell"`
}

// RankingSnapshot is the persisted ingestion state: when the ranking was computed,
// from which lower block bound, and the full sorted ranking.
type RankingSnapshot struct {
	ID           string        `json:"id"`
	TokenAddress string        `json:"token_address"`
	StartBlock   int64         `json:"start_block"`
	LastUpdated  time.Time     `json:"last_updated"`
	LedgerSize   int           `json:"ledger_size"`
	NewRecords   int           `json:"new_records"`
	Rankings     []WalletStats `json:"rankings"`
}

// Top returns at most n leading entries of the ranking. n <= 0 returns all of them.
func (s *RankingSnapshot) Top(n int) []WalletStats {
	if n <= 0 || n >= len(s.Rankings) {
		return s.Rankings
	}
	return s.Rankings[:n]
}

// Clone returns a deep copy of the snapshot.
func (s *RankingSnapshot) Clone() *RankingSnapshot {
	c := *s
	c.Rankings = append([]WalletStats(nil), s.Rankings...)
	return &c
}
