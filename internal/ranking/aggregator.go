// Package ranking turns the ledger into a net-purchase ranking of wallets.
package ranking

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"netbuy-ranker/internal/classify"
	"netbuy-ranker/internal/domain"
	"netbuy-ranker/internal/observability"
	"netbuy-ranker/internal/storage"
)

// AggregatorOptions contains configuration for creating an Aggregator.
type AggregatorOptions struct {
	Swaps      classify.SwapSet
	StartBlock int64
	Logger     zerolog.Logger
}

// Aggregator computes rankings from a ledger. It holds no state between passes.
type Aggregator struct {
	swaps      classify.SwapSet
	startBlock int64
	logger     zerolog.Logger
}

// NewAggregator creates a new ranking aggregator.
func NewAggregator(opts AggregatorOptions) *Aggregator {
	swaps := opts.Swaps
	if swaps == nil {
		swaps = classify.NewSwapSet()
	}
	return &Aggregator{
		swaps:      swaps,
		startBlock: opts.StartBlock,
		logger:     opts.Logger.With().Str("component", "aggregator").Logger(),
	}
}

// Result is the outcome of one aggregation pass.
type Result struct {
	Rankings     []domain.WalletStats
	Categories   map[domain.Category]int // records per category, whole ledger
	Records      int
	Reclassified int // records whose stored category changed in this pass
}

// Compute loads the whole ledger, refreshes stored categories and ranks every wallet.
// Only categories that changed are written back, followed by one Flush.
func (a *Aggregator) Compute(ctx context.Context, ledger storage.LedgerStore) (*Result, error) {
	records, err := ledger.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	categories := make(map[domain.Category]int)
	changed := make(map[string]domain.Category)
	for _, r := range records {
		c := classify.Classify(r.FromAddress, r.ToAddress, a.swaps)
		categories[c]++
		if r.Category != c {
			changed[r.ID] = c
		}
	}

	if len(changed) > 0 {
		if err := ledger.SetCategories(ctx, changed); err != nil {
			return nil, fmt.Errorf("store categories: %w", err)
		}
		if err := ledger.Flush(ctx); err != nil {
			return nil, fmt.Errorf("flush ledger: %w", err)
		}
	}

	rankings := Rank(records, a.swaps, a.startBlock)

	counts := make(map[string]int, len(categories))
	for c, n := range categories {
		counts[c.String()] = n
	}
	observability.RecordRanking(len(rankings), counts)

	a.logger.Debug().
		Int("records", len(records)).
		Int("reclassified", len(changed)).
		Int("wallets", len(rankings)).
		Msg("ranking computed")

	return &Result{
		Rankings:     rankings,
		Categories:   categories,
		Records:      len(records),
		Reclassified: len(changed),
	}, nil
}
