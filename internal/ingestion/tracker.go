// Package ingestion walks the upstream transfer feed and commits new records to the ledger.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"netbuy-ranker/internal/domain"
	"netbuy-ranker/internal/observability"
	"netbuy-ranker/internal/storage"
)

// StopReason tells why a walk ended.
type StopReason string

const (
	StopExhausted  StopReason = "exhausted"   // empty page returned
	StopStartBlock StopReason = "start_block" // record at or below the lower bound
	StopOverlap    StopReason = "overlap"     // record already in the ledger
	StopMaxPages   StopReason = "max_pages"   // page guard reached
)

// DefaultPageDelay is the pause between consecutive page requests.
const DefaultPageDelay = 2500 * time.Millisecond

// ErrNoFetcher is returned when a Tracker is used without a page source.
var ErrNoFetcher = errors.New("ingestion: no page fetcher configured")

// TrackerOptions contains configuration for creating a Tracker.
type TrackerOptions struct {
	Fetcher    PageFetcher
	Ledger     storage.LedgerStore
	StartBlock int64         // records with block_number <= StartBlock stop the walk
	PageDelay  time.Duration // pause before every page after the first; 0 disables it
	MaxPages   int           // 0 means unlimited
	FullRescan bool          // walk past known records instead of stopping at the first one
	Logger     zerolog.Logger
}

// Tracker decides, record by record, where the newly observed history ends.
type Tracker struct {
	fetcher    PageFetcher
	ledger     storage.LedgerStore
	startBlock int64
	pageDelay  time.Duration
	maxPages   int
	fullRescan bool
	logger     zerolog.Logger
}

// NewTracker creates a new tracker.
func NewTracker(opts TrackerOptions) *Tracker {
	pageDelay := opts.PageDelay
	if pageDelay < 0 {
		pageDelay = 0
	}

	return &Tracker{
		fetcher:    opts.Fetcher,
		ledger:     opts.Ledger,
		startBlock: opts.StartBlock,
		pageDelay:  pageDelay,
		maxPages:   opts.MaxPages,
		fullRescan: opts.FullRescan,
		logger:     opts.Logger.With().Str("component", "tracker").Logger(),
	}
}

// StartBlock returns the configured lower scan bound.
func (t *Tracker) StartBlock() int64 {
	return t.startBlock
}

// WalkResult is the outcome of one walk over the feed. Nothing in it is committed yet.
type WalkResult struct {
	Records    []*domain.TransferRecord // new records in feed order
	Pages      int                      // pages fetched, including the terminating one
	Duplicates int                      // records skipped because their id was already seen
	Stop       StopReason
	StopPage   int
	StopID     string // id of the record that ended the walk, if any
}

// IngestResult is the outcome of a committed walk.
type IngestResult struct {
	WalkResult
	Inserted   int // records the ledger accepted as new
	LedgerSize int
}

// Walk fetches pages 1, 2, ... and buffers records until a stop condition hits.
// Cancellation is honored only between pages; a page request already in flight
// completes (bounded by the fetcher's own timeout) before ctx is checked.
func (t *Tracker) Walk(ctx context.Context) (*WalkResult, error) {
	if t.fetcher == nil {
		return nil, ErrNoFetcher
	}
	if t.ledger == nil {
		return nil, fmt.Errorf("ingestion: no ledger configured")
	}

	result := &WalkResult{}
	seen := make(map[string]struct{})
	fetchCtx := context.WithoutCancel(ctx)

	for page := 1; ; page++ {
		if page > 1 {
			if err := t.pause(ctx); err != nil {
				return nil, err
			}
		} else if err := ctx.Err(); err != nil {
			return nil, err
		}

		if t.maxPages > 0 && page > t.maxPages {
			result.Stop = StopMaxPages
			result.StopPage = page - 1
			t.logger.Warn().Int("max_pages", t.maxPages).Msg("page guard reached before history ended")
			return result, nil
		}

		records, err := t.fetcher.FetchPage(fetchCtx, page)
		if err != nil {
			return nil, fmt.Errorf("walk aborted at page %d: %w", page, err)
		}
		result.Pages++

		if len(records) == 0 {
			result.Stop = StopExhausted
			result.StopPage = page
			return result, nil
		}

		stop, err := t.scanPage(ctx, records, seen, result)
		if err != nil {
			return nil, err
		}
		t.logger.Debug().
			Int("page", page).
			Int("records", len(records)).
			Int("buffered", len(result.Records)).
			Msg("page scanned")

		if stop != "" {
			result.Stop = stop
			result.StopPage = page
			return result, nil
		}
	}
}

// scanPage applies the stop conditions to records in page order. It returns the
// stop reason, or "" if the whole page was consumed.
func (t *Tracker) scanPage(ctx context.Context, records []*domain.TransferRecord, seen map[string]struct{}, result *WalkResult) (StopReason, error) {
	for _, r := range records {
		if r.BlockNumber <= t.startBlock {
			result.StopID = r.ID
			return StopStartBlock, nil
		}

		// Pagination drift can repeat an id on the next page within one walk.
		if _, dup := seen[r.ID]; dup {
			result.Duplicates++
			continue
		}

		known, err := t.ledger.Contains(ctx, r.ID)
		if err != nil {
			return "", fmt.Errorf("check ledger for %s: %w", r.ID, err)
		}
		if known {
			if !t.fullRescan {
				result.StopID = r.ID
				return StopOverlap, nil
			}
			result.Duplicates++
			continue
		}

		seen[r.ID] = struct{}{}
		result.Records = append(result.Records, r.Clone())
	}
	return "", nil
}

func (t *Tracker) pause(ctx context.Context) error {
	if t.pageDelay == 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(t.pageDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Ingest walks the feed and commits the buffered records in one UpsertBulk followed
// by one Flush. If the walk fails nothing is written.
func (t *Tracker) Ingest(ctx context.Context) (*IngestResult, error) {
	walk, err := t.Walk(ctx)
	if err != nil {
		return nil, err
	}

	result := &IngestResult{WalkResult: *walk}

	if len(walk.Records) > 0 {
		inserted, err := t.ledger.UpsertBulk(ctx, walk.Records)
		if err != nil {
			return nil, fmt.Errorf("commit %d records: %w", len(walk.Records), err)
		}
		result.Inserted = inserted
	}
	if err := t.ledger.Flush(ctx); err != nil {
		return nil, fmt.Errorf("flush ledger: %w", err)
	}

	size, err := t.ledger.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count ledger: %w", err)
	}
	result.LedgerSize = size

	observability.RecordWalk(string(walk.Stop), result.Inserted, walk.Duplicates, size)
	t.logger.Info().
		Str("stop", string(walk.Stop)).
		Int("pages", walk.Pages).
		Int("inserted", result.Inserted).
		Int("duplicates", walk.Duplicates).
		Int("ledger_size", size).
		Msg("ingestion committed")

	return result, nil
}
