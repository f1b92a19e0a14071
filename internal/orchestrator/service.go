// Package orchestrator runs one ingestion and ranking pass end to end.
// It coordinates: tracker → aggregator → snapshot store → mirrors → publisher
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"netbuy-ranker/internal/domain"
	"netbuy-ranker/internal/ingestion"
	"netbuy-ranker/internal/notify"
	"netbuy-ranker/internal/observability"
	"netbuy-ranker/internal/ranking"
	"netbuy-ranker/internal/storage"
)

// ErrRankingUnavailable wraps every failure that prevents a run from producing a snapshot.
var ErrRankingUnavailable = errors.New("ranking unavailable this run")

// Options for creating a Service.
type Options struct {
	// Required
	Tracker    *ingestion.Tracker
	Aggregator *ranking.Aggregator
	Ledger     storage.LedgerStore
	Snapshots  storage.SnapshotStore // primary; a failed save fails the run

	// Optional
	Mirrors      map[string]storage.SnapshotStore // best-effort copies, keyed by name for logs
	Publisher    notify.Publisher
	TokenAddress string
	TopN         int // size of RunResult.Top; 0 means the whole ranking
	Logger       zerolog.Logger

	// Test hooks
	Now   func() time.Time
	NewID func() string
}

// Service serializes ingestion and ranking runs.
type Service struct {
	tracker      *ingestion.Tracker
	aggregator   *ranking.Aggregator
	ledger       storage.LedgerStore
	snapshots    storage.SnapshotStore
	mirrors      map[string]storage.SnapshotStore
	publisher    notify.Publisher
	tokenAddress string
	topN         int
	logger       zerolog.Logger
	now          func() time.Time
	newID        func() string

	group singleflight.Group
	runMu sync.Mutex
}

// New creates a new Service.
func New(opts Options) *Service {
	publisher := opts.Publisher
	if publisher == nil {
		publisher = notify.Nop{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}

	return &Service{
		tracker:      opts.Tracker,
		aggregator:   opts.Aggregator,
		ledger:       opts.Ledger,
		snapshots:    opts.Snapshots,
		mirrors:      opts.Mirrors,
		publisher:    publisher,
		tokenAddress: opts.TokenAddress,
		topN:         opts.TopN,
		logger:       opts.Logger.With().Str("component", "orchestrator").Logger(),
		now:          now,
		newID:        newID,
	}
}

// RunResult contains results from one run.
type RunResult struct {
	Snapshot *domain.RankingSnapshot
	Top      []domain.WalletStats
	Ingest   *ingestion.IngestResult
	Ranking  *ranking.Result
	Duration time.Duration
	Shared   bool // true if this caller joined a run started by another caller
}

// RunIngestionAndRank ingests new transfers, recomputes the ranking and saves a snapshot.
// At most one run is in flight; callers arriving meanwhile wait for it and share its
// result. The run uses the starting caller's ctx, so cancelling that ctx aborts the run at
// the next page boundary. A joining caller whose ctx ends just stops waiting.
//
// Any failure before the snapshot is saved returns an error wrapping ErrRankingUnavailable
// and leaves previously persisted state as it was.
func (s *Service) RunIngestionAndRank(ctx context.Context) (*RunResult, error) {
	ch := s.group.DoChan("run", func() (interface{}, error) {
		s.runMu.Lock()
		defer s.runMu.Unlock()
		return s.run(ctx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		result := *res.Val.(*RunResult)
		result.Shared = res.Shared
		return &result, nil
	}
}

func (s *Service) run(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	s.warnOnStaleCursor(ctx)

	// Phase 1: Ingest
	ing, err := s.tracker.Ingest(ctx)
	if err != nil {
		return nil, s.fail(start, "ingest", err)
	}

	// Phase 2: Rank
	ranked, err := s.aggregator.Compute(ctx, s.ledger)
	if err != nil {
		return nil, s.fail(start, "rank", err)
	}

	// Phase 3: Persist
	snap := &domain.RankingSnapshot{
		ID:           s.newID(),
		TokenAddress: s.tokenAddress,
		StartBlock:   s.tracker.StartBlock(),
		LastUpdated:  s.now().UTC(),
		LedgerSize:   ing.LedgerSize,
		NewRecords:   ing.Inserted,
		Rankings:     ranked.Rankings,
	}
	if err := s.snapshots.Save(ctx, snap); err != nil {
		return nil, s.fail(start, "save snapshot", err)
	}

	// Phase 4: Best-effort fan-out
	for name, mirror := range s.mirrors {
		if err := mirror.Save(ctx, snap); err != nil {
			observability.RecordPublishFailure(name)
			s.logger.Warn().Err(err).Str("mirror", name).Str("snapshot_id", snap.ID).Msg("snapshot mirror failed")
		}
	}
	if err := s.publisher.PublishSnapshot(ctx, snap); err != nil {
		observability.RecordPublishFailure("publisher")
		s.logger.Warn().Err(err).Str("snapshot_id", snap.ID).Msg("snapshot publish failed")
	}

	elapsed := time.Since(start)
	observability.RecordRun("success", elapsed)
	s.logger.Info().
		Str("snapshot_id", snap.ID).
		Int("new_records", ing.Inserted).
		Int("ledger_size", ing.LedgerSize).
		Int("wallets", len(ranked.Rankings)).
		Str("stop", string(ing.Stop)).
		Dur("took", elapsed).
		Msg("ranking updated")

	return &RunResult{
		Snapshot: snap,
		Top:      ranking.TopN(snap.Rankings, s.topN),
		Ingest:   ing,
		Ranking:  ranked,
		Duration: elapsed,
	}, nil
}

func (s *Service) fail(start time.Time, stage string, err error) error {
	observability.RecordRun("failure", time.Since(start))
	s.logger.Error().Err(err).Str("stage", stage).Msg("run failed, persisted state unchanged")
	return fmt.Errorf("%w: %s: %w", ErrRankingUnavailable, stage, err)
}

// warnOnStaleCursor logs when the last snapshot was computed from a different start block.
// The ledger may then hold records below the new bound, or lack records above it.
func (s *Service) warnOnStaleCursor(ctx context.Context) {
	prev, err := s.snapshots.Latest(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("could not read previous snapshot")
		}
		return
	}
	if prev.StartBlock != s.tracker.StartBlock() {
		s.logger.Warn().
			Int64("previous_start_block", prev.StartBlock).
			Int64("start_block", s.tracker.StartBlock()).
			Msg("start block changed since last run; use a full rescan to backfill")
	}
}

// LatestSnapshot returns the last saved snapshot or storage.ErrNotFound.
func (s *Service) LatestSnapshot(ctx context.Context) (*domain.RankingSnapshot, error) {
	return s.snapshots.Latest(ctx)
}

// History returns up to limit saved snapshots, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]*domain.RankingSnapshot, error) {
	return s.snapshots.History(ctx, limit)
}
