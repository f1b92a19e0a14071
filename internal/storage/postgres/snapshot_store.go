package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"netbuy-ranker/internal/domain"
	"netbuy-ranker/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Save inserts snap. Returns ErrDuplicateKey if its id exists.
func (s *SnapshotStore) Save(ctx context.Context, snap *domain.RankingSnapshot) error {
	if err := storage.ValidateSnapshot(snap); err != nil {
		return err
	}

	rankings, err := json.Marshal(snap.Rankings)
	if err != nil {
		return fmt.Errorf("marshal rankings: %w", err)
	}

	query := `
		INSERT INTO ranking_snapshots (
			id, token_address, start_block, last_updated, ledger_size, new_records, rankings
		) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
	`

	_, err = s.pool.Exec(ctx, query,
		snap.ID,
		snap.TokenAddress,
		snap.StartBlock,
		snap.LastUpdated,
		snap.LedgerSize,
		snap.NewRecords,
		string(rankings),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

const selectSnapshotSQL = `
	SELECT id, token_address, start_block, last_updated, ledger_size, new_records, rankings
	FROM ranking_snapshots
`

// Latest returns the most recently saved snapshot.
func (s *SnapshotStore) Latest(ctx context.Context) (*domain.RankingSnapshot, error) {
	row := s.pool.QueryRow(ctx, selectSnapshotSQL+` ORDER BY seq DESC LIMIT 1`)
	snap, err := scanSnapshot(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}
	return snap, nil
}

// History returns up to limit snapshots, newest first.
func (s *SnapshotStore) History(ctx context.Context, limit int) ([]*domain.RankingSnapshot, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.pool.Query(ctx, selectSnapshotSQL+` ORDER BY seq DESC LIMIT $1`, limit)
	} else {
		rows, err = s.pool.Query(ctx, selectSnapshotSQL+` ORDER BY seq DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var result []*domain.RankingSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		result = append(result, snap)
	}
	return result, rows.Err()
}

func scanSnapshot(row pgx.Row) (*domain.RankingSnapshot, error) {
	var (
		snap     domain.RankingSnapshot
		rankings []byte
	)
	if err := row.Scan(
		&snap.ID,
		&snap.TokenAddress,
		&snap.StartBlock,
		&snap.LastUpdated,
		&snap.LedgerSize,
		&snap.NewRecords,
		&rankings,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rankings, &snap.Rankings); err != nil {
		return nil, fmt.Errorf("%w: snapshot %s rankings: %v", storage.ErrCorruptStore, snap.ID, err)
	}
	return &snap, nil
}
