package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"netbuy-ranker/internal/domain"
	"netbuy-ranker/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using SQLite.
type SnapshotStore struct {
	db *DB
}

// NewSnapshotStore creates a new SQLite snapshot store.
func NewSnapshotStore(db *DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Save inserts snap. Returns storage.ErrDuplicateKey if its id was saved before.
func (s *SnapshotStore) Save(ctx context.Context, snap *domain.RankingSnapshot) error {
	if err := storage.ValidateSnapshot(snap); err != nil {
		return err
	}

	rankings, err := json.Marshal(snap.Rankings)
	if err != nil {
		return fmt.Errorf("marshal rankings: %w", err)
	}

	_, err = s.db.db.ExecContext(ctx, `
		INSERT INTO ranking_snapshots (id, token_address, start_block, last_updated, ledger_size, new_records, rankings)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.TokenAddress, snap.StartBlock, snap.LastUpdated.UTC().Format(time.RFC3339Nano),
		snap.LedgerSize, snap.NewRecords, string(rankings))
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

const selectSnapshotSQL = `
	SELECT id, token_address, start_block, last_updated, ledger_size, new_records, rankings
	FROM ranking_snapshots`

// Latest returns the most recently saved snapshot.
func (s *SnapshotStore) Latest(ctx context.Context) (*domain.RankingSnapshot, error) {
	row := s.db.db.QueryRowContext(ctx, selectSnapshotSQL+` ORDER BY seq DESC LIMIT 1`)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return snap, err
}

// History returns up to limit snapshots, newest first.
func (s *SnapshotStore) History(ctx context.Context, limit int) ([]*domain.RankingSnapshot, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.db.QueryContext(ctx, selectSnapshotSQL+` ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var result []*domain.RankingSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, snap)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row scanner) (*domain.RankingSnapshot, error) {
	var (
		snap        domain.RankingSnapshot
		lastUpdated string
		rankings    string
	)
	if err := row.Scan(&snap.ID, &snap.TokenAddress, &snap.StartBlock, &lastUpdated,
		&snap.LedgerSize, &snap.NewRecords, &rankings); err != nil {
		return nil, err
	}

	t, err := time.Parse(time.RFC3339Nano, lastUpdated)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot %s last_updated: %v", storage.ErrCorruptStore, snap.ID, err)
	}
	snap.LastUpdated = t

	if err := json.Unmarshal([]byte(rankings), &snap.Rankings); err != nil {
		return nil, fmt.Errorf("%w: snapshot %s rankings: %v", storage.ErrCorruptStore, snap.ID, err)
	}
	return &snap, nil
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)
