package clickhouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"netbuy-ranker/internal/domain"
	"netbuy-ranker/internal/observability"
	"netbuy-ranker/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using ClickHouse. Besides the snapshot
// row it writes one ranking_entries row per wallet.
type SnapshotStore struct {
	conn *Conn
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Save adds snap. Returns ErrDuplicateKey if its id exists.
func (s *SnapshotStore) Save(ctx context.Context, snap *domain.RankingSnapshot) error {
	if err := storage.ValidateSnapshot(snap); err != nil {
		return err
	}

	// ReplacingMergeTree would collapse a re-insert silently; keep append-only semantics.
	exists, err := s.exists(ctx, snap.ID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	rankings, err := json.Marshal(snap.Rankings)
	if err != nil {
		return fmt.Errorf("marshal rankings: %w", err)
	}

	start := time.Now()
	err = s.conn.Exec(ctx, `
		INSERT INTO ranking_snapshots (
			id, token_address, start_block, last_updated, ledger_size, new_records, rankings
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.TokenAddress, snap.StartBlock, snap.LastUpdated.UTC(),
		uint32(snap.LedgerSize), uint32(snap.NewRecords), string(rankings),
	)
	observability.RecordDBQuery("clickhouse", "insert_snapshot", start, err)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	if len(snap.Rankings) == 0 {
		return nil
	}
	return s.insertEntries(ctx, snap)
}

func (s *SnapshotStore) insertEntries(ctx context.Context, snap *domain.RankingSnapshot) (err error) {
	start := time.Now()
	defer func() { observability.RecordDBQuery("clickhouse", "insert_entries", start, err) }()

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO ranking_entries`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for i, w := range snap.Rankings {
		if err := batch.Append(
			snap.ID,
			snap.TokenAddress,
			snap.LastUpdated.UTC(),
			uint32(i+1),
			w.Address,
			w.NetPurchase.InexactFloat64(),
			w.BuyTotal.InexactFloat64(),
			w.SellTotal.InexactFloat64(),
		); err != nil {
			batch.Abort()
			return fmt.Errorf("append entry %d: %w", i, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func (s *SnapshotStore) exists(ctx context.Context, id string) (bool, error) {
	var count uint64
	if err := s.conn.QueryRow(ctx, `SELECT count() FROM ranking_snapshots WHERE id = ?`, id).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

const selectSnapshotSQL = `
	SELECT id, token_address, start_block, last_updated, ledger_size, new_records, rankings
	FROM ranking_snapshots FINAL
	ORDER BY last_updated DESC, id DESC
`

// Latest returns the snapshot with the newest last_updated.
func (s *SnapshotStore) Latest(ctx context.Context) (*domain.RankingSnapshot, error) {
	snaps, err := s.History(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, storage.ErrNotFound
	}
	return snaps[0], nil
}

// History returns up to limit snapshots, newest first.
func (s *SnapshotStore) History(ctx context.Context, limit int) ([]*domain.RankingSnapshot, error) {
	query := selectSnapshotSQL
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, uint64(limit))
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var result []*domain.RankingSnapshot
	for rows.Next() {
		var (
			snap       domain.RankingSnapshot
			ledgerSize uint32
			newRecords uint32
			rankings   string
		)
		if err := rows.Scan(&snap.ID, &snap.TokenAddress, &snap.StartBlock, &snap.LastUpdated,
			&ledgerSize, &newRecords, &rankings); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.LedgerSize = int(ledgerSize)
		snap.NewRecords = int(newRecords)
		if err := json.Unmarshal([]byte(rankings), &snap.Rankings); err != nil {
			return nil, fmt.Errorf("%w: snapshot %s rankings: %v", storage.ErrCorruptStore, snap.ID, err)
		}
		result = append(result, &snap)
	}
	return result, rows.Err()
}

// WalletPoint is one wallet's position in one historical snapshot.
type WalletPoint struct {
	SnapshotID  string
	LastUpdated time.Time
	Rank        uint32
	NetPurchase float64
}

// WalletHistory returns the ranking positions of address across snapshots, oldest first.
func (s *SnapshotStore) WalletHistory(ctx context.Context, tokenAddress, address string) ([]WalletPoint, error) {
	if address == "" {
		return nil, errors.New("address is required")
	}

	rows, err := s.conn.Query(ctx, `
		SELECT snapshot_id, last_updated, position, net_purchase
		FROM ranking_entries
		WHERE token_address = ? AND address = ?
		ORDER BY last_updated ASC`, tokenAddress, address)
	if err != nil {
		return nil, fmt.Errorf("query wallet history: %w", err)
	}
	defer rows.Close()

	var result []WalletPoint
	for rows.Next() {
		var p WalletPoint
		if err := rows.Scan(&p.SnapshotID, &p.LastUpdated, &p.Rank, &p.NetPurchase); err != nil {
			return nil, fmt.Errorf("scan wallet point: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
