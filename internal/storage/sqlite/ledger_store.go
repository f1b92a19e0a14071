package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"netbuy-ranker/internal/domain"
	"netbuy-ranker/internal/observability"
	"netbuy-ranker/internal/storage"
)

// LedgerStore implements storage.LedgerStore using SQLite. Writes are durable on return.
type LedgerStore struct {
	db *DB
}

// NewLedgerStore creates a new SQLite ledger store.
func NewLedgerStore(db *DB) *LedgerStore {
	return &LedgerStore{db: db}
}

const insertTransferSQL = `
	INSERT INTO transfers (id, from_address, to_address, amount, block_number, category)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING`

// Upsert inserts r unless its id already exists.
func (s *LedgerStore) Upsert(ctx context.Context, r *domain.TransferRecord) (bool, error) {
	if err := storage.ValidateRecord(r); err != nil {
		return false, err
	}

	start := time.Now()
	res, err := s.db.db.ExecContext(ctx, insertTransferSQL,
		r.ID, r.FromAddress, r.ToAddress, r.Amount.String(), r.BlockNumber, string(r.Category))
	observability.RecordDBQuery("sqlite", "upsert", start, err)
	if err != nil {
		return false, fmt.Errorf("insert transfer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpsertBulk inserts all unseen records in a single transaction.
func (s *LedgerStore) UpsertBulk(ctx context.Context, records []*domain.TransferRecord) (int, error) {
	for _, r := range records {
		if err := storage.ValidateRecord(r); err != nil {
			return 0, err
		}
	}
	if len(records) == 0 {
		return 0, nil
	}

	start := time.Now()
	inserted, err := s.upsertBulk(ctx, records)
	observability.RecordDBQuery("sqlite", "upsert_bulk", start, err)
	return inserted, err
}

func (s *LedgerStore) upsertBulk(ctx context.Context, records []*domain.TransferRecord) (int, error) {
	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertTransferSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range records {
		res, err := stmt.ExecContext(ctx, r.ID, r.FromAddress, r.ToAddress, r.Amount.String(), r.BlockNumber, string(r.Category))
		if err != nil {
			return 0, fmt.Errorf("insert transfer %s: %w", r.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// Contains reports whether id is present.
func (s *LedgerStore) Contains(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM transfers WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup transfer: %w", err)
	}
	return exists, nil
}

// All returns every record, ordered by block DESC, id ASC.
func (s *LedgerStore) All(ctx context.Context) ([]*domain.TransferRecord, error) {
	start := time.Now()
	rows, err := s.db.db.QueryContext(ctx, `
		SELECT id, from_address, to_address, amount, block_number, category
		FROM transfers
		ORDER BY block_number DESC, id ASC`)
	observability.RecordDBQuery("sqlite", "all", start, err)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()

	var result []*domain.TransferRecord
	for rows.Next() {
		var (
			r        domain.TransferRecord
			amount   string
			category string
		)
		if err := rows.Scan(&r.ID, &r.FromAddress, &r.ToAddress, &amount, &r.BlockNumber, &category); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		r.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("%w: transfer %s amount %q", storage.ErrCorruptStore, r.ID, amount)
		}
		r.Category = domain.Category(category)
		result = append(result, &r)
	}
	return result, rows.Err()
}

// SetCategories updates categories of known ids in one transaction.
func (s *LedgerStore) SetCategories(ctx context.Context, categories map[string]domain.Category) error {
	if len(categories) == 0 {
		return nil
	}

	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE transfers SET category = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare update: %w", err)
	}
	defer stmt.Close()

	for id, c := range categories {
		if _, err := stmt.ExecContext(ctx, string(c), id); err != nil {
			return fmt.Errorf("update category %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Count returns the number of records.
func (s *LedgerStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transfers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transfers: %w", err)
	}
	return n, nil
}

// Flush is a no-op: every write is committed on return.
func (s *LedgerStore) Flush(context.Context) error {
	return nil
}

var _ storage.LedgerStore = (*LedgerStore)(nil)
