package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"netbuy-ranker/internal/domain"
	"netbuy-ranker/internal/observability"
	"netbuy-ranker/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL.
// Amounts are stored as NUMERIC and travel as text to keep full precision.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

const insertTransferSQL = `
	INSERT INTO transfers (id, from_address, to_address, amount, block_number, category)
	VALUES ($1, $2, $3, $4::numeric, $5, $6)
	ON CONFLICT (id) DO NOTHING
`

// Upsert inserts r unless its id already exists.
func (s *LedgerStore) Upsert(ctx context.Context, r *domain.TransferRecord) (bool, error) {
	if err := storage.ValidateRecord(r); err != nil {
		return false, err
	}

	start := time.Now()
	tag, err := s.pool.Exec(ctx, insertTransferSQL,
		r.ID, r.FromAddress, r.ToAddress, r.Amount.String(), r.BlockNumber, string(r.Category))
	observability.RecordDBQuery("postgres", "upsert", start, err)
	if err != nil {
		return false, fmt.Errorf("insert transfer: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpsertBulk inserts all unseen records in one transaction using a pipelined batch.
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
	observability.RecordDBQuery("postgres", "upsert_bulk", start, err)
	return inserted, err
}

func (s *LedgerStore) upsertBulk(ctx context.Context, records []*domain.TransferRecord) (int, error) {
	inserted := 0
	err := s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range records {
			batch.Queue(insertTransferSQL,
				r.ID, r.FromAddress, r.ToAddress, r.Amount.String(), r.BlockNumber, string(r.Category))
		}

		br := tx.SendBatch(ctx, batch)
		for _, r := range records {
			tag, err := br.Exec()
			if err != nil {
				br.Close()
				return fmt.Errorf("insert transfer %s: %w", r.ID, err)
			}
			inserted += int(tag.RowsAffected())
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// Contains reports whether id is present.
func (s *LedgerStore) Contains(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM transfers WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup transfer: %w", err)
	}
	return exists, nil
}

// All returns every record, ordered by block DESC, id ASC.
func (s *LedgerStore) All(ctx context.Context) ([]*domain.TransferRecord, error) {
	query := `
		SELECT id, from_address, to_address, amount::text, block_number, category
		FROM transfers
		ORDER BY block_number DESC, id ASC
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query)
	observability.RecordDBQuery("postgres", "all", start, err)
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
			return nil, fmt.Errorf("parse amount of %s: %w", r.ID, err)
		}
		r.Category = domain.Category(category)
		result = append(result, &r)
	}
	return result, rows.Err()
}

// SetCategories updates categories of known ids with a single statement.
func (s *LedgerStore) SetCategories(ctx context.Context, categories map[string]domain.Category) error {
	if len(categories) == 0 {
		return nil
	}

	ids := make([]string, 0, len(categories))
	values := make([]string, 0, len(categories))
	for id, c := range categories {
		ids = append(ids, id)
		values = append(values, string(c))
	}

	query := `
		UPDATE transfers AS t
		SET category = c.category
		FROM unnest($1::text[], $2::text[]) AS c(id, category)
		WHERE t.id = c.id
	`

	start := time.Now()
	_, err := s.pool.Exec(ctx, query, ids, values)
	observability.RecordDBQuery("postgres", "set_categories", start, err)
	if err != nil {
		return fmt.Errorf("update categories: %w", err)
	}
	return nil
}

// Count returns the number of records.
func (s *LedgerStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transfers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transfers: %w", err)
	}
	return n, nil
}

// Flush is a no-op: every write is committed on return.
func (s *LedgerStore) Flush(context.Context) error {
	return nil
}
