package storage

import (
	"context"

	"netbuy-ranker/internal/domain"
)

// LedgerStore is the durable set of transfer records keyed by transaction id.
// Records are never deleted and, apart from Category, never modified.
type LedgerStore interface {
	// Upsert inserts r if its ID is unseen. An existing entry is left untouched.
	// Reports whether the record was inserted.
	Upsert(ctx context.Context, r *domain.TransferRecord) (bool, error)

	// UpsertBulk upserts records in one unit of work and returns how many were new.
	UpsertBulk(ctx context.Context, records []*domain.TransferRecord) (int, error)

	// Contains reports whether a record with the given id exists.
	Contains(ctx context.Context, id string) (bool, error)

	// All returns every record, ordered by block_number DESC, id ASC.
	All(ctx context.Context) ([]*domain.TransferRecord, error)

	// SetCategories overwrites the category of the given ids. Unknown ids are ignored.
	SetCategories(ctx context.Context, categories map[string]domain.Category) error

	// Count returns the number of records.
	Count(ctx context.Context) (int, error)

	// Flush makes pending writes durable. Backends that write through return nil.
	Flush(ctx context.Context) error
}

// SnapshotStore persists ranking snapshots.
type SnapshotStore interface {
	// Save stores a snapshot as the latest one.
	Save(ctx context.Context, s *domain.RankingSnapshot) error

	// Latest returns the most recent snapshot. Returns ErrNotFound if none was saved.
	Latest(ctx context.Context) (*domain.RankingSnapshot, error)

	// History returns up to limit snapshots, newest first. limit <= 0 means all retained.
	History(ctx context.Context, limit int) ([]*domain.RankingSnapshot, error)
}
