package memory

import (
	"context"
	"sync"

	"netbuy-ranker/internal/domain"
	"netbuy-ranker/internal/storage"
)

// LedgerStore is an in-memory implementation of storage.LedgerStore.
type LedgerStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TransferRecord // keyed by transaction id
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		data: make(map[string]*domain.TransferRecord),
	}
}

// Upsert inserts r if its ID is unseen.
func (s *LedgerStore) Upsert(_ context.Context, r *domain.TransferRecord) (bool, error) {
	if err := storage.ValidateRecord(r); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(r), nil
}

// UpsertBulk upserts all records under one lock. Validation runs before any write.
func (s *LedgerStore) UpsertBulk(_ context.Context, records []*domain.TransferRecord) (int, error) {
	for _, r := range records {
		if err := storage.ValidateRecord(r); err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, r := range records {
		if s.insertLocked(r) {
			inserted++
		}
	}
	return inserted, nil
}

func (s *LedgerStore) insertLocked(r *domain.TransferRecord) bool {
	if _, exists := s.data[r.ID]; exists {
		return false
	}
	s.data[r.ID] = r.Clone()
	return true
}

// Contains reports whether id is present.
func (s *LedgerStore) Contains(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.data[id]
	return ok, nil
}

// All returns copies of every record, ordered by block DESC, id ASC.
func (s *LedgerStore) All(_ context.Context) ([]*domain.TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TransferRecord, 0, len(s.data))
	for _, r := range s.data {
		result = append(result, r.Clone())
	}
	storage.SortRecords(result)
	return result, nil
}

// SetCategories overwrites categories of known ids.
func (s *LedgerStore) SetCategories(_ context.Context, categories map[string]domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range categories {
		if r, ok := s.data[id]; ok {
			r.Category = c
		}
	}
	return nil
}

// Count returns the number of records.
func (s *LedgerStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}

// Flush is a no-op.
func (s *LedgerStore) Flush(_ context.Context) error {
	return nil
}

var _ storage.LedgerStore = (*LedgerStore)(nil)
