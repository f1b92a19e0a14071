// Package filestore keeps the ledger and ranking snapshots in JSON files.
// State is loaded fully on open and rewritten fully on flush.
package filestore

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"netbuy-ranker/internal/domain"
	"netbuy-ranker/internal/storage"
)

// fileRecord is the on-disk shape of one ledger entry; the map key is the transaction id.
type fileRecord struct {
	FromAddress     string          `json:"from_address"`
	ToAddress       string          `json:"to_address"`
	Amount          decimal.Decimal `json:"amount"`
	BlockNumber     int64           `json:"block_number"`
	TransactionType domain.Category `json:"transaction_type,omitempty"`
}

// LedgerStore is a JSON-file implementation of storage.LedgerStore.
// Writes stay in memory until Flush.
type LedgerStore struct {
	path   string
	logger zerolog.Logger

	mu    sync.RWMutex
	data  map[string]fileRecord
	dirty bool
}

// OpenLedger loads the ledger at path. A missing file yields an empty ledger; a corrupt
// one is logged, moved aside and also yields an empty ledger.
func OpenLedger(path string, logger zerolog.Logger) (*LedgerStore, error) {
	s := &LedgerStore{
		path:   path,
		logger: logger,
		data:   make(map[string]fileRecord),
	}

	found, err := readJSON(path, &s.data, logger)
	if err != nil {
		if !errors.Is(err, storage.ErrCorruptStore) {
			return nil, err
		}
		logger.Error().Err(err).Msg("ledger unreadable, starting with empty ledger")
		s.data = make(map[string]fileRecord)
	}
	if s.data == nil { // file contained JSON null
		s.data = make(map[string]fileRecord)
	}

	logger.Debug().Str("path", path).Bool("found", found).Int("records", len(s.data)).Msg("ledger loaded")
	return s, nil
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

// UpsertBulk upserts all records; nothing is written if any record is invalid.
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
	s.data[r.ID] = fileRecord{
		FromAddress:     r.FromAddress,
		ToAddress:       r.ToAddress,
		Amount:          r.Amount,
		BlockNumber:     r.BlockNumber,
		TransactionType: r.Category,
	}
	s.dirty = true
	return true
}

// Contains reports whether id is present.
func (s *LedgerStore) Contains(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.data[id]
	return ok, nil
}

// All returns every record, ordered by block DESC, id ASC.
func (s *LedgerStore) All(_ context.Context) ([]*domain.TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TransferRecord, 0, len(s.data))
	for id, fr := range s.data {
		result = append(result, &domain.TransferRecord{
			ID:          id,
			FromAddress: fr.FromAddress,
			ToAddress:   fr.ToAddress,
			Amount:      fr.Amount,
			BlockNumber: fr.BlockNumber,
			Category:    fr.TransactionType,
		})
	}
	storage.SortRecords(result)
	return result, nil
}

// SetCategories overwrites categories of known ids.
func (s *LedgerStore) SetCategories(_ context.Context, categories map[string]domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range categories {
		fr, ok := s.data[id]
		if !ok || fr.TransactionType == c {
			continue
		}
		fr.TransactionType = c
		s.data[id] = fr
		s.dirty = true
	}
	return nil
}

// Count returns the number of records.
func (s *LedgerStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}

// Flush rewrites the ledger file atomically if anything changed since the last flush.
func (s *LedgerStore) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	if err := writeJSONAtomic(s.path, s.data); err != nil {
		return err
	}
	s.dirty = false
	s.logger.Debug().Str("path", s.path).Int("records", len(s.data)).Msg("ledger flushed")
	return nil
}

var _ storage.LedgerStore = (*LedgerStore)(nil)
