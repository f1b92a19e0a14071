package memory

import (
	"context"
	"sync"

	"netbuy-ranker/internal/domain"
	"netbuy-ranker/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
// Keeps every saved snapshot, oldest first.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots []*domain.RankingSnapshot
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Save appends a copy of snap.
func (s *SnapshotStore) Save(_ context.Context, snap *domain.RankingSnapshot) error {
	if err := storage.ValidateSnapshot(snap); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots = append(s.snapshots, snap.Clone())
	return nil
}

// Latest returns the last saved snapshot.
func (s *SnapshotStore) Latest(_ context.Context) (*domain.RankingSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.snapshots) == 0 {
		return nil, storage.ErrNotFound
	}
	return s.snapshots[len(s.snapshots)-1].Clone(), nil
}

// History returns up to limit snapshots, newest first.
func (s *SnapshotStore) History(_ context.Context, limit int) ([]*domain.RankingSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.snapshots)
	if limit > 0 && limit < n {
		n = limit
	}

	result := make([]*domain.RankingSnapshot, 0, n)
	for i := len(s.snapshots) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, s.snapshots[i].Clone())
	}
	return result, nil
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)
