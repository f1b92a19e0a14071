package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"netbuy-ranker/internal/domain"
	"netbuy-ranker/internal/storage"
)

// SnapshotStore keeps the latest ranking snapshot in a JSON file:
// {last_updated, start_block, rankings, ...}. Only the latest snapshot is retained.
type SnapshotStore struct {
	path   string
	logger zerolog.Logger

	mu     sync.RWMutex
	latest *domain.RankingSnapshot
}

// naiveLayout is an ISO-8601 timestamp without a zone, as written by Python's
// datetime.isoformat() on a naive datetime. Such values are read as UTC.
const naiveLayout = "2006-01-02T15:04:05.999999999"

// fileTime reads RFC 3339 and zone-less timestamps and always writes RFC 3339.
type fileTime time.Time

func (t fileTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t))
}

func (t *fileTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*t = fileTime{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		*t = fileTime(parsed)
		return nil
	}
	parsed, err := time.ParseInLocation(naiveLayout, s, time.UTC)
	if err != nil {
		return err
	}
	*t = fileTime(parsed)
	return nil
}

// snapshotFile is the on-disk shape of a snapshot.
type snapshotFile struct {
	*domain.RankingSnapshot
	LastUpdated fileTime `json:"last_updated"`
}

// OpenSnapshots loads the snapshot file at path, tolerating a missing or corrupt file.
func OpenSnapshots(path string, logger zerolog.Logger) (*SnapshotStore, error) {
	s := &SnapshotStore{path: path, logger: logger}

	file := snapshotFile{RankingSnapshot: &domain.RankingSnapshot{}}
	found, err := readJSON(path, &file, logger)
	if err != nil {
		if !errors.Is(err, storage.ErrCorruptStore) {
			return nil, err
		}
		logger.Error().Err(err).Msg("ranking snapshot unreadable, starting without one")
		found = false
	}
	snap := file.RankingSnapshot
	snap.LastUpdated = time.Time(file.LastUpdated)
	if found && !snap.LastUpdated.IsZero() {
		s.latest = snap
	}
	return s, nil
}

// Save replaces the snapshot file atomically.
func (s *SnapshotStore) Save(_ context.Context, snap *domain.RankingSnapshot) error {
	if err := storage.ValidateSnapshot(snap); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file := snapshotFile{RankingSnapshot: snap, LastUpdated: fileTime(snap.LastUpdated)}
	if err := writeJSONAtomic(s.path, file); err != nil {
		return err
	}
	s.latest = snap.Clone()
	return nil
}

// Latest returns the stored snapshot or storage.ErrNotFound.
func (s *SnapshotStore) Latest(_ context.Context) (*domain.RankingSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.latest == nil {
		return nil, storage.ErrNotFound
	}
	return s.latest.Clone(), nil
}

// History returns the latest snapshot if any; the file layout keeps no older entries.
func (s *SnapshotStore) History(ctx context.Context, _ int) ([]*domain.RankingSnapshot, error) {
	latest, err := s.Latest(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []*domain.RankingSnapshot{latest}, nil
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)
