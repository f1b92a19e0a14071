package notify

import (
	"context"
	"sync"

	"netbuy-ranker/internal/domain"
)

// Recorder keeps every published snapshot in memory. Used by tests.
type Recorder struct {
	mu        sync.RWMutex
	snapshots []*domain.RankingSnapshot
	err       error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes subsequent publishes return err without recording.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// PublishSnapshot records a copy of snap.
func (r *Recorder) PublishSnapshot(_ context.Context, snap *domain.RankingSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	r.snapshots = append(r.snapshots, snap.Clone())
	return nil
}

// Snapshots returns the recorded snapshots in publish order.
func (r *Recorder) Snapshots() []*domain.RankingSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*domain.RankingSnapshot(nil), r.snapshots...)
}
