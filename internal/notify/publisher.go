// Package notify fans completed ranking snapshots out to subscribers.
package notify

import (
	"context"
	"errors"

	"netbuy-ranker/internal/domain"
)

// Publisher announces a saved snapshot. Failures are reported to the caller,
// which decides whether they matter; the snapshot is already durable.
type Publisher interface {
	PublishSnapshot(ctx context.Context, snap *domain.RankingSnapshot) error
}

// Nop discards every snapshot.
type Nop struct{}

// PublishSnapshot does nothing.
func (Nop) PublishSnapshot(context.Context, *domain.RankingSnapshot) error { return nil }

// Multi publishes to every publisher, continuing past failures.
type Multi []Publisher

// PublishSnapshot calls each publisher in order and joins their errors.
func (m Multi) PublishSnapshot(ctx context.Context, snap *domain.RankingSnapshot) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.PublishSnapshot(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Publisher = Nop{}
	_ Publisher = Multi(nil)
)
