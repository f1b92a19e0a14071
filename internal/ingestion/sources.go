package ingestion

import (
	"context"

	"netbuy-ranker/internal/domain"
)

// PageFetcher provides transfer pages from an upstream feed, newest first.
type PageFetcher interface {
	// FetchPage returns the records of the 1-indexed page. An empty slice means
	// the feed is exhausted.
	FetchPage(ctx context.Context, page int) ([]*domain.TransferRecord, error)
}
