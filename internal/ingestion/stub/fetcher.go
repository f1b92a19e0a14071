// Package stub provides in-memory page sources for tests.
package stub

import (
	"context"
	"sync"

	"netbuy-ranker/internal/domain"
)

// PageFetcher serves fixed pages. Page n (1-indexed) is pages[n-1]; pages past the
// end are empty. Implements ingestion.PageFetcher.
type PageFetcher struct {
	mu      sync.Mutex
	pages   [][]*domain.TransferRecord
	errs    map[int]error
	onFetch func(page int)
	calls   []int
}

// NewPageFetcher creates a stub serving the given pages.
func NewPageFetcher(pages ...[]*domain.TransferRecord) *PageFetcher {
	return &PageFetcher{pages: pages, errs: make(map[int]error)}
}

// FailOn makes requests for page return err.
func (f *PageFetcher) FailOn(page int, err error) *PageFetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[page] = err
	return f
}

// OnFetch registers a hook run after each request is recorded.
func (f *PageFetcher) OnFetch(fn func(page int)) *PageFetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onFetch = fn
	return f
}

// SetPages replaces the served pages, e.g. to simulate new upstream history between runs.
func (f *PageFetcher) SetPages(pages ...[]*domain.TransferRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages = pages
}

// Calls returns the pages requested so far, in order.
func (f *PageFetcher) Calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.calls...)
}

// FetchPage returns copies of the records of page.
func (f *PageFetcher) FetchPage(_ context.Context, page int) ([]*domain.TransferRecord, error) {
	f.mu.Lock()
	f.calls = append(f.calls, page)
	hook := f.onFetch
	err := f.errs[page]
	var src []*domain.TransferRecord
	if page >= 1 && page <= len(f.pages) {
		src = f.pages[page-1]
	}
	f.mu.Unlock()

	if hook != nil {
		hook(page)
	}
	if err != nil {
		return nil, err
	}

	result := make([]*domain.TransferRecord, 0, len(src))
	for _, r := range src {
		result = append(result, r.Clone())
	}
	return result, nil
}
