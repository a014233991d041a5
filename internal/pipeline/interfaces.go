package pipeline

import (
	"context"
	"time"
)

// Queue provides typed access to the three priority lanes.
type Queue interface {
	// Enqueue serializes the item and pushes it onto the lane selected by
	// its priority.
	Enqueue(ctx context.Context, item WorkItem) error
	// Dequeue drains lanes in priority order (high, medium, low). A zero
	// timeout is a non-blocking poll; a positive timeout blocks until an
	// item arrives or the timeout elapses. An empty queue yields (nil, nil).
	Dequeue(ctx context.Context, timeout time.Duration) (*WorkItem, error)
	// DequeueLane pops a single lane with the same timeout semantics.
	DequeueLane(ctx context.Context, lane Priority, timeout time.Duration) (*WorkItem, error)
	// Length reports the number of items waiting in a lane.
	Length(ctx context.Context, lane Priority) (int64, error)
	// Clear deletes the given lanes, or all lanes when none are given.
	Clear(ctx context.Context, lanes ...Priority) error
	// HealthCheck reports whether the queue transport is reachable.
	HealthCheck(ctx context.Context) bool
}

// ArticleStore persists article aggregates keyed by url_hash.
type ArticleStore interface {
	// Upsert inserts the article or, on a url_hash conflict, replaces the
	// stored record in full.
	Upsert(ctx context.Context, article Article) error
	FindByHash(ctx context.Context, urlHash string) (*Article, error)
	FindByID(ctx context.Context, id string) (*Article, error)
	FindByStatus(ctx context.Context, status Status, limit int) ([]Article, error)
	Statistics(ctx context.Context) (StoreStatistics, error)
	HealthCheck(ctx context.Context) bool
}

// StoreStatistics summarizes the stored article population.
type StoreStatistics struct {
	Total       int64   `json:"total"`
	Success     int64   `json:"success"`
	Failed      int64   `json:"failed"`
	Pending     int64   `json:"pending"`
	SuccessRate float64 `json:"success_rate"`
}

// Fetcher resolves a URL to a parsed document. Failures are reported as
// *FetchError so callers can distinguish transient, terminal, and
// content-invalid outcomes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Document, error)
}

// Hasher derives the stable content-address of a URL.
type Hasher interface {
	Hash(rawURL string) string
}

// Clock returns the current time (swappable in tests).
type Clock interface {
	Now() time.Time
}
