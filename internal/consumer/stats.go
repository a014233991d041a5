package consumer

import (
	"sync"
	"time"

	"github.com/newsgrid/harvester/internal/pipeline"
)

// Stats accumulates run counters. All methods are safe for concurrent use.
type Stats struct {
	mu          sync.Mutex
	processed   int
	succeeded   int
	failed      int
	skipped     int
	byPriority  map[pipeline.Priority]int
	byMethod    map[pipeline.Method]int
	startedAt   time.Time
	lastArticle time.Time
}

// Snapshot is a point-in-time copy of the run counters.
type Snapshot struct {
	Processed   int                       `json:"processed"`
	Succeeded   int                       `json:"succeeded"`
	Failed      int                       `json:"failed"`
	Skipped     int                       `json:"skipped"`
	ByPriority  map[pipeline.Priority]int `json:"by_priority"`
	ByMethod    map[pipeline.Method]int   `json:"by_method"`
	StartedAt   time.Time                 `json:"started_at"`
	LastArticle time.Time                 `json:"last_article"`
}

func newStats(startedAt time.Time) *Stats {
	return &Stats{
		byPriority: make(map[pipeline.Priority]int),
		byMethod:   make(map[pipeline.Method]int),
		startedAt:  startedAt,
	}
}

// RecordSuccess counts one successfully processed article.
func (s *Stats) RecordSuccess(priority pipeline.Priority, method pipeline.Method, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	s.succeeded++
	s.byPriority[priority]++
	s.byMethod[method]++
	s.lastArticle = at
}

// RecordFailure counts one failed article.
func (s *Stats) RecordFailure(priority pipeline.Priority, method pipeline.Method, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	s.failed++
	s.byPriority[priority]++
	s.byMethod[method]++
	s.lastArticle = at
}

// RecordSkip counts one item skipped by deduplication. Skips do not count
// toward the processed limit.
func (s *Stats) RecordSkip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped++
}

// Processed returns the number of articles processed so far.
func (s *Stats) Processed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed
}

// Snapshot copies the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	byPriority := make(map[pipeline.Priority]int, len(s.byPriority))
	for k, v := range s.byPriority {
		byPriority[k] = v
	}
	byMethod := make(map[pipeline.Method]int, len(s.byMethod))
	for k, v := range s.byMethod {
		byMethod[k] = v
	}
	return Snapshot{
		Processed:   s.processed,
		Succeeded:   s.succeeded,
		Failed:      s.failed,
		Skipped:     s.skipped,
		ByPriority:  byPriority,
		ByMethod:    byMethod,
		StartedAt:   s.startedAt,
		LastArticle: s.lastArticle,
	}
}
