// Package consumer implements the ingestion loop: drain the queue in
// batches, fetch and extract each article, and persist the result keyed by
// its url_hash.
package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newsgrid/harvester/internal/extract"
	"github.com/newsgrid/harvester/internal/metrics"
	"github.com/newsgrid/harvester/internal/pipeline"
)

// FetchStrategy is the two-tier fetch entry point the consumer drives.
type FetchStrategy interface {
	Fetch(ctx context.Context, url string) pipeline.Outcome
	Close() error
}

// Config controls loop behavior. MaxArticles of zero means run until
// stopped.
type Config struct {
	BatchSize    int
	PollInterval time.Duration
	MaxArticles  int
}

// Consumer drains work items and turns them into stored articles. One URL
// failing never aborts the batch; the failure is recorded on the article
// itself.
type Consumer struct {
	queue    pipeline.Queue
	store    pipeline.ArticleStore
	strategy FetchStrategy
	hasher   pipeline.Hasher
	clock    pipeline.Clock
	cfg      Config
	logger   *zap.Logger
	stats    *Stats

	stop     chan struct{}
	stopOnce sync.Once
}

// New constructs a Consumer.
func New(
	queue pipeline.Queue,
	store pipeline.ArticleStore,
	strategy FetchStrategy,
	hasher pipeline.Hasher,
	clock pipeline.Clock,
	cfg Config,
	logger *zap.Logger,
) *Consumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		queue:    queue,
		store:    store,
		strategy: strategy,
		hasher:   hasher,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
		stats:    newStats(clock.Now()),
		stop:     make(chan struct{}),
	}
}

// Stats exposes the run counters for dashboards.
func (c *Consumer) Stats() *Stats {
	return c.stats
}

// Stop asks the loop to finish after the in-flight item. Safe to call more
// than once and from any goroutine.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Run blocks, processing batches until the context ends, Stop is called, or
// the article limit is reached. It releases the fetch strategy on the way
// out.
func (c *Consumer) Run(ctx context.Context) error {
	metrics.Init()
	c.logger.Info("consumer started",
		zap.Int("batch_size", c.cfg.BatchSize),
		zap.Duration("poll_interval", c.cfg.PollInterval),
		zap.Int("max_articles", c.cfg.MaxArticles),
	)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-c.stop:
			break loop
		default:
		}

		processed, err := c.runBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break loop
			}
			c.logger.Error("batch failed", zap.Error(err))
		}
		c.observeQueueDepth(ctx)

		if c.limitReached() {
			c.logger.Info("article limit reached", zap.Int("max_articles", c.cfg.MaxArticles))
			break loop
		}
		if processed == 0 {
			if !c.idle(ctx) {
				break loop
			}
		}
	}

	c.logFinalStats()
	if err := c.strategy.Close(); err != nil {
		return fmt.Errorf("close fetch strategy: %w", err)
	}
	return nil
}

// runBatch drains up to BatchSize items without blocking. It reports how
// many items it handled (including skips) so the caller can decide to idle.
func (c *Consumer) runBatch(ctx context.Context) (int, error) {
	handled := 0
	for i := 0; i < c.cfg.BatchSize; i++ {
		select {
		case <-ctx.Done():
			return handled, ctx.Err()
		case <-c.stop:
			return handled, nil
		default:
		}
		if c.limitReached() {
			return handled, nil
		}

		item, err := c.queue.Dequeue(ctx, 0)
		if err != nil {
			return handled, fmt.Errorf("dequeue: %w", err)
		}
		if item == nil {
			return handled, nil
		}
		handled++
		c.processItem(ctx, *item)
	}
	return handled, nil
}

// processItem runs the full pipeline for one work item. Panics from any
// stage are contained here so a single poisoned URL cannot kill the loop.
func (c *Consumer) processItem(ctx context.Context, item pipeline.WorkItem) {
	recorded := false
	defer func() {
		if r := recover(); r != nil {
			if !recorded {
				c.stats.RecordFailure(item.Priority, pipeline.MethodUnknown, c.clock.Now())
				metrics.ObserveArticle(pipeline.StatusFailed, pipeline.MethodUnknown, 0)
			}
			c.logger.Error("panic while processing item",
				zap.String("id", item.ID),
				zap.String("url", item.URL),
				zap.Any("panic", r),
			)
		}
	}()

	urlHash := c.hasher.Hash(item.URL)

	existing, err := c.store.FindByHash(ctx, urlHash)
	if err != nil {
		c.logger.Error("dedup lookup failed",
			zap.String("url", item.URL),
			zap.String("url_hash", urlHash),
			zap.Error(err),
		)
		return
	}
	if existing != nil && existing.Technical.Status == pipeline.StatusSuccess {
		c.stats.RecordSkip()
		metrics.ObserveSkip()
		c.logger.Debug("skipping already-harvested url",
			zap.String("url", item.URL),
			zap.String("url_hash", urlHash),
		)
		return
	}

	article := pipeline.NewArticle(item, urlHash)
	if existing != nil {
		// keep the failure history across re-enqueues of the same URL
		article.Technical.RetryCount = existing.Technical.RetryCount
	}

	out := c.strategy.Fetch(ctx, item.URL)
	now := c.clock.Now()
	if out.Err != nil {
		article.MarkFailed(out.Err.Error(), out.Method, out.Elapsed, now)
		c.stats.RecordFailure(item.Priority, out.Method, now)
		recorded = true
		c.logger.Warn("article fetch failed",
			zap.String("url", item.URL),
			zap.String("method", string(out.Method)),
			zap.String("kind", string(pipeline.KindOf(out.Err))),
			zap.Int("retry_count", article.Technical.RetryCount),
			zap.Error(out.Err),
		)
	} else {
		meta := extract.Metadata(out.Document)
		article.MarkSuccess(meta, out.Method, out.Elapsed, now)
		c.stats.RecordSuccess(item.Priority, out.Method, now)
		recorded = true
		c.logger.Info("article harvested",
			zap.String("url", item.URL),
			zap.String("title", meta.Title),
			zap.String("method", string(out.Method)),
			zap.Duration("elapsed", out.Elapsed),
		)
	}
	metrics.ObserveArticle(article.Technical.Status, out.Method, out.Elapsed)

	if err := c.store.Upsert(ctx, article); err != nil {
		c.logger.Error("article store failed",
			zap.String("url", item.URL),
			zap.String("url_hash", urlHash),
			zap.Error(err),
		)
	}
}

func (c *Consumer) limitReached() bool {
	return c.cfg.MaxArticles > 0 && c.stats.Processed() >= c.cfg.MaxArticles
}

// idle sleeps one poll interval; it returns false when the loop should
// stop instead of polling again.
func (c *Consumer) idle(ctx context.Context) bool {
	timer := time.NewTimer(c.cfg.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-c.stop:
		return false
	case <-timer.C:
		return true
	}
}

func (c *Consumer) observeQueueDepth(ctx context.Context) {
	for _, lane := range pipeline.Lanes() {
		depth, err := c.queue.Length(ctx, lane)
		if err != nil {
			continue
		}
		metrics.SetQueueDepth(lane, depth)
	}
}

func (c *Consumer) logFinalStats() {
	snap := c.stats.Snapshot()
	c.logger.Info("consumer stopped",
		zap.Int("processed", snap.Processed),
		zap.Int("succeeded", snap.Succeeded),
		zap.Int("failed", snap.Failed),
		zap.Int("skipped", snap.Skipped),
		zap.Duration("uptime", c.clock.Now().Sub(snap.StartedAt)),
	)
}
