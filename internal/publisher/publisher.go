// Package publisher loads seed work items and pushes them onto the queue.
// Invalid entries are skipped with a warning; they never reach the queue.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newsgrid/harvester/internal/pipeline"
)

// SeedFile is the on-disk format: a single object wrapping the item list.
type SeedFile struct {
	Articles []pipeline.WorkItem `json:"articles"`
}

// Result counts what happened to a published batch.
type Result struct {
	Published int
	Skipped   int
}

// Publisher enqueues seed batches.
type Publisher struct {
	queue  pipeline.Queue
	logger *zap.Logger
}

// New constructs a Publisher.
func New(queue pipeline.Queue, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{queue: queue, logger: logger}
}

// LoadSeedFile reads and decodes a seed file.
func LoadSeedFile(path string) ([]pipeline.WorkItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed SeedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	if len(seed.Articles) == 0 {
		return nil, fmt.Errorf("seed file %s contains no articles", path)
	}
	return seed.Articles, nil
}

// PublishBatch enqueues every valid item. Items without an id get one
// assigned; items that fail validation are skipped and logged, and a queue
// transport error aborts the batch.
func (p *Publisher) PublishBatch(ctx context.Context, items []pipeline.WorkItem) (Result, error) {
	var res Result
	for _, item := range items {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		if err := item.Validate(); err != nil {
			res.Skipped++
			p.logger.Warn("skipping invalid seed item",
				zap.String("id", item.ID),
				zap.String("url", item.URL),
				zap.Error(err),
			)
			continue
		}
		if err := p.queue.Enqueue(ctx, item); err != nil {
			return res, fmt.Errorf("enqueue %s: %w", item.URL, err)
		}
		res.Published++
	}
	p.logger.Info("seed batch published",
		zap.Int("published", res.Published),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// PublishFile loads a seed file and enqueues its items.
func (p *Publisher) PublishFile(ctx context.Context, path string) (Result, error) {
	items, err := LoadSeedFile(path)
	if err != nil {
		return Result{}, err
	}
	return p.PublishBatch(ctx, items)
}
