// Package redisq implements the priority work queue on Redis lists. Each
// priority owns one list key; push is a left-insert and pop a right-remove,
// so every lane is FIFO. Cross-lane ordering is the dequeuer's job: Dequeue
// walks lanes high to medium to low.
package redisq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/newsgrid/harvester/internal/config"
	"github.com/newsgrid/harvester/internal/pipeline"
)

// connectTimeout bounds the connection probe at construction.
const connectTimeout = 5 * time.Second

// commands is the slice of the go-redis API the client needs; narrowed so
// tests can substitute a fake.
type commands interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	RPop(ctx context.Context, key string) *redis.StringCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Client provides typed push/pop against the three priority lanes.
type Client struct {
	rdb    commands
	closer func() error
	prefix string
	logger *zap.Logger
}

var _ pipeline.Queue = (*Client)(nil)

// New connects to Redis and verifies the connection before returning.
// The client does not retry transport errors; retries belong to the caller.
func New(cfg config.RedisConfig, logger *zap.Logger) (*Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:    rdb,
		closer: rdb.Close,
		prefix: cfg.QueuePrefix,
		logger: logger,
	}, nil
}

// NewWithCommands wires an existing command executor (primarily for tests).
func NewWithCommands(rdb commands, prefix string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{rdb: rdb, prefix: prefix, logger: logger}
}

func (c *Client) laneKey(lane pipeline.Priority) string {
	prefix := c.prefix
	if prefix == "" {
		prefix = "articles:queue"
	}
	return prefix + ":" + string(lane)
}

func (c *Client) laneKeys() []string {
	lanes := pipeline.Lanes()
	keys := make([]string, len(lanes))
	for i, lane := range lanes {
		keys[i] = c.laneKey(lane)
	}
	return keys
}

// Enqueue validates the item, serializes it, and pushes it onto the lane
// selected by its priority. Invalid items never reach the queue.
func (c *Client) Enqueue(ctx context.Context, item pipeline.WorkItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("refusing to enqueue invalid item: %w", err)
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode work item %s: %w", item.ID, err)
	}
	key := c.laneKey(item.Priority)
	if err := c.rdb.LPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("push to %s: %w", key, err)
	}
	c.logger.Debug("enqueued work item",
		zap.String("id", item.ID),
		zap.String("lane", string(item.Priority)),
	)
	return nil
}

// Dequeue drains lanes in priority order. With a zero timeout each lane is
// polled once; with a positive timeout an empty queue blocks on all three
// keys (Redis checks them in the order given, preserving lane priority).
func (c *Client) Dequeue(ctx context.Context, timeout time.Duration) (*pipeline.WorkItem, error) {
	for _, lane := range pipeline.Lanes() {
		item, err := c.DequeueLane(ctx, lane, 0)
		if err != nil {
			return nil, err
		}
		if item != nil {
			return item, nil
		}
	}
	if timeout <= 0 {
		return nil, nil
	}

	res, err := c.rdb.BRPop(ctx, timeout, c.laneKeys()...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blocking pop: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("blocking pop: unexpected reply of %d elements", len(res))
	}
	return c.decode(res[1])
}

// DequeueLane pops a single lane. A zero timeout is a non-blocking poll;
// an empty lane yields (nil, nil).
func (c *Client) DequeueLane(ctx context.Context, lane pipeline.Priority, timeout time.Duration) (*pipeline.WorkItem, error) {
	key := c.laneKey(lane)

	if timeout > 0 {
		res, err := c.rdb.BRPop(ctx, timeout, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("blocking pop from %s: %w", key, err)
		}
		if len(res) != 2 {
			return nil, fmt.Errorf("blocking pop from %s: unexpected reply of %d elements", key, len(res))
		}
		return c.decode(res[1])
	}

	payload, err := c.rdb.RPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop from %s: %w", key, err)
	}
	return c.decode(payload)
}

// decode surfaces malformed queue entries as errors rather than dropping
// them silently.
func (c *Client) decode(payload string) (*pipeline.WorkItem, error) {
	var item pipeline.WorkItem
	if err := json.Unmarshal([]byte(payload), &item); err != nil {
		return nil, fmt.Errorf("decode work item: %w", err)
	}
	return &item, nil
}

// Length reports the number of items waiting in a lane.
func (c *Client) Length(ctx context.Context, lane pipeline.Priority) (int64, error) {
	n, err := c.rdb.LLen(ctx, c.laneKey(lane)).Result()
	if err != nil {
		return 0, fmt.Errorf("lane length %s: %w", lane, err)
	}
	return n, nil
}

// Lengths reports every lane's depth.
func (c *Client) Lengths(ctx context.Context) (map[pipeline.Priority]int64, error) {
	out := make(map[pipeline.Priority]int64, 3)
	for _, lane := range pipeline.Lanes() {
		n, err := c.Length(ctx, lane)
		if err != nil {
			return nil, err
		}
		out[lane] = n
	}
	return out, nil
}

// Clear deletes the given lanes, or all lanes when none are given.
func (c *Client) Clear(ctx context.Context, lanes ...pipeline.Priority) error {
	keys := make([]string, 0, 3)
	if len(lanes) == 0 {
		keys = c.laneKeys()
	} else {
		for _, lane := range lanes {
			keys = append(keys, c.laneKey(lane))
		}
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear lanes: %w", err)
	}
	c.logger.Info("cleared queue lanes", zap.Strings("keys", keys))
	return nil
}

// HealthCheck reports whether the transport answers PING.
func (c *Client) HealthCheck(ctx context.Context) bool {
	return c.rdb.Ping(ctx).Err() == nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}
