package redisq

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/newsgrid/harvester/internal/config"
	"github.com/newsgrid/harvester/internal/pipeline"
)

// fakeRedis is an in-memory stand-in for the narrow command surface the
// client uses. Index 0 of each list is the left end.
type fakeRedis struct {
	mu      sync.Mutex
	lists   map[string][]string
	pingErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{lists: map[string][]string{}}
}

func (f *fakeRedis) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		var s string
		switch val := v.(type) {
		case string:
			s = val
		case []byte:
			s = string(val)
		}
		f.lists[key] = append([]string{s}, f.lists[key]...)
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(f.lists[key])))
	return cmd
}

func (f *fakeRedis) RPop(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewStringCmd(ctx)
	list := f.lists[key]
	if len(list) == 0 {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(list[len(list)-1])
	f.lists[key] = list[:len(list)-1]
	return cmd
}

func (f *fakeRedis) BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewStringSliceCmd(ctx)
	for _, key := range keys {
		list := f.lists[key]
		if len(list) == 0 {
			continue
		}
		cmd.SetVal([]string{key, list[len(list)-1]})
		f.lists[key] = list[:len(list)-1]
		return cmd
	}
	cmd.SetErr(redis.Nil)
	return cmd
}

func (f *fakeRedis) LLen(ctx context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(f.lists[key])))
	return cmd
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, key := range keys {
		if _, ok := f.lists[key]; ok {
			delete(f.lists, key)
			n++
		}
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(n)
	return cmd
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if f.pingErr != nil {
		cmd.SetErr(f.pingErr)
		return cmd
	}
	cmd.SetVal("PONG")
	return cmd
}

func item(id string, prio pipeline.Priority) pipeline.WorkItem {
	return pipeline.WorkItem{
		ID:       id,
		URL:      "https://example.com/" + id,
		Source:   "test",
		Category: "news",
		Priority: prio,
	}
}

func TestEnqueueRejectsInvalidItem(t *testing.T) {
	t.Parallel()

	fake := newFakeRedis()
	q := NewWithCommands(fake, "articles:queue", nil)

	err := q.Enqueue(context.Background(), pipeline.WorkItem{ID: "bad", URL: "ftp://nope", Priority: pipeline.PriorityLow})
	require.Error(t, err)
	require.Empty(t, fake.lists)
}

func TestDequeuePriorityOrder(t *testing.T) {
	t.Parallel()

	q := NewWithCommands(newFakeRedis(), "articles:queue", nil)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, item("l1", pipeline.PriorityLow)))
	require.NoError(t, q.Enqueue(ctx, item("m1", pipeline.PriorityMedium)))
	require.NoError(t, q.Enqueue(ctx, item("h1", pipeline.PriorityHigh)))

	var got []string
	for {
		it, err := q.Dequeue(ctx, 0)
		require.NoError(t, err)
		if it == nil {
			break
		}
		got = append(got, it.ID)
	}
	require.Equal(t, []string{"h1", "m1", "l1"}, got)
}

func TestDequeueLaneIsFIFO(t *testing.T) {
	t.Parallel()

	q := NewWithCommands(newFakeRedis(), "articles:queue", nil)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, item("first", pipeline.PriorityHigh)))
	require.NoError(t, q.Enqueue(ctx, item("second", pipeline.PriorityHigh)))

	it, err := q.DequeueLane(ctx, pipeline.PriorityHigh, 0)
	require.NoError(t, err)
	require.Equal(t, "first", it.ID)

	it, err = q.DequeueLane(ctx, pipeline.PriorityHigh, 0)
	require.NoError(t, err)
	require.Equal(t, "second", it.ID)
}

func TestDequeueEmptyReturnsNil(t *testing.T) {
	t.Parallel()

	q := NewWithCommands(newFakeRedis(), "articles:queue", nil)

	it, err := q.Dequeue(context.Background(), 0)
	require.NoError(t, err)
	require.Nil(t, it)

	it, err = q.DequeueLane(context.Background(), pipeline.PriorityLow, 0)
	require.NoError(t, err)
	require.Nil(t, it)
}

func TestDequeueBlockingFallsBackToBRPop(t *testing.T) {
	t.Parallel()

	fake := newFakeRedis()
	q := NewWithCommands(fake, "articles:queue", nil)
	ctx := context.Background()

	// the fake's BRPop serves whatever is queued at call time
	require.NoError(t, q.Enqueue(ctx, item("m1", pipeline.PriorityMedium)))

	it, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, it)
	require.Equal(t, "m1", it.ID)

	// drained queue times out to (nil, nil)
	it, err = q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.Nil(t, it)
}

func TestDequeueSurfacesDecodeFailure(t *testing.T) {
	t.Parallel()

	fake := newFakeRedis()
	fake.lists["articles:queue:high"] = []string{"{not json"}
	q := NewWithCommands(fake, "articles:queue", nil)

	_, err := q.Dequeue(context.Background(), 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode work item")
}

func TestLengthAndClear(t *testing.T) {
	t.Parallel()

	q := NewWithCommands(newFakeRedis(), "articles:queue", nil)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, item("h1", pipeline.PriorityHigh)))
	require.NoError(t, q.Enqueue(ctx, item("h2", pipeline.PriorityHigh)))
	require.NoError(t, q.Enqueue(ctx, item("l1", pipeline.PriorityLow)))

	n, err := q.Length(ctx, pipeline.PriorityHigh)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	lengths, err := q.Lengths(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, lengths[pipeline.PriorityHigh])
	require.EqualValues(t, 0, lengths[pipeline.PriorityMedium])
	require.EqualValues(t, 1, lengths[pipeline.PriorityLow])

	require.NoError(t, q.Clear(ctx, pipeline.PriorityHigh))
	n, err = q.Length(ctx, pipeline.PriorityHigh)
	require.NoError(t, err)
	require.Zero(t, n)

	require.NoError(t, q.Clear(ctx))
	lengths, err = q.Lengths(ctx)
	require.NoError(t, err)
	for _, n := range lengths {
		require.Zero(t, n)
	}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	fake := newFakeRedis()
	q := NewWithCommands(fake, "articles:queue", nil)
	require.True(t, q.HealthCheck(context.Background()))

	fake.pingErr = context.DeadlineExceeded
	require.False(t, q.HealthCheck(context.Background()))
}

func TestNewRequiresAddress(t *testing.T) {
	t.Parallel()

	_, err := New(config.RedisConfig{}, nil)
	require.Error(t, err)
}
