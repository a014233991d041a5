package static

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/newsgrid/harvester/internal/fetcher"
	"github.com/newsgrid/harvester/internal/pipeline"
)

const articlePage = `<!DOCTYPE html>
<html><head><title>Breaking News</title></head>
<body><p>story body</p></body></html>`

func newTestFetcher(maxRetries int) (*Fetcher, *[]time.Duration) {
	f := New(Config{
		UserAgent:  "harvester-test/1.0",
		Timeout:    2 * time.Second,
		MaxRetries: maxRetries,
		BaseDelay:  100 * time.Millisecond,
	}, fetcher.NewValidator(nil), nil)

	delays := &[]time.Duration{}
	f.sleep = func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return f, delays
}

func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	f, delays := newTestFetcher(3)
	doc, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.Equal(t, http.StatusOK, doc.StatusCode)
	require.Contains(t, doc.HTML, "Breaking News")
	require.Equal(t, "Breaking News", doc.Root.Find("title").Text())
	require.EqualValues(t, 1, hits.Load())
	require.Empty(t, *delays)
}

func TestFetchHTTPErrorIsTerminal(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f, delays := newTestFetcher(3)
	doc, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	require.Nil(t, doc)
	require.Equal(t, pipeline.FailureTerminal, pipeline.KindOf(err))
	require.EqualValues(t, 1, hits.Load(), "terminal failures must not retry")
	require.Empty(t, *delays)
}

func TestFetchInvalidContentIsNotRetried(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head></head><body>no title here</body></html>`))
	}))
	defer srv.Close()

	f, delays := newTestFetcher(3)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	require.Equal(t, pipeline.FailureContentInvalid, pipeline.KindOf(err))
	require.Empty(t, *delays)
}

func TestFetchRetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			// drop the connection mid-flight to force a transport error
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		_, _ = w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	f, delays := newTestFetcher(3)
	doc, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "Breaking News", doc.Root.Find("title").Text())
	require.EqualValues(t, 2, hits.Load())
	require.Equal(t, []time.Duration{100 * time.Millisecond}, *delays)
}

func TestFetchBackoffGrowsPerAttempt(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	f, delays := newTestFetcher(3)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	require.Equal(t, pipeline.FailureTransient, pipeline.KindOf(err))
	require.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
	}, *delays, "one backoff before each retry, doubling each time")
}

func TestFetchHonorsCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	f, _ := newTestFetcher(3)
	f.sleep = ctxSleep

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
}
