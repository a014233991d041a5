// Package static implements the first-tier fetcher using gocolly. It is the
// cheap path: a plain HTTP GET, no JavaScript execution.
package static

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/newsgrid/harvester/internal/fetcher"
	"github.com/newsgrid/harvester/internal/pipeline"
)

// Config controls collector behavior and the retry policy.
type Config struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
}

// Fetcher fetches a URL with Colly and parses the body. Transient transport
// failures are retried with exponential backoff; HTTP error statuses and
// invalid content are terminal for this tier.
type Fetcher struct {
	cfg           Config
	validator     *fetcher.Validator
	baseCollector *colly.Collector
	logger        *zap.Logger

	// sleep is swapped out in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

var _ pipeline.Fetcher = (*Fetcher)(nil)

// New builds a static fetcher.
func New(cfg Config, validator *fetcher.Validator, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if validator == nil {
		validator = fetcher.NewValidator(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		validator:     validator,
		baseCollector: c,
		logger:        logger,
		sleep:         ctxSleep,
	}
}

// Fetch gets the URL, retrying transient failures up to MaxRetries attempts.
// The backoff before attempt n is BaseDelay * 2^(n-1).
func (f *Fetcher) Fetch(ctx context.Context, url string) (*pipeline.Document, error) {
	var lastErr error
	for attempt := 0; attempt < f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := f.cfg.BaseDelay << (attempt - 1)
			f.logger.Debug("retrying static fetch",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
			)
			if err := f.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		doc, err := f.fetchOnce(ctx, url)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if pipeline.KindOf(err) != pipeline.FailureTransient {
			return nil, err
		}
	}
	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (*pipeline.Document, error) {
	var (
		body       []byte
		statusCode int
		finalURL   string
		fetchErr   error
	)

	collector := f.baseCollector.Clone()
	collector.IgnoreRobotsTxt = true
	// the clone shares the base collector's visited store, and retries hit
	// the same URL again
	collector.AllowURLRevisit = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		finalURL = r.Request.URL.String()
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = err
	})

	visitErr, err := f.runCollector(ctx, collector, url)
	if err != nil {
		return nil, err
	}
	if fetchErr == nil {
		fetchErr = visitErr
	}
	if fetchErr != nil {
		return nil, classify(statusCode, fetchErr)
	}
	if finalURL == "" {
		finalURL = url
	}

	root, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, pipeline.NewFetchError(pipeline.FailureTerminal, pipeline.MethodStatic,
			"parse response body", err)
	}

	doc := &pipeline.Document{
		URL:        finalURL,
		StatusCode: statusCode,
		HTML:       string(body),
		Root:       root,
	}
	if err := f.validator.Validate(doc); err != nil {
		return nil, pipeline.NewFetchError(pipeline.FailureContentInvalid, pipeline.MethodStatic,
			err.Error(), nil)
	}
	return doc, nil
}

// runCollector drives the visit while honoring context cancellation. The
// visit error is returned separately so the caller can classify it against
// the captured status code.
func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) (error, error) {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("static fetch canceled: %w", ctx.Err())
	case err := <-done:
		return err, nil
	}
}

// classify maps a collector failure onto a failure kind. HTTP error statuses
// will not improve on retry; everything else at the transport layer might.
func classify(statusCode int, err error) error {
	if statusCode >= http.StatusBadRequest {
		return pipeline.NewFetchError(pipeline.FailureTerminal, pipeline.MethodStatic,
			fmt.Sprintf("http status %d", statusCode), err)
	}
	return pipeline.NewFetchError(pipeline.FailureTransient, pipeline.MethodStatic,
		"request failed", err)
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
