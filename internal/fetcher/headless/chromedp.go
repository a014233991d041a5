// Package headless implements the second-tier fetcher with a real browser.
// It is the expensive path, used when the static tier cannot produce valid
// content because the page builds its DOM with JavaScript.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/newsgrid/harvester/internal/fetcher"
	"github.com/newsgrid/harvester/internal/pipeline"
)

// Config controls browser behavior.
type Config struct {
	UserAgent   string
	NavTimeout  time.Duration
	SettleDelay time.Duration
}

// Fetcher renders pages with chromedp and headless Chrome. One exec
// allocator is shared across fetches; each fetch gets its own tab.
type Fetcher struct {
	cfg         Config
	validator   *fetcher.Validator
	logger      *zap.Logger
	allocator   context.Context
	allocCancel context.CancelFunc
}

var _ pipeline.Fetcher = (*Fetcher)(nil)

// New creates the allocator for a headless browser. Chrome itself is only
// started on the first fetch; a missing binary surfaces there.
func New(cfg Config, validator *fetcher.Validator, logger *zap.Logger) *Fetcher {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 500 * time.Millisecond
	}
	if validator == nil {
		validator = fetcher.NewValidator(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		validator:   validator,
		logger:      logger,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}
}

// Close cancels the allocator context, shutting down the browser.
func (f *Fetcher) Close() error {
	f.allocCancel()
	return nil
}

// Fetch navigates in a fresh tab and returns the rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*pipeline.Document, error) {
	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavTimeout)
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	html, finalURL, err := f.render(taskCtx, ctx, url)
	if err != nil {
		return nil, classify(err)
	}

	status, responseURL := meta.snapshotWithFallbacks(url, finalURL)
	if status >= http.StatusBadRequest {
		return nil, pipeline.NewFetchError(pipeline.FailureTerminal, pipeline.MethodRendered,
			fmt.Sprintf("http status %d", status), nil)
	}

	root, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, pipeline.NewFetchError(pipeline.FailureTerminal, pipeline.MethodRendered,
			"parse rendered page", err)
	}

	doc := &pipeline.Document{
		URL:        responseURL,
		StatusCode: status,
		HTML:       html,
		Root:       root,
	}
	if err := f.validator.Validate(doc); err != nil {
		return nil, pipeline.NewFetchError(pipeline.FailureContentInvalid, pipeline.MethodRendered,
			err.Error(), nil)
	}
	return doc, nil
}

func (f *Fetcher) render(taskCtx, callerCtx context.Context, url string) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(f.cfg.SettleDelay),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}

	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(taskCtx, actions...)
	}()

	select {
	case <-callerCtx.Done():
		return "", "", callerCtx.Err()
	case err := <-done:
		if err != nil {
			return "", "", err
		}
		return html, finalURL, nil
	}
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// classify maps a chromedp failure onto a failure kind: deadlines may clear
// on a later attempt, everything else means the browser could not serve.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return pipeline.NewFetchError(pipeline.FailureTransient, pipeline.MethodRendered,
			"page load timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return pipeline.NewFetchError(pipeline.FailureUnavailable, pipeline.MethodRendered,
		"browser unavailable", err)
}

// responseMeta captures the document response event so the fetcher can
// report a real status code rather than assuming 200.
type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(resp.Response.Status)
	m.url = resp.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()

	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}
