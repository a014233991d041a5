package fetcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/newsgrid/harvester/internal/pipeline"
)

// Strategy runs the two-tier fetch: the static tier first, and on any
// static failure the rendered tier when one is configured. The rendered
// fetcher may be nil, in which case static failures are final.
type Strategy struct {
	static   pipeline.Fetcher
	rendered pipeline.Fetcher
	logger   *zap.Logger
}

// NewStrategy wires the tiers together. Pass rendered as nil to disable the
// fallback.
func NewStrategy(static, rendered pipeline.Fetcher, logger *zap.Logger) *Strategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Strategy{static: static, rendered: rendered, logger: logger}
}

// Fetch returns an outcome that always names the tier that produced it, so
// failures are attributed to the last method attempted.
func (s *Strategy) Fetch(ctx context.Context, url string) pipeline.Outcome {
	start := time.Now()

	doc, err := s.static.Fetch(ctx, url)
	if err == nil {
		return pipeline.Outcome{
			Document: doc,
			Method:   pipeline.MethodStatic,
			Elapsed:  time.Since(start),
		}
	}
	if s.rendered == nil || ctx.Err() != nil {
		return pipeline.Outcome{
			Method:  pipeline.MethodStatic,
			Elapsed: time.Since(start),
			Err:     err,
		}
	}

	s.logger.Debug("static fetch failed, falling back to rendering",
		zap.String("url", url),
		zap.String("kind", string(pipeline.KindOf(err))),
		zap.Error(err),
	)

	doc, err = s.rendered.Fetch(ctx, url)
	return pipeline.Outcome{
		Document: doc,
		Method:   pipeline.MethodRendered,
		Elapsed:  time.Since(start),
		Err:      err,
	}
}

// Close shuts down any tier that holds resources.
func (s *Strategy) Close() error {
	type closer interface{ Close() error }

	var firstErr error
	for _, f := range []pipeline.Fetcher{s.static, s.rendered} {
		if c, ok := f.(closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
