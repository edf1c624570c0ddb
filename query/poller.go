package query

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"ohnitiel/upsql/dberr"
)

// DefaultPollInterval spaces consecutive requests for a result that is not
// ready yet.
const DefaultPollInterval = 500 * time.Millisecond

// Poller drives a Source until it produces a usable page.
type Poller interface {
	Poll(ctx context.Context, src Source) (*Page, error)
}

// PollerBuilder produces a Poller bound to a wait budget.
type PollerBuilder func(timeout time.Duration) Poller

type PollerOption func(*ResponsePoller)

func WithInterval(interval time.Duration) PollerOption {
	return func(p *ResponsePoller) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

func WithPollLogger(logger *slog.Logger) PollerOption {
	return func(p *ResponsePoller) {
		if logger != nil {
			p.log = logger
		}
	}
}

// ResponsePoller retries not-ready replies at a fixed interval until the
// budget runs out.
type ResponsePoller struct {
	timeout  time.Duration
	interval time.Duration
	log      *slog.Logger
}

func NewResponsePoller(timeout time.Duration, opts ...PollerOption) *ResponsePoller {
	p := &ResponsePoller{
		timeout:  timeout,
		interval: DefaultPollInterval,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewPollerBuilder returns a PollerBuilder producing ResponsePollers that
// share opts.
func NewPollerBuilder(opts ...PollerOption) PollerBuilder {
	return func(timeout time.Duration) Poller {
		return NewResponsePoller(timeout, opts...)
	}
}

func (p *ResponsePoller) Poll(ctx context.Context, src Source) (*Page, error) {
	if p.timeout <= 0 {
		return nil, dberr.NewPendingResultTimeout("", nil)
	}

	deadline := time.Now().Add(p.timeout)
	pollCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(p.interval), 1)
	// The first retry waits a full interval.
	limiter.Allow()

	var requestID string
	for attempt := 1; ; attempt++ {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, dberr.NewPendingResultTimeout(requestID, nil)
		}

		reply, err := src.Next(pollCtx, remaining)
		if reply.RequestID != "" {
			requestID = reply.RequestID
		}
		if err != nil {
			if ctx.Err() == nil && pollCtx.Err() != nil {
				return nil, dberr.NewPendingResultTimeout(requestID, err)
			}
			return nil, err
		}

		if reply.Ready() {
			return reply.Page, nil
		}

		p.log.DebugContext(ctx, "Result not ready yet",
			"attempt", attempt,
			"remaining", remaining,
			"request_id", requestID,
		)

		if err := limiter.Wait(pollCtx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, dberr.NewPendingResultTimeout(requestID, nil)
		}
	}
}
