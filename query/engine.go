package query

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/api/iterator"

	"ohnitiel/upsql/dberr"
)

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.log = logger
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(e *Engine) {
		if observer != nil {
			e.observer = observer
		}
	}
}

// Engine submits queries and binds each one to a poller. It keeps no state
// between calls.
type Engine struct {
	submitter Submitter
	pollers   PollerBuilder
	log       *slog.Logger
	observer  Observer
}

func NewEngine(submitter Submitter, pollers PollerBuilder, opts ...Option) *Engine {
	e := &Engine{
		submitter: submitter,
		pollers:   pollers,
		log:       slog.Default(),
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pollers == nil {
		e.pollers = NewPollerBuilder(WithPollLogger(e.log))
	}
	return e
}

// Execute submits sql and waits up to timeout for the first usable page.
// Faults from the submitter and the poller are returned unchanged.
func (e *Engine) Execute(ctx context.Context, sql string, timeout time.Duration) (*RowStream, error) {
	if timeout <= 0 {
		return nil, dberr.NewPendingResultTimeout("", nil)
	}

	e.log.DebugContext(ctx, "Submitting query", "timeout", timeout)

	src, err := e.submitter.Submit(ctx, sql)
	if err != nil {
		e.log.DebugContext(ctx, "Query submission failed", "error", err)
		return nil, err
	}
	e.observer.Submitted()

	pages := &polledPages{
		src:      src,
		timeout:  timeout,
		pollers:  e.pollers,
		observer: e.observer,
	}

	first, err := pages.poll(ctx)
	if err != nil {
		e.log.DebugContext(ctx, "No usable page", "error", err)
		return nil, err
	}

	e.log.DebugContext(ctx, "First page received",
		"data", first.IsData(),
		"rows", len(first.Data),
		"more", first.MoreFollow(),
	)

	return NewRowStream(first, pages), nil
}

// polledPages fetches every page through a fresh poller, so each page gets
// the full budget.
type polledPages struct {
	src      Source
	timeout  time.Duration
	pollers  PollerBuilder
	observer Observer
}

func (p *polledPages) NextPage(ctx context.Context) (*Page, error) {
	if p.src.Done() {
		return nil, iterator.Done
	}
	return p.poll(ctx)
}

func (p *polledPages) poll(ctx context.Context) (*Page, error) {
	start := time.Now()
	page, err := p.pollers(p.timeout).Poll(ctx, p.src)
	p.observer.Polled(time.Since(start), err)
	if err != nil {
		return nil, err
	}
	p.observer.PageReceived(page)
	return page, nil
}
