package query

import (
	"context"
	"errors"
	"sync"
	"time"

	"google.golang.org/api/iterator"
)

var errScriptExhausted = errors.New("script exhausted")

type step struct {
	page      *Page
	requestID string
	err       error
	// final marks the last page of the result.
	final bool
}

type fakeSource struct {
	mu    sync.Mutex
	steps []step
	calls int
	done  bool
	waits []time.Duration
}

func (s *fakeSource) Next(ctx context.Context, maxWait time.Duration) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.waits = append(s.waits, maxWait)
	if s.calls >= len(s.steps) {
		return Reply{}, errScriptExhausted
	}
	st := s.steps[s.calls]
	s.calls++

	if st.err != nil {
		return Reply{RequestID: st.requestID}, st.err
	}
	if st.final {
		s.done = true
	}
	return Reply{Page: st.page, RequestID: st.requestID}, nil
}

func (s *fakeSource) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *fakeSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeSubmitter struct {
	src   *fakeSource
	err   error
	calls int
	sql   []string
}

func (f *fakeSubmitter) Submit(ctx context.Context, sql string) (Source, error) {
	f.calls++
	f.sql = append(f.sql, sql)
	if f.err != nil {
		return nil, f.err
	}
	return f.src, nil
}

type slicePages struct {
	pages []*Page
	err   error
}

func (p *slicePages) NextPage(ctx context.Context) (*Page, error) {
	if len(p.pages) == 0 {
		if p.err != nil {
			return nil, p.err
		}
		return nil, iterator.Done
	}
	page := p.pages[0]
	p.pages = p.pages[1:]
	return page, nil
}

func notReady(requestID string) step {
	return step{requestID: requestID}
}

func ptr[T any](v T) *T {
	return &v
}
