package query

import (
	"context"
	"iter"

	"google.golang.org/api/iterator"
)

// Row is one output row. Data pages produce rows with Values; a message
// page produces a single row holding only its Message.
type Row struct {
	Values  []any
	Message string
}

func (r Row) IsMessage() bool {
	return r.Values == nil
}

// Pages yields the pages that follow the first one. NextPage returns
// iterator.Done once the result is exhausted.
type Pages interface {
	NextPage(ctx context.Context) (*Page, error)
}

// RowStream flattens a sequence of pages into rows. It is single pass and
// not safe for concurrent use.
type RowStream struct {
	first *Page
	rest  Pages

	page    *Page
	pos     int
	msgSent bool

	done bool
	err  error
}

func NewRowStream(first *Page, rest Pages) *RowStream {
	return &RowStream{first: first, rest: rest, page: first}
}

// First returns the page the stream was built from.
func (s *RowStream) First() *Page {
	return s.first
}

// Next returns the next row, iterator.Done when the stream is exhausted, or
// the fault that stopped it. Faults are sticky.
func (s *RowStream) Next(ctx context.Context) (Row, error) {
	for {
		if s.err != nil {
			return Row{}, s.err
		}
		if s.done {
			return Row{}, iterator.Done
		}

		if s.page != nil {
			if row, ok := s.take(); ok {
				return row, nil
			}
			s.page = nil
		}

		if s.rest == nil {
			s.done = true
			continue
		}

		page, err := s.rest.NextPage(ctx)
		if err == iterator.Done {
			s.done = true
			continue
		}
		if err != nil {
			s.err = err
			continue
		}
		s.page, s.pos, s.msgSent = page, 0, false
	}
}

// All ranges over the remaining rows. Iteration stops after the first fault.
func (s *RowStream) All(ctx context.Context) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for {
			row, err := s.Next(ctx)
			if err == iterator.Done {
				return
			}
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}

func (s *RowStream) take() (Row, bool) {
	if s.page.IsData() {
		if s.pos >= len(s.page.Data) {
			return Row{}, false
		}
		row := s.page.Data[s.pos]
		s.pos++
		if row == nil {
			row = []any{}
		}
		return Row{Values: row}, true
	}

	if s.msgSent || s.page.Message == "" {
		return Row{}, false
	}
	s.msgSent = true
	return Row{Message: s.page.Message}, true
}
