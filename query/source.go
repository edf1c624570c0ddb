package query

import (
	"context"
	"time"
)

// Reply is the answer to a single page request. Page is nil while the
// service is still working on the query.
type Reply struct {
	Page      *Page
	RequestID string
}

func (r Reply) Ready() bool {
	return r.Page != nil
}

// Source yields the replies of one submitted query in delivery order.
type Source interface {
	// Next asks for the next reply, letting the service hold the request
	// for at most maxWait.
	Next(ctx context.Context, maxWait time.Duration) (Reply, error)

	// Done reports whether the final page has been delivered.
	Done() bool
}

// Submitter hands a query to the remote service.
type Submitter interface {
	Submit(ctx context.Context, sql string) (Source, error)
}
