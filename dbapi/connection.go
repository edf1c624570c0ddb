package dbapi

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ohnitiel/upsql/client"
	"ohnitiel/upsql/dberr"
	"ohnitiel/upsql/query"
)

// Connection owns the credentials, the API address and the default
// timeout, and hands out cursors.
type Connection struct {
	engine  *query.Engine
	timeout time.Duration
	log     *slog.Logger

	mu     sync.Mutex
	closed bool
}

func Connect(token, apiURL string, opts ...Option) (*Connection, error) {
	return ConnectContext(context.Background(), token, apiURL, opts...)
}

// ConnectContext is Connect with a context for the discovery call.
func ConnectContext(ctx context.Context, token, apiURL string, opts ...Option) (*Connection, error) {
	o := options{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}

	o.log.DebugContext(ctx, "Creating connection", "api_url", apiURL, "discover", o.discover)

	submitter := o.submitter
	if submitter == nil {
		s, err := newQueryAPI(ctx, token, apiURL, &o)
		if err != nil {
			return nil, dberr.Wrap(dberr.Operational, "Failed to initialize connection with the service API", err)
		}
		submitter = s
	}

	timeout, err := ParseTimeout(o.timeout)
	if err != nil {
		return nil, dberr.Wrap(dberr.Interface, "Timeout can't be parsed", err)
	}

	pollers := o.pollers
	if pollers == nil {
		pollOpts := []query.PollerOption{query.WithPollLogger(o.log)}
		if o.pollInterval > 0 {
			pollOpts = append(pollOpts, query.WithInterval(o.pollInterval))
		}
		pollers = query.NewPollerBuilder(pollOpts...)
	}

	return &Connection{
		engine:  query.NewEngine(submitter, pollers, query.WithLogger(o.log), query.WithObserver(o.observer)),
		timeout: timeout,
		log:     o.log,
	}, nil
}

func newQueryAPI(ctx context.Context, token, apiURL string, o *options) (*client.QueryAPI, error) {
	reqOpts := []client.RequesterOption{client.WithRequesterLogger(o.log)}
	if o.httpClient != nil {
		reqOpts = append(reqOpts, client.WithHTTPClient(o.httpClient))
	}

	if o.discover {
		base, err := client.GetBaseURL(ctx, apiURL, token, reqOpts...)
		if err != nil {
			return nil, err
		}
		o.log.DebugContext(ctx, "API address discovered", "base_url", base)
		apiURL = base
	}

	req, err := client.NewRequester(apiURL, client.NewTokenAuthFiller(token), reqOpts...)
	if err != nil {
		return nil, err
	}
	return client.NewQueryAPI(req, o.log), nil
}

func (c *Connection) Cursor() (*Cursor, error) {
	if c.Closed() {
		return nil, errConnectionClosed
	}
	cur := newCursor(c)
	c.log.Debug("Cursor created", "cursor", cur.id)
	return cur, nil
}

// Close marks the connection closed. Cursors already handed out keep
// working until they are closed themselves.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.log.Debug("Connection closed")
	}
	c.closed = true
	return nil
}

func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) Commit() error {
	return dberr.New(dberr.NotSupported, "Commit is not supported")
}

func (c *Connection) Rollback() error {
	return dberr.New(dberr.NotSupported, "Rollback is not supported")
}

func (c *Connection) Timeout() time.Duration {
	return c.timeout
}

// Query runs sql with the connection timeout. Faults are returned in their
// inner kinds; cursors translate them.
func (c *Connection) Query(ctx context.Context, sql string) (*query.RowStream, error) {
	if c.Closed() {
		return nil, errConnectionClosed
	}
	return c.engine.Execute(ctx, sql, c.timeout)
}
