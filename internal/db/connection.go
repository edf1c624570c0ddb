package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ohnitiel/upsql/dbapi"
	"ohnitiel/upsql/dberr"
	"ohnitiel/upsql/internal/locale"
)

const fetchBatchSize = 500

// Connection is a profile's connection, or the error that prevented
// opening it.
type Connection struct {
	name    string
	conn    *dbapi.Connection
	err     error
	backoff func(attempt int) time.Duration
}

func (c *Connection) Name() string {
	return c.name
}

func (c *Connection) Err() error {
	return c.err
}

// Cursor opens a cursor on the profile's connection.
func (c *Connection) Cursor() (*dbapi.Cursor, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.conn.Cursor()
}

// Check runs a trivial query on the profile. It will attempt up to
// maxAttempts (at least once) to handle transient errors; authentication and
// usage faults are not retried.
func (c *Connection) Check(ctx context.Context, maxAttempts uint8) error {
	if c.err != nil {
		return c.err
	}

	attempts := max(int(maxAttempts), 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		_, err = c.ExecuteQuery(ctx, "SELECT 1")
		if err == nil {
			return nil
		}

		slog.WarnContext(ctx, locale.L.Logs.CheckFailedAttempt,
			"profile", c.name,
			"attempt", attempt,
			"max_attempts", attempts,
			"error", err,
		)

		if errors.Is(err, dberr.Auth) || errors.Is(err, dberr.Interface) || attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff(attempt)):
		}
	}

	return fmt.Errorf("profile %s failed the check: %w", c.name, err)
}

// ExecuteQuery runs query and drains every row.
func (c *Connection) ExecuteQuery(ctx context.Context, query string) (*ResultSet, error) {
	if ctx.Err() != nil {
		slog.ErrorContext(ctx, "Context already cancelled", "profile", c.name)
		return nil, ctx.Err()
	}
	if c.err != nil {
		return nil, c.err
	}

	start := time.Now()

	cur, err := c.conn.Cursor()
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	if _, err := cur.Execute(ctx, query); err != nil {
		slog.ErrorContext(ctx, "Error running query", "profile", c.name, "request_id", dberr.RequestIDOf(err), "error", err)
		return nil, err
	}

	results, err := getQueryResults(ctx, cur)
	if err != nil {
		slog.ErrorContext(ctx, "Error fetching rows", "profile", c.name, "error", err)
		return nil, err
	}
	results.Duration = time.Since(start)

	return results, nil
}

func getQueryResults(ctx context.Context, cur *dbapi.Cursor) (*ResultSet, error) {
	desc, err := cur.Description()
	if err != nil {
		return nil, err
	}

	results := &ResultSet{
		Columns: make([]Column, len(desc)),
		Rows:    make([][]any, 0, 100),
	}
	for i, col := range desc {
		results.Columns[i] = Column{Ordinal: i, Name: col.Name, Type: col.TypeCode}
	}

	for {
		batch, err := cur.FetchMany(ctx, fetchBatchSize)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}

		for _, row := range batch {
			if row.IsMessage() {
				results.Messages = append(results.Messages, row.Message)
				continue
			}
			results.Rows = append(results.Rows, row.Values)
			results.RowCount++
		}
	}

	results.ensureColumns()

	return results, nil
}

func defaultBackoff(attempt int) time.Duration {
	return time.Second * time.Duration(attempt*2)
}
