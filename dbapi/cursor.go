package dbapi

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"ohnitiel/upsql/dberr"
	"ohnitiel/upsql/query"
)

type Row = query.Row

// ColumnDescription follows the classic seven item layout. Only Name and
// TypeCode are ever filled in.
type ColumnDescription struct {
	Name         string
	TypeCode     string
	DisplaySize  *int
	InternalSize *int
	Precision    *int
	Scale        *int
	NullOK       *bool
}

// Cursor runs one query at a time and serves its rows. Operations on a
// cursor are serialised.
type Cursor struct {
	id   string
	conn *Connection
	log  *slog.Logger

	mu          sync.Mutex
	closed      bool
	arraySize   int
	rowCount    int
	description []ColumnDescription
	stream      *query.RowStream
}

func newCursor(conn *Connection) *Cursor {
	id := uuid.NewString()
	return &Cursor{
		id:        id,
		conn:      conn,
		log:       conn.log.With("cursor", id),
		arraySize: 1,
		rowCount:  -1,
	}
}

func (c *Cursor) ID() string {
	return c.id
}

// Execute submits sql and waits for its first page. Bound parameters are
// not supported.
func (c *Cursor) Execute(ctx context.Context, sql string, params ...any) (*query.RowStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errCursorClosed
	}
	return c.execute(ctx, sql, params)
}

func (c *Cursor) execute(ctx context.Context, sql string, params []any) (*query.RowStream, error) {
	c.log.DebugContext(ctx, "Execute", "query", sql)

	if len(params) > 0 {
		return nil, notSupported("Parameterized execution")
	}

	c.stream, c.description, c.rowCount = nil, nil, -1

	stream, err := c.conn.Query(ctx, sql)
	if err != nil {
		c.log.DebugContext(ctx, "Execute failed", "error", err)
		return nil, translate(err)
	}

	first := stream.First()
	if first.IsData() {
		if !first.MoreFollow() {
			c.rowCount = len(first.Data)
		}
		c.description = make([]ColumnDescription, len(first.Columns))
		for i, col := range first.Columns {
			c.description[i] = ColumnDescription{Name: col.Name, TypeCode: col.ColumnType.Clazz}
		}
	}
	c.stream = stream

	return stream, nil
}

// ExecuteFile runs the statement stored at path.
func (c *Cursor) ExecuteFile(ctx context.Context, path string) (*query.RowStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errCursorClosed
	}

	c.log.DebugContext(ctx, "ExecuteFile", "path", path)

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, dberr.Wrap(dberr.Interface, fmt.Sprintf("Failed to execute the operation because %s is invalid", path), err)
	}
	return c.execute(ctx, string(b), nil)
}

// FetchOne returns the next row, or nil once the result is exhausted.
func (c *Cursor) FetchOne(ctx context.Context) (*Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.fetchOne(ctx)
}

// FetchMany returns up to n rows. n == 0 means the cursor's array size.
func (c *Cursor) FetchMany(ctx context.Context, n int) ([]Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ready(); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, dberr.New(dberr.InvalidOption, "fetch size should be a positive number")
	}
	if n == 0 {
		n = c.arraySize
	}

	rows := make([]Row, 0, n)
	for len(rows) < n {
		row, err := c.fetchOne(ctx)
		if err != nil {
			return rows, err
		}
		if row == nil {
			break
		}
		rows = append(rows, *row)
	}
	return rows, nil
}

func (c *Cursor) FetchAll(ctx context.Context) ([]Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ready(); err != nil {
		return nil, err
	}

	rows := []Row{}
	for {
		row, err := c.fetchOne(ctx)
		if err != nil {
			return rows, err
		}
		if row == nil {
			return rows, nil
		}
		rows = append(rows, *row)
	}
}

func (c *Cursor) ready() error {
	if c.closed {
		return errCursorClosed
	}
	if c.stream == nil {
		return errNoResult
	}
	return nil
}

func (c *Cursor) fetchOne(ctx context.Context) (*Row, error) {
	row, err := c.stream.Next(ctx)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err)
	}
	return &row, nil
}

func (c *Cursor) ArraySize() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, errCursorClosed
	}
	return c.arraySize, nil
}

func (c *Cursor) SetArraySize(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errCursorClosed
	}
	if n <= 0 {
		return dberr.New(dberr.InvalidOption, "arraysize should be a positive number")
	}
	c.arraySize = n
	return nil
}

// Description describes the columns of the first page, or returns nil when
// there is no result set.
func (c *Cursor) Description() ([]ColumnDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errCursorClosed
	}
	return c.description, nil
}

// RowCount is -1 unless the whole result fit in the first page.
func (c *Cursor) RowCount() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, errCursorClosed
	}
	return c.rowCount, nil
}

func (c *Cursor) ExecuteMany(ctx context.Context, sql string, params [][]any) error {
	return notSupported("ExecuteMany")
}

func (c *Cursor) CallProc(name string, params ...any) error {
	return notSupported("CallProc")
}

func (c *Cursor) NextSet() (bool, error) {
	return false, notSupported("NextSet")
}

func (c *Cursor) SetInputSizes(sizes ...any) error {
	return notSupported("SetInputSizes")
}

func (c *Cursor) SetOutputSize(size, column int) error {
	return notSupported("SetOutputSize")
}

func (c *Cursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.log.Debug("Cursor closed")
	}
	c.closed = true
	c.stream = nil
	return nil
}

func (c *Cursor) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
