package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"ohnitiel/upsql/dbapi"
)

// rowSource is the part of a cursor the printers read from.
type rowSource interface {
	Description() ([]dbapi.ColumnDescription, error)
	ArraySize() (int, error)
	FetchMany(ctx context.Context, n int) ([]dbapi.Row, error)
}

// printRows drains src into w. Message rows are printed as plain lines in
// both formats.
func printRows(ctx context.Context, w io.Writer, src rowSource, format string) error {
	desc, err := src.Description()
	if err != nil {
		return err
	}
	size, err := src.ArraySize()
	if err != nil {
		return err
	}

	var p rowPrinter
	if strings.ToLower(format) == "json" {
		p = newJSONPrinter(w, desc)
	} else {
		p = newTablePrinter(w, desc)
	}

	for {
		batch, err := src.FetchMany(ctx, size)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}
		for _, row := range batch {
			if err := p.print(row); err != nil {
				return err
			}
		}
	}

	return p.flush()
}

type rowPrinter interface {
	print(row dbapi.Row) error
	flush() error
}

// tablePrinter aligns rows in columns. Message rows break the table: pending
// rows are flushed before the message is written.
type tablePrinter struct {
	out    io.Writer
	tw     *tabwriter.Writer
	header []string
	rows   int
}

func newTablePrinter(w io.Writer, desc []dbapi.ColumnDescription) *tablePrinter {
	header := make([]string, len(desc))
	for i, col := range desc {
		header[i] = col.Name
	}
	return &tablePrinter{out: w, header: header}
}

func (p *tablePrinter) print(row dbapi.Row) error {
	if row.IsMessage() {
		if err := p.flushTable(); err != nil {
			return err
		}
		_, err := fmt.Fprintln(p.out, row.Message)
		return err
	}

	if p.tw == nil {
		p.tw = tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
		if len(p.header) > 0 {
			fmt.Fprintln(p.tw, strings.Join(p.header, "\t"))
		}
	}

	cells := make([]string, len(row.Values))
	for i, v := range row.Values {
		cells[i] = formatValue(v)
	}
	p.rows++
	_, err := fmt.Fprintln(p.tw, strings.Join(cells, "\t"))
	return err
}

func (p *tablePrinter) flushTable() error {
	if p.tw == nil {
		return nil
	}
	err := p.tw.Flush()
	p.tw = nil
	return err
}

func (p *tablePrinter) flush() error {
	if err := p.flushTable(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(p.out, "(%d rows)\n", p.rows)
	return err
}

// jsonPrinter writes one JSON object per line, keyed by column name.
type jsonPrinter struct {
	out     io.Writer
	enc     *json.Encoder
	columns []string
}

func newJSONPrinter(w io.Writer, desc []dbapi.ColumnDescription) *jsonPrinter {
	columns := make([]string, len(desc))
	for i, col := range desc {
		columns[i] = col.Name
	}
	return &jsonPrinter{out: w, enc: json.NewEncoder(w), columns: columns}
}

func (p *jsonPrinter) print(row dbapi.Row) error {
	if row.IsMessage() {
		_, err := fmt.Fprintln(p.out, row.Message)
		return err
	}

	obj := make(map[string]any, len(row.Values))
	for i, v := range row.Values {
		name := fmt.Sprintf("column_%d", i+1)
		if i < len(p.columns) && p.columns[i] != "" {
			name = p.columns[i]
		}
		obj[name] = v
	}
	return p.enc.Encode(obj)
}

func (p *jsonPrinter) flush() error {
	return nil
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}
