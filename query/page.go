package query

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMixedPage = errors.New("page carries both data and message")

type ColumnType struct {
	Clazz string `json:"clazz"`
}

type Column struct {
	Name       string     `json:"name"`
	ColumnType ColumnType `json:"columnType"`
}

// Page is one reply unit of a running query. A data page has Data set (an
// empty list still counts as data); a message page only carries Message.
type Page struct {
	Data        [][]any  `json:"data,omitempty"`
	Columns     []Column `json:"columns,omitempty"`
	HasNextPage *bool    `json:"has_next_page,omitempty"`
	Message     string   `json:"message,omitempty"`
}

func NewDataPage(columns []Column, rows [][]any, hasNextPage bool) *Page {
	if rows == nil {
		rows = [][]any{}
	}
	return &Page{Data: rows, Columns: columns, HasNextPage: &hasNextPage}
}

func NewMessagePage(msg string) *Page {
	return &Page{Message: msg}
}

func (p *Page) IsData() bool {
	return p.Data != nil
}

// MoreFollow reports whether the page announces further pages. An absent
// has_next_page flag means the count cannot be known up front.
func (p *Page) MoreFollow() bool {
	return p.HasNextPage == nil || *p.HasNextPage
}

// DecodePage parses the wire form of a page. Integral JSON numbers become
// int64, the rest float64.
func DecodePage(b []byte) (*Page, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var p Page
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decoding page: %w", err)
	}
	if p.IsData() && p.Message != "" {
		return nil, ErrMixedPage
	}

	for i, row := range p.Data {
		if row == nil {
			p.Data[i] = []any{}
			continue
		}
		for j, v := range row {
			row[j] = normalize(v)
		}
	}

	return &p, nil
}

func normalize(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case []any:
		for i := range n {
			n[i] = normalize(n[i])
		}
		return n
	case map[string]any:
		for k := range n {
			n[k] = normalize(n[k])
		}
		return n
	default:
		return v
	}
}
