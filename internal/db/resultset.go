package db

import (
	"fmt"
	"time"
)

type Column struct {
	Ordinal int    `json:"ordinal"`
	Name    string `json:"name"`
	Type    string `json:"type"`
}

// ResultSet is a fully drained query result. Messages holds the status
// lines the service sent instead of rows.
type ResultSet struct {
	Columns  []Column      `json:"columns"`
	Rows     [][]any       `json:"rows"`
	Messages []string      `json:"messages,omitempty"`
	RowCount int           `json:"row_count"`
	Duration time.Duration `json:"duration"`
}

// ensureColumns names columns positionally when the first page carried no
// description but later pages carried rows.
func (rs *ResultSet) ensureColumns() {
	if len(rs.Columns) > 0 || len(rs.Rows) == 0 {
		return
	}

	width := 0
	for _, row := range rs.Rows {
		width = max(width, len(row))
	}

	rs.Columns = make([]Column, width)
	for i := range rs.Columns {
		rs.Columns[i] = Column{Ordinal: i, Name: fmt.Sprintf("column_%d", i+1)}
	}
}
