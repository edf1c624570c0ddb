package export

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"ohnitiel/upsql/internal/db"
)

type jsonResult struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	Messages []string         `json:"messages,omitempty"`
	RowCount int              `json:"row_count"`
}

// JSON writes an object keyed by profile, or one file per profile when
// options.SingleFile is off.
func JSON(ctx context.Context, data map[string]*db.ResultSet, output string, options Options) error {
	if !options.SingleFile {
		for _, name := range profileNames(data) {
			if err := writeJSON(profilePath(output, name), toJSONResult(data[name])); err != nil {
				slog.ErrorContext(ctx, "Error writing JSON", "profile", name, "error", err)
				return err
			}
		}
		return nil
	}

	all := make(map[string]jsonResult, len(data))
	for name, rs := range data {
		all[name] = toJSONResult(rs)
	}
	if err := writeJSON(output, all); err != nil {
		slog.ErrorContext(ctx, "Error writing JSON", "error", err)
		return err
	}
	return nil
}

func toJSONResult(rs *db.ResultSet) jsonResult {
	columns := columnNames(rs)
	rows := make([]map[string]any, len(rs.Rows))
	for i, values := range rs.Rows {
		row := make(map[string]any, len(columns))
		for j, name := range columns {
			if j < len(values) {
				row[name] = values[j]
			}
		}
		rows[i] = row
	}

	return jsonResult{
		Columns:  columns,
		Rows:     rows,
		Messages: rs.Messages,
		RowCount: rs.RowCount,
	}
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return f.Close()
}
