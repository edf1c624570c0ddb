package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"

	"ohnitiel/upsql/internal/db"
)

// CSV writes one file with every profile's rows tagged by the profile
// column, or one file per profile when options.SingleFile is off.
func CSV(ctx context.Context, data map[string]*db.ResultSet, output string, options Options) error {
	names := profileNames(data)

	if !options.SingleFile {
		for _, name := range names {
			err := writeCSV(profilePath(output, name), func(w *csv.Writer) error {
				if err := w.Write(columnNames(data[name])); err != nil {
					return err
				}
				return writeCSVRows(w, data[name], "")
			})
			if err != nil {
				slog.ErrorContext(ctx, "Error writing CSV", "profile", name, "error", err)
				return err
			}
		}
		return nil
	}

	err := writeCSV(output, func(w *csv.Writer) error {
		if len(names) == 0 {
			return nil
		}
		if err := w.Write(append(columnNames(data[names[0]]), options.ProfileColumn)); err != nil {
			return err
		}
		for _, name := range names {
			if err := writeCSVRows(w, data[name], name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "Error writing CSV", "error", err)
	}
	return err
}

func writeCSV(path string, fill func(w *csv.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := fill(w); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func writeCSVRows(w *csv.Writer, data *db.ResultSet, profile string) error {
	for _, row := range data.Rows {
		record := make([]string, 0, len(row)+1)
		for _, v := range row {
			record = append(record, formatCell(v))
		}
		if profile != "" {
			record = append(record, profile)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return nil
}

func formatCell(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
