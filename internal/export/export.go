package export

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"ohnitiel/upsql/internal/db"
)

var Formats = []string{"xlsx", "csv", "json"}

type Options struct {
	SingleFile    bool
	SingleSheet   bool
	ProfileColumn string
}

func NewOptions(noSingleFile bool, noSingleSheet bool, profileColumn string) Options {
	return Options{
		SingleFile:    !noSingleFile,
		SingleSheet:   !noSingleSheet,
		ProfileColumn: profileColumn,
	}
}

// Write saves data to output in the given format.
func Write(ctx context.Context, format string, data map[string]*db.ResultSet, output string, options Options) error {
	switch strings.ToLower(format) {
	case "xlsx":
		return Excel(ctx, data, output, options)
	case "csv":
		return CSV(ctx, data, output, options)
	case "json":
		return JSON(ctx, data, output, options)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// FormatFromPath infers the format from the output file extension.
func FormatFromPath(output string) (string, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(output), "."))
	return ext, slices.Contains(Formats, ext)
}

func profileNames(data map[string]*db.ResultSet) []string {
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// profilePath turns report.xlsx into report_<profile>.xlsx.
func profilePath(output string, profile string) string {
	ext := filepath.Ext(output)
	return fmt.Sprintf("%s_%s%s", strings.TrimSuffix(output, ext), profile, ext)
}

func columnNames(data *db.ResultSet) []string {
	names := make([]string, len(data.Columns))
	for i, c := range data.Columns {
		names[i] = c.Name
	}
	return names
}
