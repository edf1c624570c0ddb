package export

import (
	"context"
	"fmt"
	"log/slog"

	"ohnitiel/upsql/internal/db"

	"github.com/xuri/excelize/v2"
)

const (
	dataSheet   = "Data"
	maxColWidth = 255
)

// Styles are int because excelize.File.NewStyle() returns style index
type Styles struct {
	Number        int
	ProfileColumn int
}

// Creates new default styles
func NewStyles(f *excelize.File) (*Styles, error) {
	decimalPlaces := 2
	numberStyle, err := f.NewStyle(&excelize.Style{
		NumFmt:        0,
		DecimalPlaces: &decimalPlaces,
	})
	if err != nil {
		return nil, err
	}

	profileColumnStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return nil, err
	}

	return &Styles{
		Number:        numberStyle,
		ProfileColumn: profileColumnStyle,
	}, nil
}

// sheetWriter streams rows into one sheet and tracks column widths.
type sheetWriter struct {
	f         *excelize.File
	sw        *excelize.StreamWriter
	name      string
	styles    *Styles
	row       int
	colsWidth map[int]float64
}

func newSheetWriter(f *excelize.File, name string, styles *Styles) (*sheetWriter, error) {
	sw, err := f.NewStreamWriter(name)
	if err != nil {
		return nil, err
	}
	return &sheetWriter{f: f, sw: sw, name: name, styles: styles, row: 1, colsWidth: make(map[int]float64)}, nil
}

func (w *sheetWriter) header(headers []string) error {
	values := make([]any, len(headers))
	for i, h := range headers {
		values[i] = h
		w.track(i, h)
	}
	return w.next(values)
}

// rows writes data's rows. When profile is set it fills the trailing
// profile column.
func (w *sheetWriter) rows(data *db.ResultSet, width int, profile string) error {
	for _, values := range data.Rows {
		rowData := make([]any, width)

		for j := range width {
			var val any
			var styleID int
			switch {
			case profile != "" && j == width-1:
				val, styleID = profile, w.styles.ProfileColumn
			case j < len(values):
				val = values[j]
				switch val.(type) {
				case int64, float64:
					styleID = w.styles.Number
				}
			}

			if styleID != 0 {
				rowData[j] = excelize.Cell{Value: val, StyleID: styleID}
			} else {
				rowData[j] = val
			}
			w.track(j, val)
		}

		if err := w.next(rowData); err != nil {
			return err
		}
	}
	return nil
}

func (w *sheetWriter) next(values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	w.row++
	return w.sw.SetRow(cell, values)
}

func (w *sheetWriter) track(col int, val any) {
	if val == nil {
		return
	}
	w.colsWidth[col+1] = max(w.colsWidth[col+1], float64(len(fmt.Sprintf("%v", val))))
}

// finish flushes the stream, then sizes the columns and freezes the header.
func (w *sheetWriter) finish() error {
	if err := w.sw.Flush(); err != nil {
		return err
	}

	for idx, width := range w.colsWidth {
		colName, err := excelize.ColumnNumberToName(idx)
		if err != nil {
			return err
		}
		if err := w.f.SetColWidth(w.name, colName, colName, min(width+2, maxColWidth)); err != nil {
			return err
		}
	}

	return freezeHeader(w.f, w.name)
}

func Excel(ctx context.Context, data map[string]*db.ResultSet, output string, options Options) error {
	switch {
	case !options.SingleFile:
		return excelFilePerProfile(ctx, data, output)
	case !options.SingleSheet:
		return excelSheetPerProfile(ctx, data, output)
	default:
		return excelSingleFileAndSheet(ctx, data, output, options.ProfileColumn)
	}
}

func excelFilePerProfile(ctx context.Context, data map[string]*db.ResultSet, output string) error {
	for _, name := range profileNames(data) {
		f := excelize.NewFile()
		f.SetSheetName(f.GetSheetName(0), dataSheet)

		if err := writeSheet(f, dataSheet, data[name]); err != nil {
			slog.ErrorContext(ctx, "Error writing data to sheet", "profile", name, "error", err)
			f.Close()
			return err
		}

		if err := saveAndClose(ctx, f, profilePath(output, name)); err != nil {
			return err
		}
	}

	return nil
}

func excelSheetPerProfile(ctx context.Context, data map[string]*db.ResultSet, output string) error {
	f := excelize.NewFile()

	for _, name := range profileNames(data) {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return err
		}
		if err := writeSheet(f, name, data[name]); err != nil {
			slog.ErrorContext(ctx, "Error writing data to sheet", "profile", name, "error", err)
			f.Close()
			return err
		}
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return err
	}

	return saveAndClose(ctx, f, output)
}

// excelSingleFileAndSheet stacks every profile's rows in one sheet, tagged
// with the profile column. The header comes from the first profile.
func excelSingleFileAndSheet(ctx context.Context, data map[string]*db.ResultSet, output string, profileColumn string) error {
	f := excelize.NewFile()
	f.SetSheetName(f.GetSheetName(0), dataSheet)
	f.SetActiveSheet(0)

	if err := writeStackedSheet(f, dataSheet, data, profileColumn); err != nil {
		slog.ErrorContext(ctx, "Error writing data to sheet", "error", err)
		f.Close()
		return err
	}

	return saveAndClose(ctx, f, output)
}

func writeSheet(f *excelize.File, sheetName string, data *db.ResultSet) error {
	styles, err := NewStyles(f)
	if err != nil {
		return err
	}
	w, err := newSheetWriter(f, sheetName, styles)
	if err != nil {
		return err
	}

	headers := columnNames(data)
	if err := w.header(headers); err != nil {
		return err
	}
	if err := w.rows(data, len(headers), ""); err != nil {
		return err
	}
	return w.finish()
}

func writeStackedSheet(f *excelize.File, sheetName string, data map[string]*db.ResultSet, profileColumn string) error {
	styles, err := NewStyles(f)
	if err != nil {
		return err
	}
	w, err := newSheetWriter(f, sheetName, styles)
	if err != nil {
		return err
	}

	names := profileNames(data)
	if len(names) == 0 {
		return w.finish()
	}

	headers := append(columnNames(data[names[0]]), profileColumn)
	if err := w.header(headers); err != nil {
		return err
	}
	for _, name := range names {
		if err := w.rows(data[name], len(headers), name); err != nil {
			return err
		}
	}
	return w.finish()
}

func freezeHeader(f *excelize.File, sheetName string) error {
	return f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		Split:       false,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func saveAndClose(ctx context.Context, f *excelize.File, output string) error {
	defer func() {
		if err := f.Close(); err != nil {
			slog.ErrorContext(ctx, "Error closing file", "error", err)
		}
	}()

	if err := f.SaveAs(output); err != nil {
		slog.ErrorContext(ctx, "Error saving file", "error", err)
		return err
	}
	return nil
}
