package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/xuri/excelize/v2"

	apperrors "sehatmap/internal/errors"
)

// ConvertResult summarises an XLSX to CSV conversion
type ConvertResult struct {
	Sheet string
	Rows  int
}

// ConvertXLSX copies the active sheet of an .xlsx workbook into a CSV file, one CSV
// record per sheet row. Cell values are written as displayed.
func (w *CSVWriter) ConvertXLSX(ctx context.Context, in, out string) (*ConvertResult, error) {
	if _, err := os.Stat(in); err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewNotFoundError("workbook " + in)
		}
		return nil, apperrors.NewParsingError("failed to stat workbook", err)
	}

	f, err := excelize.OpenFile(in)
	if err != nil {
		return nil, apperrors.NewParsingError("failed to open workbook", err).WithContext("path", in)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, apperrors.NewParsingError("workbook has no sheets", nil).WithContext("path", in)
		}
		sheet = list[0]
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, apperrors.NewParsingError("failed to read sheet", err).WithContext("sheet", sheet)
	}
	defer rows.Close()

	stream, err := w.CreateStreamWriter(out, nil, false)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to create CSV", err).WithContext("path", out)
	}

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			stream.Close()
			return nil, err
		}
		cols, err := rows.Columns()
		if err != nil {
			stream.Close()
			return nil, apperrors.NewParsingError("failed to read row", err).WithContext("row", stream.Count()+1)
		}
		if err := stream.WriteRecord(cols); err != nil {
			stream.Close()
			return nil, apperrors.NewStorageError("failed to write CSV row", err)
		}
	}
	if err := rows.Error(); err != nil {
		stream.Close()
		return nil, apperrors.NewParsingError("failed to iterate sheet", err).WithContext("sheet", sheet)
	}
	if err := stream.Close(); err != nil {
		return nil, apperrors.NewStorageError("failed to close CSV", err).WithContext("path", out)
	}

	w.logger.InfoContext(ctx, "Converted workbook",
		slog.String("input", in),
		slog.String("output", out),
		slog.String("sheet", sheet),
		slog.Int("rows", stream.Count()))

	return &ConvertResult{Sheet: sheet, Rows: stream.Count()}, nil
}

// String implements fmt.Stringer
func (r ConvertResult) String() string {
	return fmt.Sprintf("%d rows from sheet %q", r.Rows, r.Sheet)
}
