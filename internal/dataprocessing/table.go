package dataprocessing

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"

	apperrors "sehatmap/internal/errors"
)

// ErrEmptyDataset is returned when the input table has no data rows
var ErrEmptyDataset = errors.New("empty dataset after read")

// missingMarkers are cell values read as "no value", matching common spreadsheet exports
var missingMarkers = []string{"", "NA", "N/A", "NaN", "nan", "null", "NULL", "None", "#N/A", "<NA>"}

// Table is a raw input table: named string columns, loaded whole into memory
type Table struct {
	header []string
	frame  *dataframe.DataFrame
}

// NewTable builds a table from a header and data rows. Rows shorter than the header are
// padded with empty cells, longer rows are truncated.
func NewTable(header []string, rows [][]string) (*Table, error) {
	header = uniqueHeader(header)
	t := &Table{header: header}
	if len(rows) == 0 || len(header) == 0 {
		return t, nil
	}

	records := make([][]string, 0, len(rows)+1)
	records = append(records, header)
	for _, row := range rows {
		padded := make([]string, len(header))
		copy(padded, row)
		records = append(records, padded)
	}

	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(missingMarkers),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("load records: %w", df.Err)
	}
	t.frame = &df
	return t, nil
}

// Len returns the number of data rows
func (t *Table) Len() int {
	if t == nil || t.frame == nil {
		return 0
	}
	return t.frame.Nrow()
}

// Columns returns the column names in input order
func (t *Table) Columns() []string {
	return append([]string(nil), t.header...)
}

// Column returns the cells of the named column; nil entries mark missing values
func (t *Table) Column(name string) ([]*string, bool) {
	found := false
	for _, h := range t.header {
		if h == name {
			found = true
			break
		}
	}
	if !found {
		return nil, false
	}
	if t.frame == nil {
		return []*string{}, true
	}

	col := t.frame.Col(name)
	values := col.Records()
	nans := col.IsNaN()
	cells := make([]*string, len(values))
	for i, v := range values {
		if nans[i] {
			continue
		}
		v := v
		cells[i] = &v
	}
	return cells, true
}

// uniqueHeader trims names, fills blanks and suffixes duplicates so every column is addressable
func uniqueHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if name == "" {
			name = "column_" + strconv.Itoa(i)
		}
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		out[i] = name
	}
	return out
}

// ReadTable loads a CSV or spreadsheet file. The format is picked from the file extension.
func ReadTable(path string) (*Table, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewNotFoundError("input file "+path).WithContext("path", path)
		}
		return nil, apperrors.NewParsingError("failed to stat input file", err).WithContext("path", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	var (
		t   *Table
		err error
	)
	switch ext {
	case ".xlsx", ".xls", ".xlsm":
		t, err = readSpreadsheet(path)
	default:
		t, err = readCSV(path)
	}
	if err != nil {
		return nil, apperrors.NewParsingError("failed to read input table", err).WithContext("path", path)
	}

	slog.Debug("Input table loaded",
		slog.String("path", path),
		slog.Int("rows", t.Len()),
		slog.Int("columns", len(t.header)))
	return t, nil
}

func readCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return ParseCSV(f)
}

// ParseCSV reads a comma separated table with a header row
func ParseCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no header row found")
	}
	return NewTable(records[0], dropBlankRows(records[1:]))
}

func readSpreadsheet(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}

	rows = dropBlankRows(rows)
	if len(rows) == 0 {
		return nil, fmt.Errorf("no header row found in sheet %q", sheets[0])
	}
	return NewTable(rows[0], rows[1:])
}

func dropBlankRows(rows [][]string) [][]string {
	out := rows[:0:0]
	for _, row := range rows {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				out = append(out, row)
				break
			}
		}
	}
	return out
}
