package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	apperrors "sehatmap/internal/errors"
	"sehatmap/internal/geo"
	"sehatmap/pkg/contracts/domain"
)

// PredictionRecord renders a row in domain.OutputColumns order
func PredictionRecord(r domain.ForecastRow) []string {
	return []string{
		r.Subdivision,
		r.Region,
		formatFloat(r.Coverage),
		formatInt(r.Year),
		r.Priority,
		formatFloat(r.Longitude),
		formatFloat(r.Latitude),
		r.Route,
		formatInt(r.FocusMonth),
		r.FocusDate,
	}
}

// RowFields maps output column names to the values written for r
func RowFields(r domain.ForecastRow) map[string]string {
	values := PredictionRecord(r)
	fields := make(map[string]string, len(values))
	for i, col := range domain.OutputColumns {
		fields[col] = values[i]
	}
	return fields
}

// WritePredictions writes the output table. Missing coordinates and coverage are
// written as empty fields.
func (w *CSVWriter) WritePredictions(path string, rows []domain.ForecastRow) error {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, PredictionRecord(r))
	}
	if err := w.WriteCSV(path, WriteOptions{Headers: domain.OutputColumns, Records: records}); err != nil {
		return apperrors.NewStorageError("failed to write predictions", err).WithContext("path", path)
	}
	return nil
}

// WriteGeoJSON writes rows with coordinates as a FeatureCollection of points
func (w *CSVWriter) WriteGeoJSON(path string, rows []domain.ForecastRow) error {
	fc := geo.PointCollection(rows)
	data, err := fc.MarshalJSON()
	if err != nil {
		return apperrors.NewStorageError("failed to encode GeoJSON", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return apperrors.NewStorageError("failed to write GeoJSON", err).WithContext("path", path)
	}
	w.logger.Info("Wrote GeoJSON points",
		slog.String("file_path", path),
		slog.Int("feature_count", len(fc.Features)))
	return nil
}

// ReadPredictions loads an output table written by WritePredictions. Columns are looked
// up by name so extra or reordered columns are tolerated.
func ReadPredictions(path string) ([]domain.ForecastRow, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewNotFoundError("predictions file " + path)
		}
		return nil, apperrors.NewStorageError("failed to open predictions", err)
	}
	defer f.Close()

	return ParsePredictions(f)
}

// ParsePredictions decodes an output table from r
func ParsePredictions(r io.Reader) ([]domain.ForecastRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewParsingError("failed to read predictions header", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	if _, ok := index["kecamatan"]; !ok {
		return nil, apperrors.NewParsingError("predictions file has no kecamatan column", nil)
	}

	var out []domain.ForecastRow
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.NewParsingError("failed to read predictions", err).WithContext("line", line)
		}

		field := func(name string) string {
			if i, ok := index[name]; ok && i < len(rec) {
				return rec[i]
			}
			return ""
		}

		row, err := decodeRow(field)
		if err != nil {
			return nil, apperrors.NewParsingError("invalid prediction row", err).WithContext("line", line)
		}
		out = append(out, row)
	}
	return out, nil
}

func decodeRow(field func(string) string) (domain.ForecastRow, error) {
	row := domain.ForecastRow{
		Subdivision: field("kecamatan"),
		Region:      field("wilayah"),
		Priority:    field("prioritas"),
		Route:       field("predicted_route"),
		FocusDate:   field("focus_date"),
	}

	var err error
	if row.Year, err = parseInt(field("tahun")); err != nil {
		return row, fmt.Errorf("tahun: %w", err)
	}
	if row.FocusMonth, err = parseInt(field("focus_month")); err != nil {
		return row, fmt.Errorf("focus_month: %w", err)
	}
	if row.Coverage, err = parseFloat(field("persentase")); err != nil {
		return row, fmt.Errorf("persentase: %w", err)
	}
	if row.Longitude, err = parseFloat(field("lon")); err != nil {
		return row, fmt.Errorf("lon: %w", err)
	}
	if row.Latitude, err = parseFloat(field("lat")); err != nil {
		return row, fmt.Errorf("lat: %w", err)
	}
	return row, nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
