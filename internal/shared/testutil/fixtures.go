package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// DatasetHeader is the column layout of the health office export
const DatasetHeader = "tahun,kecamatan,wilayah,jenis_kelamin,jumlah_estimasi_penderita,jumlah_yang_mendapatkan_pelayanan_kesehatan,persentase"

// DatasetRow is one row of an input dataset fixture. A nil Coverage writes an empty cell.
type DatasetRow struct {
	Year        int
	Subdivision string
	Region      string
	Gender      string
	Estimated   float64
	Served      float64
	Coverage    *float64
}

// Series builds one row per year in [from, to] for a subdivision, with coverage starting
// at start and rising by step each year. Served is derived from an estimate of 100.
func Series(subdivision, region string, from, to int, start, step float64) []DatasetRow {
	rows := make([]DatasetRow, 0, to-from+1)
	for y := from; y <= to; y++ {
		c := start + step*float64(y-from)
		rows = append(rows, DatasetRow{
			Year:        y,
			Subdivision: subdivision,
			Region:      region,
			Gender:      "L",
			Estimated:   100,
			Served:      c,
			Coverage:    &c,
		})
	}
	return rows
}

// DatasetCSV renders rows under DatasetHeader
func DatasetCSV(rows []DatasetRow) string {
	var b strings.Builder
	b.WriteString(DatasetHeader)
	b.WriteByte('\n')
	for _, r := range rows {
		coverage := ""
		if r.Coverage != nil {
			coverage = strconv.FormatFloat(*r.Coverage, 'f', -1, 64)
		}
		fmt.Fprintf(&b, "%d,%s,%s,%s,%s,%s,%s\n",
			r.Year, r.Subdivision, r.Region, r.Gender,
			strconv.FormatFloat(r.Estimated, 'f', -1, 64),
			strconv.FormatFloat(r.Served, 'f', -1, 64),
			coverage)
	}
	return b.String()
}

// WriteDataset writes rows as a CSV dataset at path, creating parent directories
func WriteDataset(t testing.TB, path string, rows []DatasetRow) string {
	t.Helper()
	writeFile(t, path, DatasetCSV(rows))
	return path
}

// ReferenceGeoJSON covers Tanah Abang and Koja with small square polygons
const ReferenceGeoJSON = `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{"NAME_3":"Tanah Abang"},"geometry":{"type":"Polygon","coordinates":[[[106.80,-6.21],[106.82,-6.21],[106.82,-6.19],[106.80,-6.19],[106.80,-6.21]]]}},
{"type":"Feature","properties":{"NAME_3":"Koja"},"geometry":{"type":"Polygon","coordinates":[[[106.89,-6.12],[106.91,-6.12],[106.91,-6.10],[106.89,-6.10],[106.89,-6.12]]]}}
]}`

// WriteReference writes ReferenceGeoJSON at path
func WriteReference(t testing.TB, path string) string {
	t.Helper()
	writeFile(t, path, ReferenceGeoJSON)
	return path
}

func writeFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create fixture directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", path, err)
	}
}
