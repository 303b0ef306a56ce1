package domain

import (
	"fmt"
	"time"
)

// Priority labels assigned by the forecaster
const (
	PriorityHigh     = "Priority"
	PriorityStandard = "Standard"

	// PriorityThreshold is the coverage percentage strictly above which a row is a priority
	PriorityThreshold = 85.0
)

// DefaultGender is used when the input table carries no gender column
const DefaultGender = "Laki-Laki"

// OutputColumns is the column order of the output table. Downstream importers rely on it.
var OutputColumns = []string{
	"kecamatan",
	"wilayah",
	"persentase",
	"tahun",
	"prioritas",
	"lon",
	"lat",
	"predicted_route",
	"focus_month",
	"focus_date",
}

// Record is one reconciled row of the input table
type Record struct {
	Subdivision       string   `json:"kecamatan"`
	Region            string   `json:"wilayah"`
	Year              int      `json:"tahun"`
	Gender            string   `json:"jenis_kelamin"`
	EstimatedAffected float64  `json:"jumlah_estimasi_penderita"`
	ServedCount       float64  `json:"jumlah_yang_mendapatkan_pelayanan_kesehatan"`
	Coverage          *float64 `json:"persentase"`
}

// HasCoverage reports whether the record carries a coverage label
func (r Record) HasCoverage() bool {
	return r.Coverage != nil
}

// ForecastRow is one row of the output table, unique on (Subdivision, Year)
type ForecastRow struct {
	Subdivision string   `json:"kecamatan"`
	Region      string   `json:"wilayah"`
	Coverage    *float64 `json:"persentase"`
	Year        int      `json:"tahun"`
	Priority    string   `json:"prioritas"`
	Longitude   *float64 `json:"lon"`
	Latitude    *float64 `json:"lat"`
	Route       string   `json:"predicted_route"`
	FocusMonth  int      `json:"focus_month"`
	FocusDate   string   `json:"focus_date"`
}

// Key returns the (subdivision, year) identity of the row
func (r ForecastRow) Key() RowKey {
	return RowKey{Subdivision: r.Subdivision, Year: r.Year}
}

// HasCoordinates reports whether both longitude and latitude are set
func (r ForecastRow) HasCoordinates() bool {
	return r.Longitude != nil && r.Latitude != nil
}

// RowKey identifies an output row
type RowKey struct {
	Subdivision string `json:"kecamatan"`
	Year        int    `json:"tahun"`
}

func (k RowKey) String() string {
	return fmt.Sprintf("%s/%d", k.Subdivision, k.Year)
}

// PriorityFor classifies a coverage value. Missing coverage is never a priority.
func PriorityFor(coverage *float64) string {
	if coverage != nil && *coverage > PriorityThreshold {
		return PriorityHigh
	}
	return PriorityStandard
}

// StoredPrediction is a forecast row persisted in the prediction store
type StoredPrediction struct {
	ID        int64       `json:"id" db:"id"`
	Row       ForecastRow `json:"row"`
	Meta      string      `json:"meta,omitempty" db:"meta"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// PredictionFilter narrows prediction queries
type PredictionFilter struct {
	Year            int    `json:"tahun,omitempty" validate:"omitempty,min=1900,max=2200"`
	Priority        string `json:"prioritas,omitempty" validate:"omitempty,oneof=Priority Standard"`
	WithCoordinates bool   `json:"-"`
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}
