package dataprocessing

import (
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"sehatmap/pkg/contracts/domain"
)

// ColumnMapping records which input column fed each canonical field. An empty name means
// the field took its default.
type ColumnMapping struct {
	Year      string `json:"tahun"`
	Subdiv    string `json:"kecamatan"`
	Region    string `json:"wilayah"`
	Gender    string `json:"jenis_kelamin"`
	Estimated string `json:"jumlah_estimasi_penderita"`
	Served    string `json:"jumlah_yang_mendapatkan_pelayanan_kesehatan"`
	Coverage  string `json:"persentase"`
}

// Reconciler maps loosely named input columns onto the canonical record schema
type Reconciler struct {
	now    func() time.Time
	logger *slog.Logger
}

// NewReconciler creates a reconciler. A nil logger falls back to the default logger.
func NewReconciler(logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{now: time.Now, logger: logger}
}

// WithClock overrides the clock used for the default year
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// MapColumns resolves the source column of every canonical field
func MapColumns(columns []string) ColumnMapping {
	var m ColumnMapping

	lower := make([]string, len(columns))
	for i, c := range columns {
		lower[i] = strings.ToLower(strings.TrimSpace(c))
	}

	exact := func(names ...string) string {
		for i, c := range lower {
			for _, n := range names {
				if c == n {
					return columns[i]
				}
			}
		}
		return ""
	}
	contains := func(fragments ...string) string {
		for i, c := range lower {
			for _, f := range fragments {
				if strings.Contains(c, f) {
					return columns[i]
				}
			}
		}
		return ""
	}

	m.Year = exact("periode_data")
	if m.Year == "" {
		m.Year = exact("tahun")
	}
	m.Subdiv = exact("kecamatan")
	m.Region = exact("wilayah")
	m.Gender = exact("jenis_kelamin", "jenis kelamin", "jk")
	m.Estimated = contains("jumlah_estimasi", "estimasi")
	m.Served = contains("mendapatkan", "pelayanan")
	m.Coverage = contains("persentase")
	return m
}

// Reconcile converts the table into canonical records. Unparsable cells take the field
// default and never fail the row. Only an empty table is an error.
func (r *Reconciler) Reconcile(t *Table) ([]domain.Record, error) {
	if t.Len() == 0 {
		return nil, ErrEmptyDataset
	}

	mapping := MapColumns(t.Columns())
	currentYear := r.now().Year()
	n := t.Len()

	column := func(name string) []*string {
		if name == "" {
			return nil
		}
		cells, _ := t.Column(name)
		return cells
	}
	years := column(mapping.Year)
	subdivs := column(mapping.Subdiv)
	regions := column(mapping.Region)
	genders := column(mapping.Gender)
	estimated := column(mapping.Estimated)
	served := column(mapping.Served)
	coverage := column(mapping.Coverage)

	records := make([]domain.Record, n)
	badYears := 0
	for i := 0; i < n; i++ {
		rec := domain.Record{
			Year:   currentYear,
			Gender: domain.DefaultGender,
		}

		if years != nil {
			if y, ok := parseYear(years[i]); ok {
				rec.Year = y
			} else {
				badYears++
			}
		}
		if subdivs != nil {
			if name := NormalizeName(subdivs[i]); name != nil {
				rec.Subdivision = *name
			}
		}
		if regions != nil {
			rec.Region = stringOr(regions[i], "")
		}
		if genders != nil {
			rec.Gender = stringOr(genders[i], "")
		}
		if estimated != nil {
			if v, ok := parseNumber(estimated[i]); ok {
				rec.EstimatedAffected = v
			}
		}
		if served != nil {
			if v, ok := parseNumber(served[i]); ok {
				rec.ServedCount = v
			}
		}
		if coverage != nil {
			if v, ok := parseNumber(coverage[i]); ok {
				rec.Coverage = domain.Float(v)
			}
		}
		records[i] = rec
	}

	if regions == nil {
		r.logger.Warn("Region column missing, every record falls into one empty region category",
			slog.Int("rows", n))
	}

	r.logger.Info("Input columns reconciled",
		slog.Int("rows", n),
		slog.String("year_column", mapping.Year),
		slog.String("subdivision_column", mapping.Subdiv),
		slog.String("estimated_column", mapping.Estimated),
		slog.String("served_column", mapping.Served),
		slog.String("coverage_column", mapping.Coverage),
		slog.Int("unparsable_years", badYears))

	return records, nil
}

func stringOr(cell *string, def string) string {
	if cell == nil {
		return def
	}
	return strings.TrimSpace(*cell)
}

// parseYear accepts integral text as well as float text such as "2021.0"
func parseYear(cell *string) (int, bool) {
	if cell == nil {
		return 0, false
	}
	s := strings.TrimSpace(*cell)
	if y, err := strconv.Atoi(s); err == nil {
		return y, true
	}
	v, ok := parseNumber(cell)
	if !ok {
		return 0, false
	}
	return int(math.Trunc(v)), true
}

// parseNumber strips thousands separators and a trailing percent sign
func parseNumber(cell *string) (float64, bool) {
	if cell == nil {
		return 0, false
	}
	s := strings.TrimSpace(*cell)
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
