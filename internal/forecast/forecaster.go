// Package forecast projects coverage percentages forward and merges them with history.
package forecast

import (
	"context"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/stat"

	"sehatmap/internal/dataprocessing"
	"sehatmap/pkg/contracts/domain"
)

// DefaultHorizon is the number of future years forecast when none is requested
const DefaultHorizon = 10

// FallbackPredict marks a batch whose prediction failed and was filled with the mean
const FallbackPredict = "predict_failed"

// Predictor is the part of a fitted model the forecaster needs
type Predictor interface {
	Available() bool
	Predict(batch *dataprocessing.FeatureSet) ([]float64, error)
}

// Result is the merged historical and forecast table
type Result struct {
	Rows        []domain.ForecastRow
	BaseYear    int
	LastYear    int
	TargetYears []int
	Historical  int
	Forecast    int
	UsedModel   bool
	Fallbacks   []string
}

// Forecaster builds the forecast table
type Forecaster struct {
	logger *slog.Logger
}

// NewForecaster creates a forecaster
func NewForecaster(logger *slog.Logger) *Forecaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Forecaster{logger: logger.With(slog.String("component", "forecaster"))}
}

// Forecast extends records by years future years (clamped to at least 1) after the last
// observed year. Historical rows come first and win over forecast rows with the same
// (subdivision, year) key.
func (f *Forecaster) Forecast(ctx context.Context, records []domain.Record, m Predictor, years int) (*Result, error) {
	if len(records) == 0 {
		return nil, dataprocessing.ErrEmptyDataset
	}
	if years < 1 {
		years = 1
	}

	res := &Result{BaseYear: records[0].Year, LastYear: records[0].Year}
	for _, r := range records {
		res.BaseYear = min(res.BaseYear, r.Year)
		res.LastYear = max(res.LastYear, r.Year)
	}
	for y := res.LastYear + 1; y <= res.LastYear+years; y++ {
		res.TargetYears = append(res.TargetYears, y)
	}

	rows := make([]domain.ForecastRow, 0, len(records)*(years+1))
	for _, r := range records {
		rows = append(rows, newRow(r.Subdivision, r.Region, r.Year, r.Coverage))
	}

	mean := historicalMean(records)

	var forecast []domain.ForecastRow
	if m != nil && m.Available() {
		res.UsedModel = true
		for _, y := range res.TargetYears {
			batch, failed := f.predictYear(ctx, records, m, y, mean)
			if failed {
				res.Fallbacks = append(res.Fallbacks, FallbackPredict)
			}
			forecast = append(forecast, batch...)
		}
	} else {
		forecast = fallbackForecast(records, res.TargetYears, mean)
	}

	rows = append(rows, forecast...)
	res.Rows = Dedup(rows)
	res.Historical = countHistorical(res.Rows, res.LastYear)
	res.Forecast = len(res.Rows) - res.Historical

	f.logger.InfoContext(ctx, "Forecast complete",
		slog.Int("base_year", res.BaseYear),
		slog.Int("last_year", res.LastYear),
		slog.Int("horizon", years),
		slog.Bool("used_model", res.UsedModel),
		slog.Int("rows", len(res.Rows)))
	return res, nil
}

// predictYear clones every record into year y and predicts it. A failed prediction fills
// the batch with the historical mean.
func (f *Forecaster) predictYear(ctx context.Context, records []domain.Record, m Predictor, y int, mean *float64) ([]domain.ForecastRow, bool) {
	clones := make([]domain.Record, len(records))
	for i, r := range records {
		r.Year = y
		clones[i] = r
	}

	preds, err := m.Predict(dataprocessing.BuildFeatures(clones))
	if err == nil && len(preds) != len(clones) {
		err = fmt.Errorf("model returned %d predictions for %d rows", len(preds), len(clones))
	}

	rows := make([]domain.ForecastRow, len(clones))
	if err != nil {
		f.logger.WarnContext(ctx, "Model prediction failed, falling back to mean",
			slog.Int("year", y),
			slog.String("error", err.Error()))
		for i, c := range clones {
			rows[i] = newRow(c.Subdivision, c.Region, y, mean)
		}
		return rows, true
	}

	for i, c := range clones {
		rows[i] = newRow(c.Subdivision, c.Region, y, domain.Float(preds[i]))
	}
	return rows, false
}

// fallbackForecast repeats each subdivision's latest known coverage, or the global mean,
// for every target year
func fallbackForecast(records []domain.Record, targetYears []int, mean *float64) []domain.ForecastRow {
	type latest struct {
		region   string
		year     int
		coverage *float64
	}

	var order []string
	bySubdiv := make(map[string]*latest)
	for _, r := range records {
		l, ok := bySubdiv[r.Subdivision]
		if !ok {
			l = &latest{region: r.Region}
			bySubdiv[r.Subdivision] = l
			order = append(order, r.Subdivision)
		}
		if r.Coverage != nil && (l.coverage == nil || r.Year >= l.year) {
			l.year = r.Year
			l.coverage = r.Coverage
		}
	}

	rows := make([]domain.ForecastRow, 0, len(order)*len(targetYears))
	for _, y := range targetYears {
		for _, s := range order {
			l := bySubdiv[s]
			value := l.coverage
			if value == nil {
				value = mean
			}
			rows = append(rows, newRow(s, l.region, y, value))
		}
	}
	return rows
}

// Dedup keeps the first row of every (subdivision, year) key, preserving order
func Dedup(rows []domain.ForecastRow) []domain.ForecastRow {
	seen := make(map[domain.RowKey]struct{}, len(rows))
	out := make([]domain.ForecastRow, 0, len(rows))
	for _, r := range rows {
		k := r.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

func newRow(subdiv, region string, year int, coverage *float64) domain.ForecastRow {
	if coverage != nil {
		coverage = domain.Float(*coverage)
	}
	return domain.ForecastRow{
		Subdivision: subdiv,
		Region:      region,
		Year:        year,
		Coverage:    coverage,
		Priority:    domain.PriorityFor(coverage),
	}
}

// historicalMean is the mean of all non-missing coverage values, nil when there are none
func historicalMean(records []domain.Record) *float64 {
	var values []float64
	for _, r := range records {
		if r.Coverage != nil {
			values = append(values, *r.Coverage)
		}
	}
	if len(values) == 0 {
		return nil
	}
	return domain.Float(stat.Mean(values, nil))
}

func countHistorical(rows []domain.ForecastRow, lastYear int) int {
	n := 0
	for _, r := range rows {
		if r.Year <= lastYear {
			n++
		}
	}
	return n
}
