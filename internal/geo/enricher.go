package geo

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"sehatmap/internal/dataprocessing"
	"sehatmap/pkg/contracts/domain"
)

// MaxUnmatchedReported caps the unmatched (subdivision, year) pairs kept for diagnostics
const MaxUnmatchedReported = 30

// FallbackGeo marks a run whose geographic reference could not be used
const FallbackGeo = "geo_unavailable"

// Result is the forecast table with coordinates attached
type Result struct {
	Rows      []domain.ForecastRow
	Matched   int
	Unmatched []domain.RowKey
	// Degraded is set when no reference was used and every row has null coordinates
	Degraded bool
	Reason   string
}

// Enricher attaches centroid coordinates to forecast rows
type Enricher struct {
	logger *slog.Logger
}

// NewEnricher creates an enricher
func NewEnricher(logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{logger: logger.With(slog.String("component", "geo_enricher"))}
}

// Enrich loads the reference at path and joins it onto rows. A blank path, a missing or
// unreadable file leaves every row without coordinates; the run always continues.
func (e *Enricher) Enrich(ctx context.Context, rows []domain.ForecastRow, path string) *Result {
	if path == "" {
		return e.degraded(ctx, rows, "no geographic reference configured")
	}

	ref, err := LoadReference(path)
	if err != nil {
		reason := "failed to read geographic reference"
		if errors.Is(err, os.ErrNotExist) {
			reason = "geographic reference not found"
		}
		e.logger.WarnContext(ctx, reason,
			slog.String("path", path),
			slog.String("error", err.Error()))
		return e.degraded(ctx, rows, reason)
	}

	return e.Join(ctx, rows, ref)
}

// Join left-joins rows onto the reference by match key. Unmatched rows keep null coordinates.
func (e *Enricher) Join(ctx context.Context, rows []domain.ForecastRow, ref *Reference) *Result {
	res := &Result{Rows: make([]domain.ForecastRow, len(rows))}
	seen := make(map[domain.RowKey]struct{})

	for i, r := range rows {
		r.Longitude, r.Latitude = nil, nil
		if place, ok := ref.Lookup(dataprocessing.MatchKey(r.Subdivision)); ok && place.HasCentroid() {
			r.Longitude = domain.Float(*place.Longitude)
			r.Latitude = domain.Float(*place.Latitude)
			res.Matched++
		} else if len(res.Unmatched) < MaxUnmatchedReported {
			if _, dup := seen[r.Key()]; !dup {
				seen[r.Key()] = struct{}{}
				res.Unmatched = append(res.Unmatched, r.Key())
			}
		}
		res.Rows[i] = r
	}

	e.logger.InfoContext(ctx, "Geographic join complete",
		slog.String("attribute", ref.Attribute),
		slog.Int("places", ref.Len()),
		slog.Int("matched_rows", res.Matched),
		slog.Int("unmatched_rows", len(rows)-res.Matched))

	if len(res.Unmatched) > 0 {
		sample := make([]string, len(res.Unmatched))
		for i, k := range res.Unmatched {
			sample[i] = k.String()
		}
		e.logger.InfoContext(ctx, "Subdivisions without a geographic match",
			slog.Int("shown", len(sample)),
			slog.Any("pairs", sample))
	}
	return res
}

func (e *Enricher) degraded(ctx context.Context, rows []domain.ForecastRow, reason string) *Result {
	out := make([]domain.ForecastRow, len(rows))
	for i, r := range rows {
		r.Longitude, r.Latitude = nil, nil
		out[i] = r
	}
	e.logger.WarnContext(ctx, "Skipping geographic enrichment", slog.String("reason", reason))
	return &Result{Rows: out, Degraded: true, Reason: reason}
}
