// Package pipeline runs the forecast end to end: read, reconcile, build features, select a
// model, forecast, attach coordinates, assign routes and write the output table.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"sehatmap/internal/config"
	"sehatmap/internal/dataprocessing"
	apperrors "sehatmap/internal/errors"
	"sehatmap/internal/exporter"
	"sehatmap/internal/forecast"
	"sehatmap/internal/geo"
	"sehatmap/internal/infrastructure"
	"sehatmap/internal/model"
	"sehatmap/internal/schedule"
	"sehatmap/pkg/contracts/domain"
)

// Stage names, used as span names and metric labels
const (
	StageRead      = "read"
	StageReconcile = "reconcile"
	StageFeatures  = "features"
	StageModel     = "model"
	StageForecast  = "forecast"
	StageGeo       = "geo"
	StageSchedule  = "schedule"
	StageWrite     = "write"
)

// Options configures one run
type Options struct {
	InputPath   string
	GeoJSONPath string
	OutputPath  string
	// PointsPath optionally receives the output rows as GeoJSON points
	PointsPath string
	Years      int

	Selector model.SelectorConfig
	// TieBreakSeed seeds the route ranking tie-break. Every run starts a fresh stream.
	TieBreakSeed int64
	// StableTieBreak keeps input order on equal coverage instead of drawing tie-breaks
	StableTieBreak bool

	// Now stamps records whose year is missing; defaults to time.Now
	Now func() time.Time
}

// OptionsFromConfig maps the pipeline config section onto run options
func OptionsFromConfig(cfg config.PipelineConfig) Options {
	sel := model.DefaultSelectorConfig()
	sel.MinLabeled = cfg.MinLabeled
	sel.TestFraction = cfg.TestFraction
	sel.SplitSeed = cfg.Seed
	sel.Forest.Trees = cfg.Trees
	sel.Forest.MaxDepth = cfg.MaxDepth
	sel.Forest.Seed = cfg.Seed
	sel.ModelPath = cfg.ModelPath

	return Options{
		InputPath:      cfg.InputPath,
		GeoJSONPath:    cfg.GeoJSONPath,
		OutputPath:     cfg.OutputPath,
		Years:          cfg.Years,
		Selector:       sel,
		TieBreakSeed:   cfg.TieBreakSeed,
		StableTieBreak: cfg.DeterministicTieBreak,
	}
}

// tieBreaker builds a new tie breaker for one run
func (o Options) tieBreaker() schedule.TieBreaker {
	if o.StableTieBreak {
		return schedule.StableTieBreaker()
	}
	return schedule.SeededTieBreaker(o.TieBreakSeed)
}

// FallbackPoints is recorded when the GeoJSON point export could not be written
const FallbackPoints = "points_export_failed"

// Summary describes a finished run
type Summary struct {
	TraceID      string           `json:"trace_id"`
	InputRows    int              `json:"input_rows"`
	Records      int              `json:"records"`
	Labeled      int              `json:"labeled"`
	ModelState   string           `json:"model_state"`
	HoldoutR2    *float64         `json:"holdout_r2,omitempty"`
	UsedModel    bool             `json:"used_model"`
	BaseYear     int              `json:"base_year"`
	LastYear     int              `json:"last_year"`
	TargetYears  []int            `json:"target_years"`
	Historical   int              `json:"historical_rows"`
	Forecast     int              `json:"forecast_rows"`
	TotalRows    int              `json:"total_rows"`
	GeoMatched   int              `json:"geo_matched"`
	GeoUnmatched []domain.RowKey  `json:"geo_unmatched,omitempty"`
	GeoDegraded  bool             `json:"geo_degraded"`
	Fallbacks    []string         `json:"fallbacks"`
	OutputPath   string           `json:"output_path"`
	Duration     time.Duration    `json:"duration"`
	StageTimes   map[string]int64 `json:"stage_ms"`
}

// Output is the final table together with its summary
type Output struct {
	Rows    []domain.ForecastRow
	Summary Summary
}

// Runner executes pipeline runs. It holds no per-run state and is safe for concurrent use,
// though callers that share an output path must serialise runs themselves.
type Runner struct {
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *infrastructure.PipelineMetrics
	writer  *exporter.CSVWriter
}

// NewRunner creates a runner. tracer and metrics may be nil.
func NewRunner(logger *slog.Logger, tracer trace.Tracer, metrics *infrastructure.PipelineMetrics) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer(infrastructure.MeterName)
	}
	return &Runner{
		logger:  infrastructure.WithComponent(logger, "pipeline"),
		tracer:  tracer,
		metrics: metrics,
		writer:  exporter.NewCSVWriter(logger),
	}
}

// Run executes every stage in order. Read, reconcile, forecast and write failures abort
// the run before any output is written; model and geo problems degrade and are listed in
// Summary.Fallbacks.
func (r *Runner) Run(ctx context.Context, opts Options) (*Output, error) {
	ctx = infrastructure.EnsureTraceID(ctx)
	ctx, span := r.tracer.Start(ctx, "pipeline.run")
	defer span.End()

	start := time.Now()
	sum := Summary{
		TraceID:    infrastructure.GetTraceID(ctx),
		OutputPath: opts.OutputPath,
		StageTimes: make(map[string]int64),
		Fallbacks:  []string{},
	}

	r.logger.InfoContext(ctx, "Pipeline run started",
		slog.String("input", opts.InputPath),
		slog.String("geojson", opts.GeoJSONPath),
		slog.String("output", opts.OutputPath),
		slog.Int("years", opts.Years))

	out, err := r.run(ctx, opts, &sum)
	sum.Duration = time.Since(start)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		r.metrics.RecordRun(ctx, "failed")
		r.logger.ErrorContext(ctx, "Pipeline run failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", sum.Duration))
		return nil, err
	}

	r.metrics.RecordRun(ctx, "success")
	r.metrics.RecordRows(ctx, "historical", sum.Historical)
	r.metrics.RecordRows(ctx, "forecast", sum.Forecast)
	for _, fb := range sum.Fallbacks {
		r.metrics.RecordFallback(ctx, fb)
	}
	if !sum.GeoDegraded {
		r.metrics.RecordUnmatched(ctx, sum.TotalRows-sum.GeoMatched)
	}

	span.SetAttributes(
		attribute.Int("rows.total", sum.TotalRows),
		attribute.String("model.state", sum.ModelState),
		attribute.StringSlice("fallbacks", sum.Fallbacks),
	)
	r.logger.InfoContext(ctx, "Pipeline run completed",
		slog.Int("rows", sum.TotalRows),
		slog.Int("historical", sum.Historical),
		slog.Int("forecast", sum.Forecast),
		slog.String("model_state", sum.ModelState),
		slog.Any("fallbacks", sum.Fallbacks),
		slog.Duration("duration", sum.Duration))

	out.Summary = sum
	return out, nil
}

func (r *Runner) run(ctx context.Context, opts Options, sum *Summary) (*Output, error) {
	var table *dataprocessing.Table
	err := r.stage(ctx, StageRead, sum, func(ctx context.Context) error {
		var err error
		table, err = dataprocessing.ReadTable(opts.InputPath)
		return classifyRead(err, opts.InputPath)
	})
	if err != nil {
		return nil, err
	}
	sum.InputRows = table.Len()

	var records []domain.Record
	err = r.stage(ctx, StageReconcile, sum, func(ctx context.Context) error {
		rec := dataprocessing.NewReconciler(r.logger)
		if opts.Now != nil {
			rec = rec.WithClock(opts.Now)
		}
		var err error
		records, err = rec.Reconcile(table)
		return classifyRead(err, opts.InputPath)
	})
	if err != nil {
		return nil, err
	}
	sum.Records = len(records)

	var fs *dataprocessing.FeatureSet
	err = r.stage(ctx, StageFeatures, sum, func(ctx context.Context) error {
		fs = dataprocessing.BuildFeatures(records)
		_, y := fs.Labeled()
		sum.Labeled = len(y)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var m *model.Model
	err = r.stage(ctx, StageModel, sum, func(ctx context.Context) error {
		m = model.NewSelector(opts.Selector, r.logger).Select(ctx, fs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sum.ModelState = m.State.String()
	sum.HoldoutR2 = m.HoldoutR2
	sum.Fallbacks = append(sum.Fallbacks, m.Fallbacks...)

	var fc *forecast.Result
	err = r.stage(ctx, StageForecast, sum, func(ctx context.Context) error {
		var err error
		fc, err = forecast.NewForecaster(r.logger).Forecast(ctx, records, m, opts.Years)
		return err
	})
	if err != nil {
		return nil, err
	}
	sum.BaseYear = fc.BaseYear
	sum.LastYear = fc.LastYear
	sum.TargetYears = fc.TargetYears
	sum.Historical = fc.Historical
	sum.Forecast = fc.Forecast
	sum.UsedModel = fc.UsedModel
	sum.Fallbacks = append(sum.Fallbacks, fc.Fallbacks...)

	var enriched *geo.Result
	err = r.stage(ctx, StageGeo, sum, func(ctx context.Context) error {
		enriched = geo.NewEnricher(r.logger).Enrich(ctx, fc.Rows, opts.GeoJSONPath)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sum.GeoMatched = enriched.Matched
	sum.GeoUnmatched = enriched.Unmatched
	sum.GeoDegraded = enriched.Degraded
	if enriched.Degraded && opts.GeoJSONPath != "" {
		sum.Fallbacks = append(sum.Fallbacks, geo.FallbackGeo)
	}

	var rows []domain.ForecastRow
	err = r.stage(ctx, StageSchedule, sum, func(ctx context.Context) error {
		rows = schedule.NewAssigner(opts.tieBreaker()).Assign(enriched.Rows)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sum.TotalRows = len(rows)

	if opts.OutputPath != "" {
		err = r.stage(ctx, StageWrite, sum, func(ctx context.Context) error {
			return r.writer.WritePredictions(opts.OutputPath, rows)
		})
		if err != nil {
			return nil, err
		}
	}
	if opts.PointsPath != "" {
		if err := r.writer.WriteGeoJSON(opts.PointsPath, rows); err != nil {
			r.logger.WarnContext(ctx, "Point export failed, predictions table was written",
				slog.String("path", opts.PointsPath),
				slog.String("error", err.Error()))
			sum.Fallbacks = append(sum.Fallbacks, FallbackPoints)
		}
	}

	return &Output{Rows: rows}, nil
}

// stage runs fn inside a child span and records its duration
func (r *Runner) stage(ctx context.Context, name string, sum *Summary, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, span := r.tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	d := time.Since(start)

	sum.StageTimes[name] = d.Milliseconds()
	r.metrics.RecordStage(ctx, name, d)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		return err
	}
	r.logger.DebugContext(ctx, "Stage finished",
		slog.String("stage", name),
		slog.Duration("duration", d))
	return nil
}

// classifyRead turns input problems into the application error taxonomy
func classifyRead(err error, path string) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, dataprocessing.ErrEmptyDataset) {
		return apperrors.NewAppValidationError("input dataset has no rows").WithContext("path", path)
	}
	return apperrors.NewParsingError("failed to read input dataset", err).WithContext("path", path)
}
