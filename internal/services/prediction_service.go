package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/paulmach/orb/geojson"

	apperrors "sehatmap/internal/errors"
	"sehatmap/internal/exporter"
	"sehatmap/internal/geo"
	"sehatmap/internal/pipeline"
	"sehatmap/internal/store"
	"sehatmap/internal/validation"
	api "sehatmap/pkg/contracts/api/v1"
	"sehatmap/pkg/contracts/domain"
)

// PredictionStore is the part of the store the prediction service reads and writes
type PredictionStore interface {
	Upsert(ctx context.Context, rows []domain.ForecastRow) (store.ImportStats, error)
	List(ctx context.Context, filter domain.PredictionFilter) ([]domain.StoredPrediction, error)
	Years(ctx context.Context) ([]int, error)
	Routes(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
}

// PipelineRunner executes one pipeline run
type PipelineRunner interface {
	Run(ctx context.Context, opts pipeline.Options) (*pipeline.Output, error)
}

// PredictionService runs the forecast, imports its output and answers queries over it.
// Only one run executes at a time; queries never wait on a run.
type PredictionService struct {
	runner     PipelineRunner
	store      PredictionStore
	validate   *validator.Validate
	files      *validation.FileValidator
	logger     *slog.Logger
	uploadDir  string
	runTimeout time.Duration

	runMu sync.Mutex

	mu      sync.RWMutex
	opts    pipeline.Options
	lastRun *api.RunResponse
}

// PredictionServiceConfig holds the settings the prediction service needs
type PredictionServiceConfig struct {
	Options    pipeline.Options
	UploadDir  string
	RunTimeout time.Duration
}

// NewPredictionService creates a prediction service. st may be nil, in which case runs
// still write the output table but nothing is imported or queried.
func NewPredictionService(cfg PredictionServiceConfig, runner PipelineRunner, st PredictionStore, logger *slog.Logger) *PredictionService {
	logger = serviceLogger(logger, "prediction_service")

	logger.Info("PredictionService initialized",
		slog.String("input", cfg.Options.InputPath),
		slog.String("geojson", cfg.Options.GeoJSONPath),
		slog.String("output", cfg.Options.OutputPath),
		slog.Bool("store", st != nil))

	return &PredictionService{
		runner:     runner,
		store:      st,
		validate:   validator.New(),
		files:      validation.NewFileValidator(logger),
		logger:     logger,
		uploadDir:  cfg.UploadDir,
		runTimeout: cfg.RunTimeout,
		opts:       cfg.Options,
	}
}

// options returns a copy of the current run options
func (s *PredictionService) options() pipeline.Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// Run executes the pipeline on the configured dataset and imports the output. It returns
// ErrRunInProgress without waiting when another run holds the lock. The run ignores ctx
// cancellation and is bounded by the configured run timeout instead.
func (s *PredictionService) Run(ctx context.Context, req api.RunRequest) (*api.RunResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.NewAppValidationError(err.Error())
	}
	if !s.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.runMu.Unlock()

	return s.run(ctx, req, "")
}

// run executes one pipeline run. A non-empty input overrides the configured dataset.
func (s *PredictionService) run(ctx context.Context, req api.RunRequest, input string) (*api.RunResponse, error) {
	ctx = context.WithoutCancel(ctx)
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	opts := s.options()
	if input != "" {
		opts.InputPath = input
	}
	if req.Years > 0 {
		opts.Years = req.Years
	}

	out, err := s.runner.Run(ctx, opts)
	if err != nil {
		return nil, err
	}

	resp := toRunResponse(out.Summary)
	if s.store != nil {
		stats, err := s.store.Upsert(ctx, out.Rows)
		if err != nil {
			return nil, err
		}
		resp.Imported = &api.ImportStats{Inserted: stats.Inserted, Updated: stats.Updated}
		s.logger.InfoContext(ctx, "Predictions imported",
			slog.Int("inserted", stats.Inserted),
			slog.Int("updated", stats.Updated))
	}

	s.mu.Lock()
	s.lastRun = resp
	s.mu.Unlock()
	return resp, nil
}

// LastRun returns the response of the most recent successful run, or nil
func (s *PredictionService) LastRun() *api.RunResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}

// SaveDataset runs the pipeline on an uploaded dataset and, when the run succeeds, stores
// it in the upload directory as the input of subsequent runs. A rejected upload leaves the
// current dataset in place. The run lock is held throughout.
func (s *PredictionService) SaveDataset(ctx context.Context, filename string, r io.Reader) (*api.DatasetResponse, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if err := s.files.ValidateDatasetName(filename); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFileType, err)
	}
	if !s.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.runMu.Unlock()

	dir := s.uploadDir
	if dir == "" {
		dir = filepath.Dir(s.options().InputPath)
	}
	target := filepath.Join(dir, "dataset"+ext)

	staged, n, err := writeUpload(dir, ext, r)
	if err != nil {
		return nil, err
	}
	defer os.Remove(staged)

	run, err := s.run(ctx, api.RunRequest{}, staged)
	if err != nil {
		s.logger.WarnContext(ctx, "Uploaded dataset rejected, keeping current dataset",
			slog.String("filename", filename),
			slog.String("current", s.DatasetPath()),
			slog.String("error", err.Error()))
		return nil, err
	}

	if err := os.Rename(staged, target); err != nil {
		return nil, apperrors.NewStorageError("failed to replace dataset", err).WithContext("path", target)
	}

	s.mu.Lock()
	previous := s.opts.InputPath
	s.opts.InputPath = target
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Dataset replaced",
		slog.String("filename", filename),
		slog.String("path", target),
		slog.String("previous", previous),
		slog.Int64("bytes", n))

	return &api.DatasetResponse{Dataset: target, Bytes: n, Run: run}, nil
}

// writeUpload copies r into a hidden staging file in dir that keeps the dataset extension
func writeUpload(dir, ext string, r io.Reader) (string, int64, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, apperrors.NewStorageError("failed to create upload directory", err).WithContext("dir", dir)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*"+ext)
	if err != nil {
		return "", 0, apperrors.NewStorageError("failed to create upload file", err)
	}

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil && n == 0 {
		err = apperrors.NewAppValidationError("uploaded dataset is empty")
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", 0, err
	}
	return tmp.Name(), n, nil
}

// ImportOutput loads an existing output table into the store
func (s *PredictionService) ImportOutput(ctx context.Context, path string) (store.ImportStats, error) {
	if s.store == nil {
		return store.ImportStats{}, ErrStoreDisabled
	}
	rows, err := exporter.ReadPredictions(path)
	if err != nil {
		return store.ImportStats{}, err
	}
	stats, err := s.store.Upsert(ctx, rows)
	if err != nil {
		return store.ImportStats{}, err
	}
	s.logger.InfoContext(ctx, "Output table imported",
		slog.String("path", path),
		slog.Int("inserted", stats.Inserted),
		slog.Int("updated", stats.Updated))
	return stats, nil
}

// Bootstrap imports the configured output table when the store is still empty. A missing
// output table is not an error.
func (s *PredictionService) Bootstrap(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	n, err := s.store.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = s.ImportOutput(ctx, s.options().OutputPath)
	if apperrors.IsType(err, apperrors.ErrTypeNotFound) {
		s.logger.InfoContext(ctx, "No output table to import yet",
			slog.String("path", s.options().OutputPath))
		return nil
	}
	return err
}

// Predictions returns the stored rows matching filter as GeoJSON points. Rows without
// coordinates are left out.
func (s *PredictionService) Predictions(ctx context.Context, filter domain.PredictionFilter) (*geojson.FeatureCollection, error) {
	if s.store == nil {
		return nil, ErrStoreDisabled
	}
	if err := s.validate.Struct(filter); err != nil {
		return nil, apperrors.NewAppValidationError(err.Error())
	}
	filter.WithCoordinates = true

	stored, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	rows := make([]domain.ForecastRow, len(stored))
	for i, p := range stored {
		rows[i] = p.Row
	}
	return geo.PointCollection(rows), nil
}

// Meta lists the distinct years and routes in the store
func (s *PredictionService) Meta(ctx context.Context) (*api.MetaResponse, error) {
	if s.store == nil {
		return nil, ErrStoreDisabled
	}
	years, err := s.store.Years(ctx)
	if err != nil {
		return nil, err
	}
	routes, err := s.store.Routes(ctx)
	if err != nil {
		return nil, err
	}
	if years == nil {
		years = []int{}
	}
	if routes == nil {
		routes = []string{}
	}
	return &api.MetaResponse{Years: years, Routes: routes}, nil
}

// ReferenceGeoJSON returns the raw geographic reference file
func (s *PredictionService) ReferenceGeoJSON(ctx context.Context) ([]byte, error) {
	path := s.options().GeoJSONPath
	if path == "" {
		return nil, apperrors.NewNotFoundError("GeoJSON")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NewNotFoundError("GeoJSON").WithContext("path", path)
		}
		return nil, apperrors.NewStorageError("failed to read GeoJSON", err)
	}
	return data, nil
}

// DatasetPath returns the input table used by the next run
func (s *PredictionService) DatasetPath() string {
	return s.options().InputPath
}

func toRunResponse(sum pipeline.Summary) *api.RunResponse {
	return &api.RunResponse{
		TraceID:     sum.TraceID,
		Rows:        sum.TotalRows,
		Historical:  sum.Historical,
		Forecast:    sum.Forecast,
		TargetYears: sum.TargetYears,
		ModelState:  sum.ModelState,
		HoldoutR2:   sum.HoldoutR2,
		GeoMatched:  sum.GeoMatched,
		Unmatched:   sum.GeoUnmatched,
		Fallbacks:   sum.Fallbacks,
		OutputPath:  sum.OutputPath,
		DurationMS:  sum.Duration.Milliseconds(),
		StageTimes:  sum.StageTimes,
	}
}
