package model

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"os"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"sehatmap/internal/dataprocessing"
	apperrors "sehatmap/internal/errors"
)

// ErrNoModel is returned when predicting without a trained or loaded model
var ErrNoModel = errors.New("no model available")

// State is the outcome of model selection
type State int

const (
	StateNoModel State = iota
	StateTrained
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateTrained:
		return "trained"
	case StateLoaded:
		return "loaded"
	default:
		return "no_model"
	}
}

// Fallback kinds reported by the selector
const (
	FallbackTrain   = "train_failed"
	FallbackLoad    = "load_failed"
	FallbackPersist = "persist_failed"
)

// Regressor predicts one value per row of a feature matrix
type Regressor interface {
	Predict(x mat.Matrix) ([]float64, error)
}

// Model is a regressor together with the feature columns it was fit on
type Model struct {
	State     State
	Columns   []string
	Regressor Regressor
	HoldoutR2 *float64

	// Fallbacks lists the degraded paths taken while selecting this model
	Fallbacks []string
}

// Available reports whether the model can predict
func (m *Model) Available() bool {
	return m != nil && m.State != StateNoModel && m.Regressor != nil
}

// Predict aligns the batch onto the model's columns and predicts
func (m *Model) Predict(batch *dataprocessing.FeatureSet) ([]float64, error) {
	if !m.Available() {
		return nil, ErrNoModel
	}
	x := batch.Align(m.Columns)
	if x == nil {
		return nil, apperrors.NewModelError("empty prediction batch", nil)
	}
	preds, err := m.Regressor.Predict(x)
	if err != nil {
		return nil, apperrors.NewModelError("prediction failed", err)
	}
	return preds, nil
}

// SelectorConfig controls the train-or-load decision
type SelectorConfig struct {
	MinLabeled   int
	TestFraction float64
	SplitSeed    int64
	Forest       ForestParams
	ModelPath    string
}

// DefaultSelectorConfig trains once more than 10 labeled rows exist, holding out 20%
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		MinLabeled:   10,
		TestFraction: 0.2,
		SplitSeed:    42,
		Forest:       DefaultForestParams(),
	}
}

// Selector decides once per run whether to train, load or go without a model
type Selector struct {
	cfg    SelectorConfig
	logger *slog.Logger
}

// NewSelector creates a selector
func NewSelector(cfg SelectorConfig, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{cfg: cfg, logger: logger.With(slog.String("component", "model_selector"))}
}

// Select trains on the labeled rows of fs when there are enough of them, otherwise loads
// the persisted model when one exists. Every failure degrades to a weaker state and is
// logged; Select itself never fails.
func (s *Selector) Select(ctx context.Context, fs *dataprocessing.FeatureSet) *Model {
	x, y := fs.Labeled()

	if len(y) > s.cfg.MinLabeled {
		m, err := s.train(ctx, fs.Columns, x, y)
		if err != nil {
			s.logger.WarnContext(ctx, "Model training failed, continuing without a model",
				slog.String("error", err.Error()))
			return &Model{State: StateNoModel, Fallbacks: []string{FallbackTrain}}
		}

		if s.cfg.ModelPath != "" {
			if err := Save(s.cfg.ModelPath, m); err != nil {
				s.logger.WarnContext(ctx, "Failed to persist model",
					slog.String("path", s.cfg.ModelPath),
					slog.String("error", err.Error()))
				m.Fallbacks = append(m.Fallbacks, FallbackPersist)
			} else {
				s.logger.InfoContext(ctx, "Model saved", slog.String("path", s.cfg.ModelPath))
			}
		}
		return m
	}

	if s.cfg.ModelPath != "" {
		if _, err := os.Stat(s.cfg.ModelPath); err == nil {
			m, err := Load(s.cfg.ModelPath)
			if err != nil {
				s.logger.WarnContext(ctx, "Failed to load existing model, continuing without a model",
					slog.String("path", s.cfg.ModelPath),
					slog.String("error", err.Error()))
				return &Model{State: StateNoModel, Fallbacks: []string{FallbackLoad}}
			}
			s.logger.InfoContext(ctx, "Loaded existing model",
				slog.String("path", s.cfg.ModelPath),
				slog.Int("columns", len(m.Columns)))
			return m
		}
	}

	s.logger.WarnContext(ctx, "Not enough labeled rows to train and no existing model, using fallback values",
		slog.Int("labeled_rows", len(y)),
		slog.Int("required", s.cfg.MinLabeled+1))
	return &Model{State: StateNoModel}
}

func (s *Selector) train(ctx context.Context, columns []string, x *mat.Dense, y []float64) (*Model, error) {
	trainIdx, testIdx := SplitIndices(len(y), s.cfg.TestFraction, s.cfg.SplitSeed)

	xTrain, yTrain := subset(x, y, trainIdx)
	forest, err := FitForest(ctx, xTrain, yTrain, s.cfg.Forest)
	if err != nil {
		return nil, err
	}

	m := &Model{
		State:     StateTrained,
		Columns:   append([]string(nil), columns...),
		Regressor: forest,
	}

	attrs := []any{
		slog.Int("train_rows", len(trainIdx)),
		slog.Int("test_rows", len(testIdx)),
		slog.Int("trees", len(forest.Trees)),
	}
	if len(testIdx) > 1 {
		xTest, yTest := subset(x, y, testIdx)
		preds, err := forest.Predict(xTest)
		if err == nil {
			r2 := stat.RSquaredFrom(preds, yTest, nil)
			if !math.IsNaN(r2) && !math.IsInf(r2, 0) {
				m.HoldoutR2 = &r2
				attrs = append(attrs, slog.Float64("holdout_r2", r2))
			}
		}
	}
	s.logger.InfoContext(ctx, "Trained forest model", attrs...)
	return m, nil
}

// SplitIndices shuffles 0..n-1 with seed and holds out ceil(n*testFraction) indices,
// keeping at least one row for training
func SplitIndices(n int, testFraction float64, seed int64) (train, test []int) {
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	nTest := int(math.Ceil(float64(n) * testFraction))
	if nTest >= n {
		nTest = n - 1
	}
	if nTest < 0 {
		nTest = 0
	}
	return perm[nTest:], perm[:nTest]
}

func subset(x *mat.Dense, y []float64, idx []int) (*mat.Dense, []float64) {
	_, cols := x.Dims()
	xs := mat.NewDense(len(idx), cols, nil)
	ys := make([]float64, len(idx))
	for k, i := range idx {
		xs.SetRow(k, x.RawRowView(i))
		ys[k] = y[i]
	}
	return xs, ys
}
