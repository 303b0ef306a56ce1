package model

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// ForestParams are the hyperparameters of a bagged regression forest
type ForestParams struct {
	Trees           int   `json:"trees" yaml:"trees" validate:"min=1"`
	MaxDepth        int   `json:"max_depth" yaml:"max_depth" validate:"min=1"`
	MinSamplesSplit int   `json:"min_samples_split" yaml:"min_samples_split" validate:"min=2"`
	MinSamplesLeaf  int   `json:"min_samples_leaf" yaml:"min_samples_leaf" validate:"min=1"`
	Seed            int64 `json:"seed" yaml:"seed"`
}

// DefaultForestParams returns 200 trees of depth at most 12, seeded with 42
func DefaultForestParams() ForestParams {
	return ForestParams{
		Trees:           200,
		MaxDepth:        12,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Seed:            42,
	}
}

// Forest averages the predictions of bootstrap-trained regression trees
type Forest struct {
	Params   ForestParams `json:"params"`
	Features int          `json:"features"`
	Trees    []*Tree      `json:"trees"`
}

// FitForest trains a forest on x and y. Trees are grown in parallel; each tree draws its
// bootstrap sample from its own seed so the result does not depend on scheduling.
func FitForest(ctx context.Context, x mat.Matrix, y []float64, p ForestParams) (*Forest, error) {
	rows, cols := x.Dims()
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("empty training matrix")
	}
	if rows != len(y) {
		return nil, fmt.Errorf("matrix has %d rows but target has %d values", rows, len(y))
	}
	if p.Trees < 1 || p.MaxDepth < 1 {
		return nil, fmt.Errorf("invalid forest params: trees=%d max_depth=%d", p.Trees, p.MaxDepth)
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}

	columns := make([][]float64, cols)
	for j := range columns {
		columns[j] = mat.Col(nil, j, x)
	}

	forest := &Forest{Params: p, Features: cols, Trees: make([]*Tree, p.Trees)}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < p.Trees; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(p.Seed + int64(i)))
			forest.Trees[i] = growTree(columns, y, bootstrap(rows, rng), p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("forest training interrupted: %w", err)
	}
	return forest, nil
}

// Predict returns the mean tree prediction for every row of x
func (f *Forest) Predict(x mat.Matrix) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, fmt.Errorf("forest has no trees")
	}
	rows, cols := x.Dims()
	if cols != f.Features {
		return nil, fmt.Errorf("forest expects %d features, got %d", f.Features, cols)
	}

	out := make([]float64, rows)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, x)
		sum := 0.0
		for _, t := range f.Trees {
			sum += t.predictRow(row)
		}
		out[i] = sum / float64(len(f.Trees))
	}
	return out, nil
}
