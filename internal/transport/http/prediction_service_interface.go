package http

import (
	"context"
	"io"

	"github.com/paulmach/orb/geojson"

	api "sehatmap/pkg/contracts/api/v1"
	"sehatmap/pkg/contracts/domain"
)

// PredictionServiceInterface defines the prediction operations the handler needs
type PredictionServiceInterface interface {
	Run(ctx context.Context, req api.RunRequest) (*api.RunResponse, error)
	SaveDataset(ctx context.Context, filename string, r io.Reader) (*api.DatasetResponse, error)
	Predictions(ctx context.Context, filter domain.PredictionFilter) (*geojson.FeatureCollection, error)
	Meta(ctx context.Context) (*api.MetaResponse, error)
	ReferenceGeoJSON(ctx context.Context) ([]byte, error)
	LastRun() *api.RunResponse
}
