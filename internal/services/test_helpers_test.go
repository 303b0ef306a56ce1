package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"sehatmap/internal/pipeline"
	"sehatmap/internal/store"
	"sehatmap/pkg/contracts/domain"
)

// MockPipelineRunner is a mock for the PipelineRunner interface
type MockPipelineRunner struct {
	mock.Mock
}

func (m *MockPipelineRunner) Run(ctx context.Context, opts pipeline.Options) (*pipeline.Output, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.Output), args.Error(1)
}

// MockPredictionStore is a mock for the PredictionStore and Pinger interfaces
type MockPredictionStore struct {
	mock.Mock
}

func (m *MockPredictionStore) Upsert(ctx context.Context, rows []domain.ForecastRow) (store.ImportStats, error) {
	args := m.Called(ctx, rows)
	return args.Get(0).(store.ImportStats), args.Error(1)
}

func (m *MockPredictionStore) List(ctx context.Context, filter domain.PredictionFilter) ([]domain.StoredPrediction, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.StoredPrediction), args.Error(1)
}

func (m *MockPredictionStore) Years(ctx context.Context) ([]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

func (m *MockPredictionStore) Routes(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockPredictionStore) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockPredictionStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
