package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apierrors "sehatmap/internal/errors"
	"sehatmap/internal/services"
	api "sehatmap/pkg/contracts/api/v1"
	"sehatmap/pkg/contracts/domain"
)

// MockPredictionService is a mock implementation of PredictionServiceInterface
type MockPredictionService struct {
	mock.Mock
}

func (m *MockPredictionService) Run(ctx context.Context, req api.RunRequest) (*api.RunResponse, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.RunResponse), args.Error(1)
}

func (m *MockPredictionService) SaveDataset(ctx context.Context, filename string, r io.Reader) (*api.DatasetResponse, error) {
	body, _ := io.ReadAll(r)
	args := m.Called(filename, string(body))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.DatasetResponse), args.Error(1)
}

func (m *MockPredictionService) Predictions(ctx context.Context, filter domain.PredictionFilter) (*geojson.FeatureCollection, error) {
	args := m.Called(filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geojson.FeatureCollection), args.Error(1)
}

func (m *MockPredictionService) Meta(ctx context.Context) (*api.MetaResponse, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.MetaResponse), args.Error(1)
}

func (m *MockPredictionService) ReferenceGeoJSON(ctx context.Context) ([]byte, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockPredictionService) LastRun() *api.RunResponse {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*api.RunResponse)
}

func newTestHandler(svc *MockPredictionService, maxUpload int64) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPredictionHandler(svc, maxUpload, logger, apierrors.NewErrorHandler(logger, false)).Routes()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestPredictionHandler_GetGeoJSON(t *testing.T) {
	t.Run("serves the raw file", func(t *testing.T) {
		svc := new(MockPredictionService)
		raw := []byte(`{"type":"FeatureCollection","features":[]}`)
		svc.On("ReferenceGeoJSON").Return(raw, nil)

		rec := httptest.NewRecorder()
		newTestHandler(svc, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/geojson", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, raw, rec.Body.Bytes())
	})

	t.Run("missing reference", func(t *testing.T) {
		svc := new(MockPredictionService)
		svc.On("ReferenceGeoJSON").Return(nil, apierrors.NewNotFoundError("GeoJSON"))

		rec := httptest.NewRecorder()
		newTestHandler(svc, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/geojson", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "GeoJSON not found", body["detail"])
		assert.Equal(t, apierrors.TypeDataNotFound, body["type"])
	})
}

func TestPredictionHandler_GetPredictions(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Point{106.9, -6.1})
	f.Properties["kecamatan"] = "koja"
	fc.Append(f)

	tests := []struct {
		name       string
		query      string
		setup      func(*MockPredictionService)
		wantStatus int
	}{
		{
			name:  "no filter",
			query: "",
			setup: func(m *MockPredictionService) {
				m.On("Predictions", domain.PredictionFilter{}).Return(fc, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:  "year and priority",
			query: "?tahun=2025&prioritas=Priority",
			setup: func(m *MockPredictionService) {
				m.On("Predictions", domain.PredictionFilter{Year: 2025, Priority: "Priority"}).Return(fc, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "non numeric year",
			query:      "?tahun=next",
			setup:      func(m *MockPredictionService) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:  "invalid priority",
			query: "?prioritas=Urgent",
			setup: func(m *MockPredictionService) {
				m.On("Predictions", domain.PredictionFilter{Priority: "Urgent"}).
					Return(nil, apierrors.NewAppValidationError("invalid prioritas"))
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:  "store disabled",
			query: "",
			setup: func(m *MockPredictionService) {
				m.On("Predictions", domain.PredictionFilter{}).Return(nil, services.ErrStoreDisabled)
			},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockPredictionService)
			tt.setup(svc)

			rec := httptest.NewRecorder()
			newTestHandler(svc, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/predictions"+tt.query, nil))

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus == http.StatusOK {
				body := decodeBody(t, rec)
				assert.Equal(t, "FeatureCollection", body["type"])
				assert.Len(t, body["features"], 1)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestPredictionHandler_GetMeta(t *testing.T) {
	svc := new(MockPredictionService)
	svc.On("Meta").Return(&api.MetaResponse{Years: []int{2024, 2025}, Routes: []string{"Rute-1"}}, nil)

	rec := httptest.NewRecorder()
	newTestHandler(svc, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/predictions/meta", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"years":[2024,2025],"routes":["Rute-1"]}`, rec.Body.String())
}

func TestPredictionHandler_Run(t *testing.T) {
	resp := &api.RunResponse{TraceID: "abc", Rows: 12, Fallbacks: []string{}}

	tests := []struct {
		name       string
		body       string
		setup      func(*MockPredictionService)
		wantStatus int
		wantCode   string
	}{
		{
			name: "empty body",
			body: "",
			setup: func(m *MockPredictionService) {
				m.On("Run", api.RunRequest{}).Return(resp, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "explicit horizon",
			body: `{"years": 5}`,
			setup: func(m *MockPredictionService) {
				m.On("Run", api.RunRequest{Years: 5}).Return(resp, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "malformed body",
			body:       `{"years":`,
			setup:      func(m *MockPredictionService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name: "already running",
			body: "",
			setup: func(m *MockPredictionService) {
				m.On("Run", api.RunRequest{}).Return(nil, services.ErrRunInProgress)
			},
			wantStatus: http.StatusConflict,
			wantCode:   "RUN_IN_PROGRESS",
		},
		{
			name: "input missing",
			body: "",
			setup: func(m *MockPredictionService) {
				m.On("Run", api.RunRequest{}).Return(nil, apierrors.NewNotFoundError("input file data.csv"))
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockPredictionService)
			tt.setup(svc)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(tt.body))
			newTestHandler(svc, 0).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			body := decodeBody(t, rec)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, body["error_code"])
			} else {
				assert.Equal(t, "abc", body["trace_id"])
			}
			svc.AssertExpectations(t)
		})
	}
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	buf := new(bytes.Buffer)
	mw := multipart.NewWriter(buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func TestPredictionHandler_UploadDataset(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		svc := new(MockPredictionService)
		svc.On("SaveDataset", "dataset.csv", "tahun,kecamatan\n2024,Koja\n").
			Return(&api.DatasetResponse{Dataset: "data/uploads/dataset.csv", Bytes: 25, Run: &api.RunResponse{Rows: 3}}, nil)

		body, contentType := multipartBody(t, "dataset", "dataset.csv", "tahun,kecamatan\n2024,Koja\n")
		req := httptest.NewRequest(http.MethodPost, "/dataset", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		newTestHandler(svc, 1<<20).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, "data/uploads/dataset.csv", decodeBody(t, rec)["dataset"])
		svc.AssertExpectations(t)
	})

	t.Run("wrong field", func(t *testing.T) {
		svc := new(MockPredictionService)
		body, contentType := multipartBody(t, "file", "dataset.csv", "x")
		req := httptest.NewRequest(http.MethodPost, "/dataset", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		newTestHandler(svc, 1<<20).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "SaveDataset", mock.Anything, mock.Anything)
	})

	t.Run("wrong file type", func(t *testing.T) {
		svc := new(MockPredictionService)
		svc.On("SaveDataset", "notes.txt", "x").Return(nil, services.ErrInvalidFileType)

		body, contentType := multipartBody(t, "dataset", "notes.txt", "x")
		req := httptest.NewRequest(http.MethodPost, "/dataset", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		newTestHandler(svc, 1<<20).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION_FAILED", decodeBody(t, rec)["error_code"])
	})

	t.Run("too large", func(t *testing.T) {
		svc := new(MockPredictionService)
		body, contentType := multipartBody(t, "dataset", "dataset.csv", strings.Repeat("x", 512))
		req := httptest.NewRequest(http.MethodPost, "/dataset", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		newTestHandler(svc, 64).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		svc.AssertNotCalled(t, "SaveDataset", mock.Anything, mock.Anything)
	})

	t.Run("not multipart", func(t *testing.T) {
		svc := new(MockPredictionService)
		req := httptest.NewRequest(http.MethodPost, "/dataset", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		newTestHandler(svc, 1<<20).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPredictionHandler_GetLastRun(t *testing.T) {
	svc := new(MockPredictionService)
	svc.On("LastRun").Return(nil).Once()
	svc.On("LastRun").Return(&api.RunResponse{TraceID: "t1"}).Once()
	h := newTestHandler(svc, 0)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/last", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/last", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "t1", decodeBody(t, rec)["trace_id"])
}
