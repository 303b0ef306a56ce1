package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "sehatmap/internal/errors"
	"sehatmap/internal/services"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dataset := filepath.Join(t.TempDir(), "dataset.csv")
	require.NoError(t, os.WriteFile(dataset, []byte("tahun\n"), 0o644))
	datasetPath := func() string { return dataset }

	tests := []struct {
		name       string
		pinger     stubPinger
		path       string
		wantStatus int
	}{
		{"liveness", stubPinger{}, "/healthz", http.StatusOK},
		{"ready", stubPinger{}, "/readyz", http.StatusOK},
		{"store down", stubPinger{err: errors.New("closed")}, "/readyz", http.StatusServiceUnavailable},
		{"version", stubPinger{}, "/version", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(services.NewHealthService(tt.pinger, datasetPath, "", logger), logger)
			mux := http.NewServeMux()
			mux.HandleFunc("/healthz", h.LivenessCheck)
			mux.HandleFunc("/readyz", h.ReadinessCheck)
			mux.HandleFunc("/version", h.Version)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestMetricsHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eh := apierrors.NewErrorHandler(logger, false)

	rec := httptest.NewRecorder()
	NewMetricsHandler(nil, eh).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	scrape := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pipeline_runs_total 1\n"))
	})
	rec = httptest.NewRecorder()
	NewMetricsHandler(scrape, eh).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pipeline_runs_total")
}
