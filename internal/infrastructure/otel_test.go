package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sehatmap/internal/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOTelInitialization(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.TelemetryConfig
		wantErr     bool
		wantTracing bool
		wantMetrics bool
	}{
		{
			name:        "prometheus metrics only",
			cfg:         config.TelemetryConfig{ServiceName: "test", TracesExporter: "none", MetricsExporter: "prometheus"},
			wantMetrics: true,
		},
		{
			name:        "stdout traces",
			cfg:         config.TelemetryConfig{ServiceName: "test", TracesExporter: "stdout", MetricsExporter: "none"},
			wantTracing: true,
		},
		{
			name: "everything off",
			cfg:  config.TelemetryConfig{ServiceName: "test", TracesExporter: "none", MetricsExporter: "none"},
		},
		{
			name:    "unknown trace exporter",
			cfg:     config.TelemetryConfig{ServiceName: "test", TracesExporter: "zipkin"},
			wantErr: true,
		},
		{
			name:    "unknown metric exporter",
			cfg:     config.TelemetryConfig{ServiceName: "test", MetricsExporter: "statsd"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			providers, err := InitializeOTel(tt.cfg, quietLogger())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, providers.Tracer)
			assert.NotNil(t, providers.Meter)
			assert.Equal(t, tt.wantTracing, providers.TracerProvider != nil)
			assert.Equal(t, tt.wantMetrics, providers.PrometheusHTTP != nil)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			assert.NoError(t, providers.Shutdown(ctx))
		})
	}
}

func TestPipelineMetricsExport(t *testing.T) {
	providers, err := InitializeOTel(config.TelemetryConfig{
		ServiceName:     "test",
		TracesExporter:  "none",
		MetricsExporter: "prometheus",
	}, quietLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	metrics, err := CreatePipelineMetrics(providers.Meter)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordRun(ctx, "success")
	metrics.RecordStage(ctx, "forecast", 150*time.Millisecond)
	metrics.RecordRows(ctx, "forecast", 12)
	metrics.RecordFallback(ctx, "geo_unavailable")
	metrics.RecordUnmatched(ctx, 2)

	rec := httptest.NewRecorder()
	providers.PrometheusHTTP.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, name := range []string{
		"pipeline_runs_total",
		"pipeline_stage_duration_seconds",
		"pipeline_rows_total",
		"pipeline_fallbacks_total",
		"geo_unmatched_total",
	} {
		assert.Contains(t, body, name)
	}
	assert.Contains(t, body, `reason="geo_unavailable"`)
}

func TestPipelineMetricsNilSafe(t *testing.T) {
	var m *PipelineMetrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordRun(ctx, "failed")
		m.RecordStage(ctx, "read", time.Second)
		m.RecordRows(ctx, "historical", 1)
		m.RecordFallback(ctx, "train_failed")
		m.RecordUnmatched(ctx, 1)
	})
}

func TestRecordErrorOnSpan(t *testing.T) {
	var buf bytes.Buffer
	providers, err := InitializeOTel(config.TelemetryConfig{
		ServiceName:    "test",
		TracesExporter: "stdout",
	}, slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	ctx, span := providers.Tracer.Start(context.Background(), "run")
	assert.True(t, span.IsRecording())
	assert.NotPanics(t, func() { RecordError(ctx, errors.New("boom")) })
	span.End()

	assert.NotPanics(t, func() { RecordError(context.Background(), errors.New("no span")) })
	assert.Contains(t, buf.String(), "Tracing initialized")
}
