package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFrom(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		file        string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, DefaultHorizon, cfg.Pipeline.Years)
				assert.Equal(t, int64(DefaultSeed), cfg.Pipeline.TieBreakSeed)
				assert.Equal(t, DefaultTrees, cfg.Pipeline.Trees)
				assert.Equal(t, DefaultMaxDepth, cfg.Pipeline.MaxDepth)
				assert.Equal(t, DefaultInputPath, cfg.Pipeline.InputPath)
				assert.True(t, cfg.Store.Enabled)
				assert.Equal(t, "prometheus", cfg.Telemetry.MetricsExporter)
			},
		},
		{
			name: "yaml overlays defaults",
			file: `
server:
  port: 9090
  read_timeout: 5s
pipeline:
  years: 3
  geojson_path: geo/jakarta.geojson
`,
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, 3, cfg.Pipeline.Years)
				assert.Equal(t, "geo/jakarta.geojson", cfg.Pipeline.GeoJSONPath)
				assert.Equal(t, DefaultOutputPath, cfg.Pipeline.OutputPath, "keys absent from the file keep defaults")
			},
		},
		{
			name: "environment wins over yaml",
			file: "pipeline:\n  years: 3\n",
			env: map[string]string{
				"SEHATMAP_PIPELINE_YEARS":          "7",
				"SEHATMAP_STORE_DB_PATH":           "/tmp/p.db",
				"SEHATMAP_LOGGING_LEVEL":           "debug",
				"SEHATMAP_SECURITY_RATE_LIMIT_RPS": "5",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 7, cfg.Pipeline.Years)
				assert.Equal(t, "/tmp/p.db", cfg.Store.Path)
				assert.Equal(t, "debug", cfg.Logging.Level)
				assert.Equal(t, 5.0, cfg.Security.RateLimit.RPS)
			},
		},
		{
			name:    "invalid port",
			env:     map[string]string{"SEHATMAP_SERVER_PORT": "70000"},
			wantErr: true,
		},
		{
			name:    "invalid log level",
			file:    "logging:\n  level: loud\n",
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			file:    "server: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeConfigFile(t, tt.file)
			}

			cfg, err := LoadFrom(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.validateCfg(t, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Logging.Output = "file"
	cfg.Logging.FilePath = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Store.Path = ""
	assert.Error(t, cfg.Validate())

	cfg.Store.Enabled = false
	assert.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.Telemetry.TracesExporter = "jaeger"
	assert.Error(t, cfg.Validate())
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Pipeline.InputPath = filepath.Join(dir, "in", "data.csv")
	cfg.Pipeline.OutputPath = filepath.Join(dir, "out", "predictions.csv")
	cfg.Pipeline.ModelPath = filepath.Join(dir, "models", "forest.json")
	cfg.Pipeline.UploadDir = filepath.Join(dir, "uploads")
	cfg.Store.Path = filepath.Join(dir, "db", "p.db")

	require.NoError(t, cfg.EnsureDirectories())
	for _, sub := range []string{"in", "out", "models", "uploads", "db"} {
		assert.DirExists(t, filepath.Join(dir, sub))
	}
	assert.True(t, FileExists(filepath.Join(dir, "in")))
	assert.False(t, FileExists(filepath.Join(dir, "nope")))
}
