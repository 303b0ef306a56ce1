package config

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDirectoriesWithLogFile(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Pipeline.InputPath = filepath.Join(root, "input", "dataset.csv")
	cfg.Pipeline.OutputPath = filepath.Join(root, "output", "predictions.csv")
	cfg.Pipeline.ModelPath = filepath.Join(root, "models", "forest.json")
	cfg.Pipeline.UploadDir = filepath.Join(root, "uploads")
	cfg.Store.Path = filepath.Join(root, "db", "predictions.db")
	cfg.Logging.Output = "file"
	cfg.Logging.FilePath = filepath.Join(root, "logs", "app.log")

	require.NoError(t, cfg.EnsureDirectories())

	for _, dir := range []string{"input", "output", "models", "uploads", "db", "logs"} {
		assert.DirExists(t, filepath.Join(root, dir))
	}
	assert.False(t, FileExists(cfg.Pipeline.InputPath), "only directories are created")
}

func TestEnsureDirectoriesSkipsDisabled(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Pipeline.InputPath = filepath.Join(root, "input", "dataset.csv")
	cfg.Pipeline.OutputPath = filepath.Join(root, "output", "predictions.csv")
	cfg.Pipeline.ModelPath = ""
	cfg.Pipeline.UploadDir = ""
	cfg.Store.Enabled = false
	cfg.Store.Path = filepath.Join(root, "db", "predictions.db")
	cfg.Logging.Output = "console"

	require.NoError(t, cfg.EnsureDirectories())
	assert.NoDirExists(t, filepath.Join(root, "db"))
}

func TestLogPathResolution(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	cfg := Default()
	cfg.LogPathResolution(logger)

	assert.Contains(t, buf.String(), "Path resolution summary")
	assert.Contains(t, buf.String(), DefaultInputPath)
	assert.Contains(t, buf.String(), DefaultStorePath)
}

func TestFileExists(t *testing.T) {
	assert.True(t, FileExists(t.TempDir()))
	assert.False(t, FileExists(filepath.Join(t.TempDir(), "missing")))
}
