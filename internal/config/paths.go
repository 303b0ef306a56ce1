package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// EnsureDirectories creates the parent directories of every configured file
func (c *Config) EnsureDirectories() error {
	directories := []string{
		filepath.Dir(c.Pipeline.InputPath),
		filepath.Dir(c.Pipeline.OutputPath),
	}
	if c.Pipeline.ModelPath != "" {
		directories = append(directories, filepath.Dir(c.Pipeline.ModelPath))
	}
	if c.Pipeline.UploadDir != "" {
		directories = append(directories, c.Pipeline.UploadDir)
	}
	if c.Store.Enabled {
		directories = append(directories, filepath.Dir(c.Store.Path))
	}
	if c.Logging.Output != "console" {
		directories = append(directories, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		slog.Debug("Ensured directory exists", slog.String("directory", dir))
	}
	return nil
}

// LogPathResolution logs the configured file locations
func (c *Config) LogPathResolution(logger *slog.Logger) {
	logger.Info("Path resolution summary",
		slog.Group("pipeline",
			slog.String("input", c.Pipeline.InputPath),
			slog.String("geojson", c.Pipeline.GeoJSONPath),
			slog.String("output", c.Pipeline.OutputPath),
			slog.String("model", c.Pipeline.ModelPath),
			slog.String("uploads", c.Pipeline.UploadDir),
		),
		slog.String("store", c.Store.Path),
		slog.String("log_file", c.Logging.FilePath))
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
