package validation

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	apperrors "sehatmap/internal/errors"
	"sehatmap/internal/files"
)

// FileValidator checks dataset and output locations before the pipeline touches them
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{
		logger: logger,
	}
}

// ValidateDatasetName rejects file names the pipeline cannot read: unknown extensions and
// spreadsheet lock files
func (v *FileValidator) ValidateDatasetName(name string) error {
	base := filepath.Base(name)
	if strings.HasPrefix(base, "~$") {
		v.logger.Warn("Rejected temporary spreadsheet file", slog.String("file", name))
		return apperrors.NewAppValidationError(fmt.Sprintf("%s is a temporary spreadsheet file", base))
	}
	if !files.IsDataset(base) {
		v.logger.Warn("Rejected unsupported dataset format",
			slog.String("file", name),
			slog.String("extension", filepath.Ext(base)))
		return apperrors.NewAppValidationError(
			fmt.Sprintf("%s is not a dataset (expected one of %s)", base, strings.Join(files.DatasetExtensions, ", ")))
	}
	return nil
}

// ValidateFile checks that path is an existing, readable regular file
func (v *FileValidator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		v.logger.Error("File does not exist", slog.String("file", path))
		return apperrors.NewNotFoundError("file " + path)
	}
	if err != nil {
		v.logger.Error("Failed to stat file",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return apperrors.NewStorageError("failed to stat file", err).WithContext("path", path)
	}
	if info.IsDir() {
		v.logger.Error("Path is a directory, not a file", slog.String("path", path))
		return apperrors.NewAppValidationError(fmt.Sprintf("%s is a directory, not a file", path))
	}

	file, err := os.Open(path)
	if err != nil {
		v.logger.Error("File is not readable",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return apperrors.NewStorageError("file is not readable", err).WithContext("path", path)
	}
	file.Close()

	v.logger.Debug("File validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}

// ValidateDataset combines ValidateDatasetName and ValidateFile
func (v *FileValidator) ValidateDataset(path string) error {
	if err := v.ValidateDatasetName(path); err != nil {
		return err
	}
	return v.ValidateFile(path)
}

// ValidateOutputDirectory ensures dir exists, creating it if needed, and is writable
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		v.logger.Error("Failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return apperrors.NewStorageError("failed to create output directory", err).WithContext("dir", dir)
	}

	check, err := os.CreateTemp(dir, ".write-test-*")
	if err != nil {
		v.logger.Error("Output directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return apperrors.NewStorageError("output directory is not writable", err).WithContext("dir", dir)
	}
	check.Close()
	os.Remove(check.Name())

	v.logger.Debug("Output directory validated", slog.String("directory", dir))
	return nil
}
