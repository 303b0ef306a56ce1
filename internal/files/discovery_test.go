package files

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("tahun\n"), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestFindDatasets(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	touch(t, filepath.Join(dir, "dataset.csv"), base.Add(2*time.Hour))
	touch(t, filepath.Join(dir, "old.XLSX"), base)
	touch(t, filepath.Join(dir, "~$old.xlsx"), base.Add(3*time.Hour))
	touch(t, filepath.Join(dir, ".upload-123"), base.Add(4*time.Hour))
	touch(t, filepath.Join(dir, "notes.txt"), base.Add(5*time.Hour))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.csv"), 0o755))

	found, err := NewDiscovery("").FindDatasets(dir)
	require.NoError(t, err)

	names := make([]string, len(found))
	for i, f := range found {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"old.XLSX", "dataset.csv"}, names)
	assert.Equal(t, filepath.Join(dir, "dataset.csv"), found[1].Path)
	assert.Equal(t, int64(len("tahun\n")), found[1].Size)
}

func TestLatestDataset(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "uploads")
	d := NewDiscovery(base)

	_, ok, err := d.LatestDataset("uploads")
	require.NoError(t, err)
	assert.False(t, ok, "missing directory has no datasets")

	require.NoError(t, os.Mkdir(dir, 0o755))
	now := time.Now()
	touch(t, filepath.Join(dir, "dataset.csv"), now.Add(-time.Hour))
	touch(t, filepath.Join(dir, "dataset.xlsx"), now)

	latest, ok, err := d.LatestDataset("uploads")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "dataset.xlsx", latest.Name)
}

func TestIsDataset(t *testing.T) {
	assert.True(t, IsDataset("a.csv"))
	assert.True(t, IsDataset("A.XLS"))
	assert.False(t, IsDataset("a.geojson"))
	assert.False(t, IsDataset("csv"))
}
