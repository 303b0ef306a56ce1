package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sehatmap/internal/exporter"
	"sehatmap/internal/store"
	"sehatmap/pkg/contracts/domain"
)

const dataset = `tahun,kecamatan,wilayah,jenis_kelamin,jumlah_estimasi_penderita,jumlah_yang_mendapatkan_pelayanan_kesehatan,persentase
2022,Koja,Jakarta Utara,L,100,70,70
2022,Gambir,Jakarta Pusat,L,100,90,90
2023,Koja,Jakarta Utara,L,100,72,72
2023,Gambir,Jakarta Pusat,L,100,91,91
`

func TestRunWritesOutputAndImports(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "dataset.csv")
	require.NoError(t, os.WriteFile(input, []byte(dataset), 0o644))
	output := filepath.Join(dir, "out", "predictions.csv")
	db := filepath.Join(dir, "predictions.db")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-input_csv", input,
		"-geojson", "",
		"-output_csv", output,
		"-model_path", "",
		"-years", "2",
		"-seed", "7",
		"-db", db,
	}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var summary struct {
		TotalRows  int `json:"total_rows"`
		Historical int `json:"historical_rows"`
		Forecast   int `json:"forecast_rows"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	assert.Equal(t, 8, summary.TotalRows)
	assert.Equal(t, 4, summary.Historical)
	assert.Equal(t, 4, summary.Forecast)

	rows, err := exporter.ReadPredictions(output)
	require.NoError(t, err)
	assert.Len(t, rows, 8)

	st, err := store.Open(context.Background(), db, nil)
	require.NoError(t, err)
	defer st.Close()
	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	priority, err := st.List(context.Background(), domain.PredictionFilter{Priority: domain.PriorityHigh})
	require.NoError(t, err)
	require.Len(t, priority, 4)
	for _, p := range priority {
		assert.Equal(t, "gambir", p.Row.Subdivision)
	}
}

func TestRunFatalInput(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "predictions.csv")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-input_csv", filepath.Join(dir, "missing.csv"),
		"-output_csv", output,
	}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.NoFileExists(t, output)
	assert.Contains(t, stderr.String(), "Forecast failed")
	assert.Empty(t, stdout.String())
}

func TestRunFlags(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(context.Background(), []string{"-unknown"}, &stdout, &stderr))

	stdout.Reset()
	assert.Equal(t, 0, run(context.Background(), []string{"-version"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "SehatMap forecast")
}
