package dataprocessing

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	apperrors "sehatmap/internal/errors"
)

func TestParseCSV(t *testing.T) {
	input := "\ufeffkecamatan, tahun ,kecamatan,\n" +
		"Cilincing,2021,dup\n" +
		",,,\n" +
		"Koja,NA,dup2,extra,ignored\n"

	table, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"kecamatan", "tahun", "kecamatan.1", "column_3"}, table.Columns())
	assert.Equal(t, 2, table.Len(), "blank rows are dropped")

	years, ok := table.Column("tahun")
	require.True(t, ok)
	require.Len(t, years, 2)
	require.NotNil(t, years[0])
	assert.Equal(t, "2021", *years[0])
	assert.Nil(t, years[1], "NA is read as missing")

	dup, ok := table.Column("kecamatan.1")
	require.True(t, ok)
	assert.Equal(t, "dup2", *dup[1])

	_, ok = table.Column("missing")
	assert.False(t, ok)
}

func TestParseCSVHeaderOnly(t *testing.T) {
	table, err := ParseCSV(strings.NewReader("kecamatan,tahun\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())

	cells, ok := table.Column("tahun")
	assert.True(t, ok)
	assert.Empty(t, cells)
}

func TestReadTableCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("kecamatan,persentase\nKoja,90\n"), 0o644))

	table, err := ReadTable(path)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
}

func TestReadTableXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"kecamatan", "tahun", "persentase"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"Tanah Abang", 2022, 88.5}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"Koja", 2022}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	table, err := ReadTable(path)
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())

	names, _ := table.Column("kecamatan")
	assert.Equal(t, "Tanah Abang", *names[0])

	coverage, _ := table.Column("persentase")
	assert.Equal(t, "88.5", *coverage[0])
	assert.Nil(t, coverage[1], "short rows are padded with missing cells")
}

func TestReadTableMissingFile(t *testing.T) {
	_, err := ReadTable(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}
