package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sehatmap/pkg/contracts/domain"
)

// square returns a GeoJSON polygon feature centred on lon/lat
func square(props string, lon, lat float64) string {
	d := 0.01
	return fmt.Sprintf(`{"type":"Feature","properties":%s,"geometry":{"type":"Polygon","coordinates":[[[%f,%f],[%f,%f],[%f,%f],[%f,%f],[%f,%f]]]}}`,
		props, lon-d, lat-d, lon+d, lat-d, lon+d, lat+d, lon-d, lat+d, lon-d, lat-d)
}

func collection(features ...string) []byte {
	out := `{"type":"FeatureCollection","features":[`
	for i, f := range features {
		if i > 0 {
			out += ","
		}
		out += f
	}
	return []byte(out + `]}`)
}

func newTestEnricher() *Enricher {
	return NewEnricher(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestParseReference(t *testing.T) {
	data := collection(
		square(`{"NAME_3":"Tanah Abang","NAME_2":"Jakarta Pusat"}`, 106.81, -6.20),
		square(`{"NAME_3":"Koja"}`, 106.90, -6.11),
		square(`{"NAME_3":"tanah-abang"}`, 0, 0),
	)

	ref, err := ParseReference(data)
	require.NoError(t, err)

	assert.Equal(t, AdminLevel3Attribute, ref.Attribute)
	assert.Equal(t, 2, ref.Len(), "duplicate keys keep the first feature")

	place, ok := ref.Lookup("tanahabang")
	require.True(t, ok)
	assert.Equal(t, "Tanah Abang", place.Name)
	require.True(t, place.HasCentroid())
	assert.InDelta(t, 106.81, *place.Longitude, 1e-6)
	assert.InDelta(t, -6.20, *place.Latitude, 1e-4)

	places := ref.Places()
	assert.Equal(t, "tanahabang", places[0].Key)
	assert.Equal(t, "koja", places[1].Key)
}

func TestParseReferenceFirstFeatureWinsWithoutCentroid(t *testing.T) {
	empty := `{"type":"Feature","properties":{"NAME_3":"Koja"},"geometry":{"type":"Polygon","coordinates":[]}}`
	data := collection(
		empty,
		square(`{"NAME_3":"Koja"}`, 106.90, -6.11),
		square(`{"NAME_3":"Gambir"}`, 106.82, -6.17),
	)

	ref, err := ParseReference(data)
	require.NoError(t, err)
	assert.Equal(t, 2, ref.Len())

	place, ok := ref.Lookup("koja")
	require.True(t, ok)
	assert.False(t, place.HasCentroid(), "a later feature never replaces the first one")

	rows := []domain.ForecastRow{
		{Subdivision: "koja", Year: 2023},
		{Subdivision: "gambir", Year: 2023},
	}
	res := newTestEnricher().Join(context.Background(), rows, ref)
	assert.Equal(t, 1, res.Matched)
	assert.Nil(t, res.Rows[0].Longitude)
	assert.Nil(t, res.Rows[0].Latitude)
	assert.NotNil(t, res.Rows[1].Longitude)
	assert.Equal(t, []domain.RowKey{rows[0].Key()}, res.Unmatched)
}

func TestParseReferenceNameFallback(t *testing.T) {
	data := collection(
		square(`{"zone_name":"ignored","Admin_Name":"Gambir"}`, 106.82, -6.17),
	)

	ref, err := ParseReference(data)
	require.NoError(t, err)
	assert.Equal(t, "Admin_Name", ref.Attribute)

	_, ok := ref.Lookup("gambir")
	assert.True(t, ok)
}

func TestParseReferenceInvalid(t *testing.T) {
	_, err := ParseReference([]byte("{not geojson"))
	assert.Error(t, err)
}

func TestCentroid(t *testing.T) {
	poly := orb.Polygon{{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}}}
	lon, lat, ok := Centroid(poly)
	require.True(t, ok)
	assert.InDelta(t, 1.0, lon, 1e-9)
	assert.InDelta(t, 1.0, lat, 1e-3)
	assert.Equal(t, orb.Point{0, 0}, poly[0][0], "input geometry is not modified")

	_, _, ok = Centroid(orb.Polygon{})
	assert.False(t, ok)
	_, _, ok = Centroid(nil)
	assert.False(t, ok)
}

func TestEnrichJoin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jakarta.geojson")
	require.NoError(t, os.WriteFile(path, collection(square(`{"NAME_3":"Tanah Abang"}`, 106.81, -6.20)), 0o644))

	rows := []domain.ForecastRow{
		{Subdivision: "tanahabang", Year: 2023},
		{Subdivision: "koja", Year: 2023},
		{Subdivision: "koja", Year: 2023},
		{Subdivision: "koja", Year: 2024},
	}

	res := newTestEnricher().Enrich(context.Background(), rows, path)
	require.False(t, res.Degraded)
	require.Len(t, res.Rows, 4, "unmatched rows are kept")

	assert.True(t, res.Rows[0].HasCoordinates())
	assert.InDelta(t, 106.81, *res.Rows[0].Longitude, 1e-6)
	assert.False(t, res.Rows[1].HasCoordinates())
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, []domain.RowKey{{Subdivision: "koja", Year: 2023}, {Subdivision: "koja", Year: 2024}}, res.Unmatched)
	assert.Nil(t, rows[0].Longitude, "input rows are not modified")
}

func TestEnrichUnmatchedCap(t *testing.T) {
	ref, err := ParseReference(collection())
	require.NoError(t, err)

	var rows []domain.ForecastRow
	for i := 0; i < 50; i++ {
		rows = append(rows, domain.ForecastRow{Subdivision: fmt.Sprintf("s%d", i), Year: 2020})
	}

	res := newTestEnricher().Join(context.Background(), rows, ref)
	assert.Len(t, res.Unmatched, MaxUnmatchedReported)
}

func TestEnrichDegraded(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.geojson")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o644))

	lon := domain.Float(1)
	rows := []domain.ForecastRow{{Subdivision: "koja", Year: 2023, Longitude: lon, Latitude: lon}}

	tests := []struct {
		name string
		path string
	}{
		{"not configured", ""},
		{"missing file", filepath.Join(t.TempDir(), "missing.geojson")},
		{"unparsable file", bad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestEnricher().Enrich(context.Background(), rows, tt.path)
			assert.True(t, res.Degraded)
			assert.NotEmpty(t, res.Reason)
			require.Len(t, res.Rows, 1)
			assert.Nil(t, res.Rows[0].Longitude)
			assert.Nil(t, res.Rows[0].Latitude)
		})
	}
}

func TestPointCollection(t *testing.T) {
	rows := []domain.ForecastRow{
		{Subdivision: "tanahabang", Region: "Jakarta Pusat", Year: 2024, Coverage: domain.Float(90), Priority: domain.PriorityHigh,
			Longitude: domain.Float(106.81), Latitude: domain.Float(-6.2), Route: "Rute-1", FocusDate: "2024-01-01"},
		{Subdivision: "koja", Year: 2024},
	}

	fc := PointCollection(rows)
	require.Len(t, fc.Features, 1)

	f := fc.Features[0]
	assert.Equal(t, orb.Point{106.81, -6.2}, f.Geometry)
	assert.Equal(t, "tanahabang", f.Properties["kecamatan"])
	assert.Equal(t, 90.0, f.Properties["persentase"])
	assert.Equal(t, "Rute-1", f.Properties["predicted_route"])

	raw, err := json.Marshal(fc)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"FeatureCollection"`)
}
