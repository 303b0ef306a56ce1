package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"sehatmap/pkg/contracts/domain"
)

// PointCollection renders rows with coordinates as a FeatureCollection of points. Rows
// without coordinates are skipped.
func PointCollection(rows []domain.ForecastRow) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range rows {
		if !r.HasCoordinates() {
			continue
		}
		f := geojson.NewFeature(orb.Point{*r.Longitude, *r.Latitude})
		f.Properties["kecamatan"] = r.Subdivision
		f.Properties["wilayah"] = r.Region
		f.Properties["tahun"] = r.Year
		f.Properties["prioritas"] = r.Priority
		f.Properties["predicted_route"] = r.Route
		f.Properties["focus_date"] = r.FocusDate
		if r.Coverage != nil {
			f.Properties["persentase"] = *r.Coverage
		} else {
			f.Properties["persentase"] = nil
		}
		fc.Append(f)
	}
	return fc
}
