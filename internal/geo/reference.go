// Package geo joins forecast rows to centroid coordinates from a GeoJSON reference.
package geo

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"

	"sehatmap/internal/dataprocessing"
)

// AdminLevel3Attribute is the preferred name attribute of reference features
const AdminLevel3Attribute = "NAME_3"

// Place is a reference feature reduced to its match key and centroid. Coordinates are
// nil when the feature geometry has no centroid.
type Place struct {
	Key       string   `json:"key"`
	Name      string   `json:"name"`
	Longitude *float64 `json:"lon"`
	Latitude  *float64 `json:"lat"`
}

// HasCentroid reports whether the place carries coordinates
func (p Place) HasCentroid() bool {
	return p.Longitude != nil && p.Latitude != nil
}

// Reference is a deduplicated set of places keyed by match key
type Reference struct {
	Attribute string
	places    map[string]Place
	order     []string
}

// Lookup returns the place for a match key
func (r *Reference) Lookup(key string) (Place, bool) {
	p, ok := r.places[key]
	return p, ok
}

// Len returns the number of distinct places
func (r *Reference) Len() int {
	return len(r.order)
}

// Places returns the places in reference order
func (r *Reference) Places() []Place {
	out := make([]Place, len(r.order))
	for i, k := range r.order {
		out[i] = r.places[k]
	}
	return out
}

// LoadReference reads a GeoJSON FeatureCollection from path
func LoadReference(path string) (*Reference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference: %w", err)
	}
	return ParseReference(data)
}

// ParseReference decodes a FeatureCollection and computes one centroid per distinct key.
// The first feature of each key wins.
func ParseReference(data []byte) (*Reference, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode GeoJSON: %w", err)
	}

	ref := &Reference{
		Attribute: nameAttribute(fc.Features),
		places:    make(map[string]Place),
	}

	for _, f := range fc.Features {
		name := propertyString(f.Properties, ref.Attribute)
		key := dataprocessing.MatchKey(name)
		if _, dup := ref.places[key]; dup {
			continue
		}
		place := Place{Key: key, Name: name}
		if lon, lat, ok := Centroid(f.Geometry); ok {
			place.Longitude, place.Latitude = &lon, &lat
		}
		ref.places[key] = place
		ref.order = append(ref.order, key)
	}
	return ref, nil
}

// nameAttribute picks NAME_3 when any feature carries it, otherwise the first property
// name in sorted order that contains "name". An empty result keys every feature as "".
func nameAttribute(features []*geojson.Feature) string {
	keys := make(map[string]struct{})
	for _, f := range features {
		for k := range f.Properties {
			keys[k] = struct{}{}
		}
	}
	if _, ok := keys[AdminLevel3Attribute]; ok {
		return AdminLevel3Attribute
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	for _, k := range sorted {
		if strings.Contains(strings.ToLower(k), "name") {
			return k
		}
	}
	return ""
}

func propertyString(props geojson.Properties, attr string) string {
	if attr == "" {
		return ""
	}
	v, ok := props[attr]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Centroid returns the area centroid of g as longitude and latitude. The centroid is taken
// in Web Mercator and projected back to WGS84.
func Centroid(g orb.Geometry) (lon, lat float64, ok bool) {
	if g == nil || isEmpty(g) {
		return 0, 0, false
	}
	projected := project.Geometry(orb.Clone(g), project.WGS84.ToMercator)
	c, _ := planar.CentroidArea(projected)
	p := project.Mercator.ToWGS84(c)
	return p.Lon(), p.Lat(), true
}

func isEmpty(g orb.Geometry) bool {
	switch v := g.(type) {
	case orb.MultiPoint:
		return len(v) == 0
	case orb.LineString:
		return len(v) == 0
	case orb.Ring:
		return len(v) == 0
	case orb.Polygon:
		return len(v) == 0 || len(v[0]) == 0
	case orb.MultiLineString:
		for _, ls := range v {
			if len(ls) > 0 {
				return false
			}
		}
		return true
	case orb.MultiPolygon:
		for _, p := range v {
			if !isEmpty(p) {
				return false
			}
		}
		return true
	case orb.Collection:
		for _, c := range v {
			if !isEmpty(c) {
				return false
			}
		}
		return true
	}
	return false
}
