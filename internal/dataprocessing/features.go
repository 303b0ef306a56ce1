package dataprocessing

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"sehatmap/pkg/contracts/domain"
)

// Numeric feature columns, in matrix order
const (
	FeatureEstimated = "jumlah_estimasi_penderita"
	FeatureServed    = "jumlah_yang_mendapatkan_pelayanan_kesehatan"
)

// categorical features are one-hot encoded after the numeric ones, in this order
var categoricalFeatures = []struct {
	name  string
	value func(domain.Record) string
}{
	{"wilayah", func(r domain.Record) string { return r.Region }},
	{"kecamatan", func(r domain.Record) string { return r.Subdivision }},
	{"jenis_kelamin", func(r domain.Record) string { return r.Gender }},
}

// FeatureSet is a numeric design matrix with named columns
type FeatureSet struct {
	Columns []string
	X       *mat.Dense
	Targets []*float64
}

// Rows returns the number of rows in the matrix
func (f *FeatureSet) Rows() int {
	return len(f.Targets)
}

// BuildFeatures encodes records into a design matrix. The two count fields come first,
// followed by one indicator column per categorical level. Levels are sorted and the first
// level of each field is dropped as the reference. The year is not a feature.
func BuildFeatures(records []domain.Record) *FeatureSet {
	columns := []string{FeatureEstimated, FeatureServed}
	type levelIndex struct {
		offset int
		levels map[string]int
	}
	indexes := make([]levelIndex, len(categoricalFeatures))

	for ci, cat := range categoricalFeatures {
		distinct := make(map[string]struct{})
		for _, r := range records {
			distinct[cat.value(r)] = struct{}{}
		}
		levels := make([]string, 0, len(distinct))
		for l := range distinct {
			levels = append(levels, l)
		}
		sort.Strings(levels)

		idx := levelIndex{offset: len(columns), levels: make(map[string]int)}
		if len(levels) > 1 {
			for li, l := range levels[1:] {
				idx.levels[l] = li
				columns = append(columns, cat.name+"_"+l)
			}
		}
		indexes[ci] = idx
	}

	fs := &FeatureSet{Columns: columns, Targets: make([]*float64, len(records))}
	if len(records) == 0 {
		return fs
	}

	x := mat.NewDense(len(records), len(columns), nil)
	for i, r := range records {
		x.Set(i, 0, r.EstimatedAffected)
		x.Set(i, 1, r.ServedCount)
		for ci, cat := range categoricalFeatures {
			if li, ok := indexes[ci].levels[cat.value(r)]; ok {
				x.Set(i, indexes[ci].offset+li, 1)
			}
		}
		fs.Targets[i] = r.Coverage
	}
	fs.X = x
	return fs
}

// Align reorders the matrix onto columns. Columns absent here are zero filled, columns not
// listed are dropped.
func (f *FeatureSet) Align(columns []string) *mat.Dense {
	rows := f.Rows()
	if rows == 0 || len(columns) == 0 {
		return nil
	}

	position := make(map[string]int, len(f.Columns))
	for i, c := range f.Columns {
		position[c] = i
	}

	out := mat.NewDense(rows, len(columns), nil)
	for j, c := range columns {
		src, ok := position[c]
		if !ok {
			continue
		}
		for i := 0; i < rows; i++ {
			out.Set(i, j, f.X.At(i, src))
		}
	}
	return out
}

// Labeled returns the rows that carry a target, with their target values
func (f *FeatureSet) Labeled() (*mat.Dense, []float64) {
	var idx []int
	for i, t := range f.Targets {
		if t != nil {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return nil, nil
	}

	cols := len(f.Columns)
	x := mat.NewDense(len(idx), cols, nil)
	y := make([]float64, len(idx))
	for k, i := range idx {
		x.SetRow(k, f.X.RawRowView(i))
		y[k] = *f.Targets[i]
	}
	return x, y
}
