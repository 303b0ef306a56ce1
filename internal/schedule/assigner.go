// Package schedule assigns field-visit routes and focus months to forecast rows.
package schedule

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"sehatmap/pkg/contracts/domain"
)

// RouteSize is the number of rows per route within a year
const RouteSize = 8

// TieBreaker returns a value in [0, 1) added to each row's ranking score
type TieBreaker interface {
	Next() float64
}

type randomTieBreaker struct {
	rng *rand.Rand
}

func (r *randomTieBreaker) Next() float64 { return r.rng.Float64() }

// SeededTieBreaker draws tie-break values from a generator seeded with seed
func SeededTieBreaker(seed int64) TieBreaker {
	return &randomTieBreaker{rng: rand.New(rand.NewSource(seed))}
}

type zeroTieBreaker struct{}

func (zeroTieBreaker) Next() float64 { return 0 }

// StableTieBreaker never breaks ties, so equal scores keep their input order
func StableTieBreaker() TieBreaker {
	return zeroTieBreaker{}
}

// Assigner ranks each year's rows by coverage and spreads them over routes and months
type Assigner struct {
	tie TieBreaker
}

// NewAssigner creates an assigner. A nil tie breaker keeps input order on ties.
func NewAssigner(tie TieBreaker) *Assigner {
	if tie == nil {
		tie = StableTieBreaker()
	}
	return &Assigner{tie: tie}
}

// Assign returns new rows grouped by ascending year, each group sorted by descending
// coverage. Missing coverage is stored as 0. Months are spread evenly from 1 to 12 over
// the group and a new route starts every RouteSize rows.
func (a *Assigner) Assign(rows []domain.ForecastRow) []domain.ForecastRow {
	groups := make(map[int][]domain.ForecastRow)
	var years []int
	for _, r := range rows {
		if _, ok := groups[r.Year]; !ok {
			years = append(years, r.Year)
		}
		groups[r.Year] = append(groups[r.Year], r)
	}
	sort.Ints(years)

	out := make([]domain.ForecastRow, 0, len(rows))
	for _, y := range years {
		out = append(out, a.assignYear(y, groups[y])...)
	}
	return out
}

type scored struct {
	row   domain.ForecastRow
	score float64
}

func (a *Assigner) assignYear(year int, rows []domain.ForecastRow) []domain.ForecastRow {
	n := len(rows)
	if n == 0 {
		return nil
	}

	ranked := make([]scored, n)
	for i, r := range rows {
		coverage := 0.0
		if r.Coverage != nil {
			coverage = *r.Coverage
		}
		r.Coverage = domain.Float(coverage)
		ranked[i] = scored{row: r, score: coverage*100 + a.tie.Next()}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]domain.ForecastRow, n)
	for i, s := range ranked {
		r := s.row
		r.FocusMonth = FocusMonth(i, n)
		r.FocusDate = fmt.Sprintf("%d-%02d-01", year, r.FocusMonth)
		r.Route = fmt.Sprintf("Rute-%d", i/RouteSize+1)
		out[i] = r
	}
	return out
}

// FocusMonth spaces months 1..12 evenly over n positions and returns the month at
// position i, rounded to the nearest integer
func FocusMonth(i, n int) int {
	if n <= 1 {
		return 1
	}
	return int(math.Round(1 + 11*float64(i)/float64(n-1)))
}
