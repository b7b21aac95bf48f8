package pool

import (
	"math"
	"sort"

	"github.com/mchmarny/sfi/pkg/metric"
	"github.com/pkg/errors"
)

// Set pairs the mandatory origin pool of one metric with its style-keyed
// comparison pools.
type Set struct {
	origin     *Pool
	comparison map[string]*Pool
}

// NewSet validates that the origin pool is non-empty and that every pool
// uses the origin's metric. Comparison pools may be missing or empty.
func NewSet(origin *Pool, comparison map[string]*Pool) (*Set, error) {
	if origin == nil || origin.Len() == 0 {
		return nil, ErrEmptyOriginPool
	}
	name := origin.Metric().Name()
	cmp := make(map[string]*Pool, len(comparison))
	for style, p := range comparison {
		if p == nil {
			continue
		}
		if p.Metric().Name() != name {
			return nil, errors.Errorf("comparison pool %s uses metric %s, origin uses %s",
				p.Name(), p.Metric().Name(), name)
		}
		cmp[style] = p
	}
	return &Set{origin: origin, comparison: cmp}, nil
}

func (s *Set) Metric() metric.Metric { return s.origin.Metric() }
func (s *Set) Origin() *Pool         { return s.origin }

// Comparison returns the comparison pool for style, or nil.
func (s *Set) Comparison(style string) *Pool {
	return s.comparison[style]
}

// Styles returns the comparison pool keys in sorted order.
func (s *Set) Styles() []string {
	list := make([]string, 0, len(s.comparison))
	for k := range s.comparison {
		list = append(list, k)
	}
	sort.Strings(list)
	return list
}

// ComparisonLen returns the total number of comparison prototypes.
func (s *Set) ComparisonLen() int {
	var n int
	for _, p := range s.comparison {
		n += p.Len()
	}
	return n
}

// Directional returns the pooled distance of rep to the origin pool (dc)
// and to the comparison pool of style (dw). dw is NaN when that pool is
// missing or empty.
func (s *Set) Directional(rep metric.Representation, style string) (dc, dw float64, err error) {
	dc, err = s.origin.Pooled(rep)
	if err != nil {
		return 0, 0, errors.Wrap(err, "origin pool")
	}

	dw = math.NaN()
	if p := s.comparison[style]; p != nil && p.Len() > 0 {
		if dw, err = p.Pooled(rep); err != nil {
			return 0, 0, errors.Wrapf(err, "comparison pool %s", style)
		}
	}
	return dc, dw, nil
}
