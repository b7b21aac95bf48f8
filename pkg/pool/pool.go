// Package pool holds read-only prototype representations and reduces
// per-prototype distances into one pooled distance.
package pool

import (
	"math"
	"sort"

	"github.com/mchmarny/sfi/pkg/metric"
	"github.com/pkg/errors"
)

var (
	ErrEmptyOriginPool = errors.New("origin prototype pool is empty")
)

// Prototype is one reference image's representation.
type Prototype struct {
	ID  string
	Rep metric.Representation
}

// Pool is a named, read-only collection of prototype representations for
// one metric.
type Pool struct {
	name       string
	metric     metric.Metric
	prototypes []Prototype
}

// New builds a pool. The prototype slice is copied.
func New(name string, m metric.Metric, prototypes []Prototype) (*Pool, error) {
	if m == nil {
		return nil, errors.New("metric required")
	}
	list := make([]Prototype, len(prototypes))
	copy(list, prototypes)
	for _, p := range list {
		if p.Rep == nil {
			return nil, errors.Errorf("prototype %s in pool %s has no representation", p.ID, name)
		}
		if p.Rep.Kind() != m.Kind() {
			return nil, errors.Wrapf(metric.ErrKindMismatch, "prototype %s in pool %s", p.ID, name)
		}
	}
	return &Pool{name: name, metric: m, prototypes: list}, nil
}

func (p *Pool) Name() string          { return p.name }
func (p *Pool) Metric() metric.Metric { return p.metric }
func (p *Pool) Len() int              { return len(p.prototypes) }

// IDs returns the prototype ids in pool order.
func (p *Pool) IDs() []string {
	ids := make([]string, len(p.prototypes))
	for i, pr := range p.prototypes {
		ids[i] = pr.ID
	}
	return ids
}

// Distances returns the distance from rep to every prototype, in pool order.
func (p *Pool) Distances(rep metric.Representation) ([]float64, error) {
	out := make([]float64, len(p.prototypes))
	for i, pr := range p.prototypes {
		d, err := p.metric.Distance(rep, pr.Rep)
		if err != nil {
			return nil, errors.Wrapf(err, "distance to prototype %s in pool %s", pr.ID, p.name)
		}
		out[i] = d
	}
	return out, nil
}

// Pooled returns the median distance from rep to the pool. A nil or
// empty pool yields NaN.
func (p *Pool) Pooled(rep metric.Representation) (float64, error) {
	if p == nil || len(p.prototypes) == 0 {
		return math.NaN(), nil
	}
	ds, err := p.Distances(rep)
	if err != nil {
		return 0, err
	}
	return Median(ds), nil
}

// Median returns the median of values without modifying them. Empty input
// yields NaN; an even count averages the two middle values.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	s := make([]float64, n)
	copy(s, values)
	sort.Float64s(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
