// Package metric converts images into per-metric representations and
// measures pairwise dissimilarity between representations of one kind.
package metric

import (
	"sort"

	"github.com/pkg/errors"
)

var registry = map[string]func() Metric{
	ColorHSVBhattacharyya: NewColorMetric,
	StructureSSIM:         NewStructureMetric,
}

// Names returns the registered metric names in sorted order.
func Names() []string {
	list := make([]string, 0, len(registry))
	for k := range registry {
		list = append(list, k)
	}
	sort.Strings(list)
	return list
}

// ByName returns the metric registered under name.
func ByName(name string) (Metric, error) {
	f, ok := registry[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMetric, "%s", name)
	}
	return f(), nil
}

// Resolve maps names to metrics; an empty list selects every registered metric.
func Resolve(names []string) ([]Metric, error) {
	if len(names) == 0 {
		names = Names()
	}
	seen := make(map[string]bool, len(names))
	list := make([]Metric, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		m, err := ByName(n)
		if err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, nil
}
