package metric

import (
	"github.com/mchmarny/sfi/pkg/imaging"
	"github.com/pkg/errors"
)

var (
	ErrKindMismatch  = errors.New("representation kind mismatch")
	ErrShapeMismatch = errors.New("representation shape mismatch")
	ErrUnknownMetric = errors.New("unknown metric")
)

// Kind identifies the numeric artifact a metric compares.
type Kind int

const (
	KindHistogram Kind = iota
	KindGray
)

func (k Kind) String() string {
	switch k {
	case KindHistogram:
		return "histogram"
	case KindGray:
		return "gray"
	default:
		return "unknown"
	}
}

// Representation is an immutable per-metric artifact derived from one image.
type Representation interface {
	Kind() Kind
	Len() int
}

// Metric turns images into representations and measures their dissimilarity.
// Implementations must be safe for concurrent use.
type Metric interface {
	Name() string
	Kind() Kind
	Extract(f *imaging.Frame) (Representation, error)
	Distance(a, b Representation) (float64, error)
}
