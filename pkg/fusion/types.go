package fusion

// DefaultPowerMeanP is the exponent of the metric-level power mean.
const DefaultPowerMeanP = 0.55

// Unmatched marks the dimension of a row whose metric has no entry in the
// weight table.
const Unmatched = "<unmatched>"

// DistanceRecord is the pooled directional distance of one image for one
// metric. DW is NaN when no comparison pool exists for the image's style.
type DistanceRecord struct {
	ImageUID    string  `json:"image_uid" yaml:"imageUID"`
	ImagePath   string  `json:"image_path" yaml:"imagePath"`
	Style       string  `json:"style" yaml:"style"`
	StyleAbbrev string  `json:"style_abbrev" yaml:"styleAbbrev"`
	Metric      string  `json:"metric" yaml:"metric"`
	DC          float64 `json:"dc" yaml:"dc"`
	DW          float64 `json:"dw" yaml:"dw"`
}

// MetricWeight declares the dimension of a metric and its global fusion weight.
type MetricWeight struct {
	Metric    string  `json:"metric" yaml:"metric"`
	Dimension string  `json:"dimension" yaml:"dimension"`
	Weight    float64 `json:"w_fuse" yaml:"wFuse"`
}

// ScoredRecord is a distance row joined with its weight and fused.
type ScoredRecord struct {
	DistanceRecord
	Dimension string  `json:"dimension" yaml:"dimension"`
	Weight    float64 `json:"w_fuse" yaml:"wFuse"`
	Matched   bool    `json:"matched" yaml:"matched"`
	PCN       float64 `json:"p_cn" yaml:"pCN"`
	PW        float64 `json:"p_w" yaml:"pW"`
	FS        float64 `json:"fs" yaml:"fs"`
}

// DimScore is a dimension-level score of one image.
type DimScore struct {
	ImageUID    string  `json:"image_uid" yaml:"imageUID"`
	Dimension   string  `json:"dimension" yaml:"dimension"`
	StyleAbbrev string  `json:"style_abbrev,omitempty" yaml:"styleAbbrev,omitempty"`
	Value       float64 `json:"dimfs" yaml:"dimfs"`
}

// ImageScore is the image-level metric-fused score.
type ImageScore struct {
	ImageUID    string  `json:"image_uid" yaml:"imageUID"`
	StyleAbbrev string  `json:"style_abbrev,omitempty" yaml:"styleAbbrev,omitempty"`
	MFS         float64 `json:"mfs" yaml:"mfs"`
}

// KeyNumber is one entry of the key-numbers summary.
type KeyNumber struct {
	Key   string  `json:"key" yaml:"key"`
	Value float64 `json:"value" yaml:"value"`
}
