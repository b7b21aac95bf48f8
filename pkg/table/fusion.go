package table

import (
	"github.com/mchmarny/sfi/pkg/fusion"
	"github.com/pkg/errors"
)

// Column sets of the release tables.
var (
	DistanceColumns = []string{"image_uid", "image_path", "style", "style_abbrev", "metric", "dc", "dw"}
	WeightColumns   = []string{"metric", "dimension", "w_fuse"}
	DimFSColumns    = []string{"image_uid", "dimension", "DimFS"}
	KeyColumns      = []string{"key", "value"}
)

// ReadDistances loads the long-form distance table.
func ReadDistances(path string) ([]fusion.DistanceRecord, error) {
	r, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := r.Require("image_uid", "metric", "dc", "dw"); err != nil {
		return nil, err
	}

	out := make([]fusion.DistanceRecord, 0, len(r.Records))
	for i := range r.Records {
		rec := fusion.DistanceRecord{
			ImageUID:    r.Get(i, "image_uid"),
			ImagePath:   r.Get(i, "image_path"),
			Style:       r.Get(i, "style"),
			StyleAbbrev: r.Get(i, "style_abbrev"),
			Metric:      r.Get(i, "metric"),
		}
		if rec.DC, err = r.Float(i, "dc"); err != nil {
			return nil, err
		}
		if rec.DW, err = r.Float(i, "dw"); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// WriteDistances writes the long-form distance table. Undefined dw is an
// empty cell.
func WriteDistances(path string, rows []fusion.DistanceRecord) error {
	cells := make([][]string, len(rows))
	for i, r := range rows {
		cells[i] = []string{
			r.ImageUID, r.ImagePath, r.Style, r.StyleAbbrev, r.Metric,
			FormatFloat(r.DC), FormatFloat(r.DW),
		}
	}
	return Write(path, DistanceColumns, cells)
}

// ReadWeights loads the metric weight table.
func ReadWeights(path string) ([]fusion.MetricWeight, error) {
	r, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := r.Require(WeightColumns...); err != nil {
		return nil, err
	}

	out := make([]fusion.MetricWeight, 0, len(r.Records))
	for i := range r.Records {
		w := fusion.MetricWeight{
			Metric:    r.Get(i, "metric"),
			Dimension: r.Get(i, "dimension"),
		}
		if w.Weight, err = r.Float(i, "w_fuse"); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// WriteWeights writes the metric weight table in the given order.
func WriteWeights(path string, rows []fusion.MetricWeight) error {
	cells := make([][]string, len(rows))
	for i, w := range rows {
		cells[i] = []string{w.Metric, w.Dimension, FormatFloat(w.Weight)}
	}
	return Write(path, WeightColumns, cells)
}

// ReadDimFS loads a dimension score table. The style_abbrev column is
// optional.
func ReadDimFS(path string) ([]fusion.DimScore, error) {
	r, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := r.Require(DimFSColumns...); err != nil {
		return nil, err
	}

	out := make([]fusion.DimScore, 0, len(r.Records))
	for i := range r.Records {
		s := fusion.DimScore{
			ImageUID:    r.Get(i, "image_uid"),
			Dimension:   r.Get(i, "dimension"),
			StyleAbbrev: r.Get(i, "style_abbrev"),
		}
		if s.Value, err = r.Float(i, "DimFS"); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// WriteDimFS writes dimension scores with their style.
func WriteDimFS(path string, rows []fusion.DimScore) error {
	cells := make([][]string, len(rows))
	for i, s := range rows {
		cells[i] = []string{s.ImageUID, s.Dimension, FormatFloat(s.Value), s.StyleAbbrev}
	}
	return Write(path, append(append([]string{}, DimFSColumns...), "style_abbrev"), cells)
}

// WriteAgreement writes the computed-vs-released dimension score table.
func WriteAgreement(path string, rows []fusion.Agreement) error {
	cells := make([][]string, len(rows))
	for i, a := range rows {
		cells[i] = []string{
			a.ImageUID, a.Dimension,
			FormatFloat(a.Calc), FormatFloat(a.Released), FormatFloat(a.AbsDiff),
		}
	}
	return Write(path, []string{"image_uid", "dimension", "DimFS_calc", "DimFS", "abs_diff"}, cells)
}

// WriteMFS writes image-level scores.
func WriteMFS(path string, rows []fusion.ImageScore) error {
	cells := make([][]string, len(rows))
	for i, s := range rows {
		cells[i] = []string{s.ImageUID, s.StyleAbbrev, FormatFloat(s.MFS)}
	}
	return Write(path, []string{"image_uid", "style_abbrev", "MFS"}, cells)
}

// ReadKeyNumbers loads a key,value table.
func ReadKeyNumbers(path string) ([]fusion.KeyNumber, error) {
	r, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := r.Require(KeyColumns...); err != nil {
		return nil, err
	}
	if len(r.columns) != len(KeyColumns) {
		return nil, errors.Errorf("%s: unexpected columns, want exactly %v", path, KeyColumns)
	}

	out := make([]fusion.KeyNumber, 0, len(r.Records))
	for i := range r.Records {
		k := fusion.KeyNumber{Key: r.Get(i, "key")}
		if k.Value, err = r.Float(i, "value"); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

// WriteKeyNumbers writes the key numbers in order.
func WriteKeyNumbers(path string, rows []fusion.KeyNumber) error {
	cells := make([][]string, len(rows))
	for i, k := range rows {
		cells[i] = []string{k.Key, FormatFloat(k.Value)}
	}
	return Write(path, KeyColumns, cells)
}

// WriteDirection writes a directional summary. Metric rows lead with
// dimension and metric, dimension rows with the dimension only.
func WriteDirection(path string, rows []fusion.DirectionSummary, byMetric bool) error {
	header := []string{"dimension", "n", "p_closer_CN", "mean_dc", "mean_dw", "mean_dw_minus_dc"}
	if byMetric {
		header = append([]string{"dimension", "metric"}, header[1:]...)
	}

	cells := make([][]string, len(rows))
	for i, s := range rows {
		lead := []string{s.Dimension}
		if byMetric {
			lead = append(lead, s.Metric)
		}
		cells[i] = append(lead,
			FormatInt(s.N), FormatFloat(s.PCloserCN), FormatFloat(s.MeanDC),
			FormatFloat(s.MeanDW), FormatFloat(s.MeanDWMinusDC),
		)
	}
	return Write(path, header, cells)
}

// WriteStyleSummary writes per-style summaries. The value name becomes the
// suffix of the mean and median columns, e.g. mean_MFS.
func WriteStyleSummary(path, value string, rows []fusion.StyleSummary) error {
	withDim := false
	for _, s := range rows {
		if s.Dimension != "" {
			withDim = true
			break
		}
	}

	header := []string{"style_abbrev"}
	if withDim {
		header = append(header, "dimension")
	}
	header = append(header, "n", "mean_"+value, "median_"+value)

	cells := make([][]string, len(rows))
	for i, s := range rows {
		row := []string{s.StyleAbbrev}
		if withDim {
			row = append(row, s.Dimension)
		}
		cells[i] = append(row, FormatInt(s.N), FormatFloat(s.Mean), FormatFloat(s.Median))
	}
	return Write(path, header, cells)
}

// WriteDimensionSummary writes the per-dimension distribution table.
func WriteDimensionSummary(path string, rows []fusion.DimensionSummary) error {
	cells := make([][]string, len(rows))
	for i, s := range rows {
		cells[i] = []string{
			s.Dimension, FormatInt(s.N), FormatFloat(s.Mean), FormatFloat(s.Median),
			FormatFloat(s.Q25), FormatFloat(s.Q75),
		}
	}
	return Write(path, []string{"dimension", "n", "mean_DimFS", "median_DimFS", "q25_DimFS", "q75_DimFS"}, cells)
}
