package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mchmarny/sfi/pkg/checksum"
	"github.com/mchmarny/sfi/pkg/data"
	"github.com/mchmarny/sfi/pkg/fusion"
	"github.com/mchmarny/sfi/pkg/table"
	urfave "github.com/urfave/cli/v3"
)

const (
	defaultDistPath    = "derived_outputs/distances/DIST_master_long_public_v1.csv"
	defaultWeightsPath = "derived_outputs/fusion/fusion_metric_weight_baseline_v1.csv"
	defaultDimFSPath   = "derived_outputs/dimfs/DimFS_long_v1.csv.gz"

	defaultReproDir  = "repro_outputs"
	defaultTablesDir = "repro_outputs/tables"

	keyNumbersFileName = "key_numbers.csv"
	runNotesFileName   = "RUN_NOTES.txt"

	rootFlagName      = "root"
	distFlagName      = "dist"
	weightsFlagName   = "weights"
	dimfsFlagName     = "dimfs"
	powerMeanFlagName = "power-mean-p"
	runFlagName       = "run"
	verifyFlagName    = "verify-checksums"

	latestRun = "latest"
)

// Optional released validation summaries, copied verbatim when present.
var validationExtras = []struct {
	name string
	path string
}{
	{"construct_validity", "derived_outputs/validation/construct_validity_3set_summary_v1.csv"},
	{"direction_convergent", "derived_outputs/validation/direction_convergent_summary_v1.csv"},
	{"stability_relci", "derived_outputs/validation/stability_relci_summary_v1.csv"},
}

func releaseFlags(outDefault string) []urfave.Flag {
	return []urfave.Flag{
		&urfave.StringFlag{
			Name:  rootFlagName,
			Usage: "Release bundle root directory",
			Value: ".",
		},
		&urfave.StringFlag{
			Name:  outFlagName,
			Usage: "Output directory (relative to root unless absolute)",
			Value: outDefault,
		},
		&urfave.StringFlag{
			Name:  distFlagName,
			Usage: "Distance table (relative to root unless absolute)",
			Value: defaultDistPath,
		},
		&urfave.StringFlag{
			Name:  weightsFlagName,
			Usage: "Metric weight table (relative to root unless absolute)",
			Value: defaultWeightsPath,
		},
		&urfave.StringFlag{
			Name:  dimfsFlagName,
			Usage: "Released DimFS table, .gz is decompressed (relative to root unless absolute)",
			Value: defaultDimFSPath,
		},
		&urfave.FloatFlag{
			Name:  powerMeanFlagName,
			Usage: "Power mean exponent (default from config)",
		},
	}
}

func newReproduceCmd() *urfave.Command {
	flags := releaseFlags(defaultReproDir)
	flags = append(flags,
		&urfave.StringFlag{
			Name:  runFlagName,
			Usage: "Read distances from a stored run id instead of the distance table (\"latest\" for the newest)",
		},
		&urfave.BoolFlag{
			Name:  saveFlagName,
			Usage: "Store the key numbers in the database",
		},
		&urfave.BoolFlag{
			Name:  verifyFlagName,
			Usage: "Verify the release checksums first when a manifest is present",
		},
	)
	return &urfave.Command{
		Name:    "reproduce",
		Aliases: []string{"r"},
		Usage:   "Recompute fusion scores, agreement and key numbers from a release bundle",
		Flags:   flags,
		Action:  cmdReproduce,
	}
}

// layout locates the inputs and outputs of a release bundle.
type layout struct {
	Root    string
	Out     string
	Dist    string
	Weights string
	DimFS   string
}

func resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, filepath.FromSlash(p))
}

func layoutFrom(cmd *urfave.Command) layout {
	root := cmd.String(rootFlagName)
	return layout{
		Root:    root,
		Out:     resolve(root, cmd.String(outFlagName)),
		Dist:    resolve(root, cmd.String(distFlagName)),
		Weights: resolve(root, cmd.String(weightsFlagName)),
		DimFS:   resolve(root, cmd.String(dimfsFlagName)),
	}
}

func powerMeanP(cmd *urfave.Command) float64 {
	if cmd.IsSet(powerMeanFlagName) {
		return cmd.Float(powerMeanFlagName)
	}
	return getConfig(cmd).Config.PowerMeanP
}

// releaseInputs are the tables a reproduction starts from.
type releaseInputs struct {
	Records  []fusion.DistanceRecord
	Weights  *fusion.WeightTable
	Released []fusion.DimScore
	Extras   map[string]string
}

// loadRelease reads the required tables. records may be supplied by the
// caller, in which case the distance table is not read.
func loadRelease(l layout, records []fusion.DistanceRecord) (*releaseInputs, error) {
	in := &releaseInputs{Records: records, Extras: map[string]string{}}

	for _, p := range []string{l.Weights, l.DimFS} {
		if !table.Exists(p) {
			return nil, fmt.Errorf("%w: %s", table.ErrMissingInput, p)
		}
	}

	var err error
	if in.Records == nil {
		if in.Records, err = table.ReadDistances(l.Dist); err != nil {
			return nil, fmt.Errorf("reading distances: %w", err)
		}
	}

	w, err := table.ReadWeights(l.Weights)
	if err != nil {
		return nil, fmt.Errorf("reading weights: %w", err)
	}
	if in.Weights, err = fusion.NewWeightTable(w); err != nil {
		return nil, fmt.Errorf("building weight table: %w", err)
	}

	if in.Released, err = table.ReadDimFS(l.DimFS); err != nil {
		return nil, fmt.Errorf("reading released DimFS: %w", err)
	}
	in.Released = fusion.AttachStyles(in.Released, in.Records)

	for _, e := range validationExtras {
		if p := resolve(l.Root, e.path); table.Exists(p) {
			in.Extras[e.name] = p
		}
	}

	slog.Debug("release loaded",
		"distances", len(in.Records), "weights", len(w), "released", len(in.Released), "extras", len(in.Extras))
	return in, nil
}

// reproduce computes the report and writes the reproduction files into
// l.Out, returning the written paths.
func reproduce(l layout, in *releaseInputs, p float64) (*fusion.Report, []string, error) {
	rep, err := fusion.Reproduce(in.Records, in.Weights, in.Released, p)
	if err != nil {
		return nil, nil, fmt.Errorf("reproducing: %w", err)
	}

	var files []string
	write := func(name string, fn func(string) error) error {
		dst := filepath.Join(l.Out, name)
		if err := fn(dst); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		files = append(files, dst)
		return nil
	}

	steps := []struct {
		name string
		fn   func(string) error
	}{
		{keyNumbersFileName, func(dst string) error { return table.WriteKeyNumbers(dst, rep.KeyNumbers) }},
		{"dimfs_agreement.csv", func(dst string) error { return table.WriteAgreement(dst, rep.Agreement) }},
		{"image_mfs.csv", func(dst string) error {
			return table.WriteMFS(dst, attachImageStyles(rep.MFS, in.Records))
		}},
		{"directional_summary_by_metric.csv", func(dst string) error { return table.WriteDirection(dst, rep.ByMetric, true) }},
		{"directional_summary_by_dimension.csv", func(dst string) error { return table.WriteDirection(dst, rep.ByDimension, false) }},
		{"dimfs_summary_by_style_dimension.csv", func(dst string) error {
			return table.WriteStyleSummary(dst, "DimFS", fusion.DimFSByStyle(in.Released))
		}},
	}
	for _, s := range steps {
		if err := write(s.name, s.fn); err != nil {
			return nil, nil, err
		}
	}

	for _, e := range validationExtras {
		src, ok := in.Extras[e.name]
		if !ok {
			continue
		}
		if err := write("released_"+e.name+".csv", func(dst string) error { return table.Copy(src, dst) }); err != nil {
			return nil, nil, err
		}
	}

	err = write(runNotesFileName, func(dst string) error {
		return table.WriteText(dst,
			"POWER_MEAN_P="+table.FormatFloat(p),
			"Note: City-level calibrated SFI is not recomputed here because city aggregation and calibration parameters are not part of this public release.",
		)
	})
	if err != nil {
		return nil, nil, err
	}

	if len(rep.UnmatchedMetrics) > 0 {
		slog.Warn("metrics without weights", "metrics", rep.UnmatchedMetrics)
	}
	return rep, files, nil
}

func attachImageStyles(scores []fusion.ImageScore, records []fusion.DistanceRecord) []fusion.ImageScore {
	styles := make(map[string]string, len(records))
	for _, r := range records {
		if _, ok := styles[r.ImageUID]; !ok {
			styles[r.ImageUID] = r.StyleAbbrev
		}
	}
	out := make([]fusion.ImageScore, len(scores))
	for i, s := range scores {
		s.StyleAbbrev = styles[s.ImageUID]
		out[i] = s
	}
	return out
}

// verifyIfPresent writes checksum_verification.csv listing the entries that
// did not verify. A bundle without a manifest is skipped.
func verifyIfPresent(l layout) (*checksum.Report, error) {
	if !table.Exists(filepath.Join(l.Root, checksum.DefaultManifest)) {
		slog.Debug("no checksum manifest, skipping verification", "root", l.Root)
		return nil, nil
	}
	rep, err := checksum.Verify(l.Root, checksum.DefaultManifest)
	if err != nil {
		return nil, fmt.Errorf("verifying checksums: %w", err)
	}
	var rows [][]string
	for _, r := range rep.Results {
		if r.Status != checksum.StatusOK {
			rows = append(rows, []string{r.Path, string(r.Status)})
		}
	}
	if err := table.Write(filepath.Join(l.Out, "checksum_verification.csv"), []string{"path", "status"}, rows); err != nil {
		return nil, fmt.Errorf("writing checksum verification: %w", err)
	}
	return rep, nil
}

type reproduceResult struct {
	Out              string        `json:"out" yaml:"out"`
	RunID            string        `json:"run_id,omitempty" yaml:"runID,omitempty"`
	PowerMeanP       float64       `json:"power_mean_p" yaml:"powerMeanP"`
	Files            []string      `json:"files" yaml:"files"`
	Agreement        agreementView `json:"agreement" yaml:"agreement"`
	UnmatchedMetrics []string      `json:"unmatched_metrics,omitempty" yaml:"unmatchedMetrics,omitempty"`
	KeyNumbers       []keyView     `json:"key_numbers" yaml:"keyNumbers"`
}

func storedRecords(ctx context.Context, s *data.Store, runID string) (string, []fusion.DistanceRecord, error) {
	if runID == latestRun {
		id, err := s.LatestRunID(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("finding latest run: %w", err)
		}
		runID = id
	}
	recs, err := s.GetDistances(ctx, runID, "")
	if err != nil {
		return "", nil, fmt.Errorf("reading stored distances: %w", err)
	}
	return runID, recs, nil
}

func cmdReproduce(ctx context.Context, cmd *urfave.Command) error {
	cfg := getConfig(cmd)
	l := layoutFrom(cmd)
	p := powerMeanP(cmd)

	if err := os.MkdirAll(l.Out, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	if cmd.Bool(verifyFlagName) {
		rep, err := verifyIfPresent(l)
		if err != nil {
			return err
		}
		if rep != nil && !rep.Passed(false) {
			slog.Warn("checksum verification found mismatches", "mismatch", rep.Mismatch, "missing", rep.Missing)
		}
	}

	var runID string
	var records []fusion.DistanceRecord
	if id := cmd.String(runFlagName); id != "" {
		s, err := cfg.store(ctx)
		if err != nil {
			return err
		}
		if runID, records, err = storedRecords(ctx, s, id); err != nil {
			return err
		}
	}

	in, err := loadRelease(l, records)
	if err != nil {
		return err
	}

	rep, files, err := reproduce(l, in, p)
	if err != nil {
		return err
	}

	if cmd.Bool(saveFlagName) {
		s, err := cfg.store(ctx)
		if err != nil {
			return err
		}
		if runID == "" {
			runID, err = s.SaveRun(ctx, data.Run{
				EvalSet:    l.Dist,
				RefC:       l.Root,
				PowerMeanP: p,
				Notes:      "imported from release distance table",
			}, in.Records)
			if err != nil {
				return fmt.Errorf("saving run: %w", err)
			}
		}
		if err := s.SaveKeyNumbers(ctx, runID, rep.KeyNumbers); err != nil {
			return fmt.Errorf("saving key numbers: %w", err)
		}
		slog.Info("key numbers saved", "run", runID)
	}

	slog.Info("reproduction complete", "out", l.Out, "files", len(files))
	return encode(cmd, reproduceResult{
		Out:              l.Out,
		RunID:            runID,
		PowerMeanP:       p,
		Files:            files,
		Agreement:        newAgreementView(rep.AgreementSummary),
		UnmatchedMetrics: rep.UnmatchedMetrics,
		KeyNumbers:       keyViews(rep.KeyNumbers),
	})
}
