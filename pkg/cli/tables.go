package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/mchmarny/sfi/pkg/fusion"
	"github.com/mchmarny/sfi/pkg/table"
	urfave "github.com/urfave/cli/v3"
)

func newTablesCmd() *urfave.Command {
	return &urfave.Command{
		Name:    "tables",
		Aliases: []string{"t"},
		Usage:   "Generate the review tables from a release bundle",
		Flags:   releaseFlags(defaultTablesDir),
		Action:  cmdTables,
	}
}

// writeTables renders the review tables into l.Out and returns their paths.
func writeTables(l layout, in *releaseInputs, p float64) ([]string, error) {
	rep, err := fusion.Reproduce(in.Records, in.Weights, in.Released, p)
	if err != nil {
		return nil, fmt.Errorf("computing scores: %w", err)
	}
	mfs := attachImageStyles(rep.MFS, in.Records)

	var files []string
	add := func(name string, fn func(string) error) error {
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
		{"table_metric_weights.csv", func(dst string) error {
			return table.WriteWeights(dst, fusion.SortedWeights(in.Weights))
		}},
		{"table_mfs_summary_by_style.csv", func(dst string) error {
			return table.WriteStyleSummary(dst, "MFS", fusion.MFSByStyle(mfs))
		}},
		{"table_directional_by_metric.csv", func(dst string) error {
			return table.WriteDirection(dst, rep.ByMetric, true)
		}},
		{"table_directional_by_dimension.csv", func(dst string) error {
			return table.WriteDirection(dst, rep.ByDimension, false)
		}},
		{"table_dimfs_summary_overall.csv", func(dst string) error {
			return table.WriteDimensionSummary(dst, fusion.DimFSOverall(in.Released))
		}},
		{"table_dimfs_summary_by_style.csv", func(dst string) error {
			return table.WriteStyleSummary(dst, "DimFS", fusion.DimFSByStyle(in.Released))
		}},
	}
	for _, s := range steps {
		if err := add(s.name, s.fn); err != nil {
			return nil, err
		}
	}

	for _, e := range validationExtras {
		src, ok := in.Extras[e.name]
		if !ok {
			continue
		}
		if err := add("table_released_"+e.name+".csv", func(dst string) error { return table.Copy(src, dst) }); err != nil {
			return nil, err
		}
	}
	return files, nil
}

type tablesResult struct {
	Out   string   `json:"out" yaml:"out"`
	Files []string `json:"files" yaml:"files"`
}

func cmdTables(_ context.Context, cmd *urfave.Command) error {
	l := layoutFrom(cmd)

	in, err := loadRelease(l, nil)
	if err != nil {
		return err
	}

	files, err := writeTables(l, in, powerMeanP(cmd))
	if err != nil {
		return err
	}

	slog.Info("tables written", "out", l.Out, "files", len(files))
	return encode(cmd, tablesResult{Out: l.Out, Files: files})
}
