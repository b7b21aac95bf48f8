package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/mchmarny/sfi/pkg/data"
	"github.com/mchmarny/sfi/pkg/measure"
	"github.com/mchmarny/sfi/pkg/metric"
	"github.com/mchmarny/sfi/pkg/table"
	urfave "github.com/urfave/cli/v3"
)

const (
	distanceFileName = "DIST_long.csv"
	runLogFileName   = "runlog.json"
)

const (
	evalSetFlagName = "eva-set"
	refCFlagName    = "ref-c"
	refWFlagName    = "ref-w"
	outFlagName     = "out"
	sizeFlagName    = "size"
	workersFlagName = "workers"
	metricFlagName  = "metric"
	saveFlagName    = "save"
)

func newMeasureCmd() *urfave.Command {
	return &urfave.Command{
		Name:    "measure",
		Aliases: []string{"m"},
		Usage:   "Compute pooled directional distances for an evaluation set",
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:     evalSetFlagName,
				Usage:    "Evaluation set directory with one subfolder per style",
				Required: true,
			},
			&urfave.StringFlag{
				Name:     refCFlagName,
				Usage:    "Origin prototype directory (flat or nested)",
				Required: true,
			},
			&urfave.StringFlag{
				Name:  refWFlagName,
				Usage: "Comparison prototype directory with one subfolder per style (optional)",
			},
			&urfave.StringFlag{
				Name:  outFlagName,
				Usage: "Output directory",
				Value: "reference_outputs",
			},
			&urfave.IntFlag{
				Name:  sizeFlagName,
				Usage: "Resize images to size x size before measuring (default from config)",
			},
			&urfave.IntFlag{
				Name:  workersFlagName,
				Usage: "Number of concurrent image workers (default from config)",
			},
			&urfave.StringSliceFlag{
				Name:  metricFlagName,
				Usage: fmt.Sprintf("Metrics to compute [%s] (default: all)", strings.Join(metric.Names(), ", ")),
			},
			&urfave.BoolFlag{
				Name:  saveFlagName,
				Usage: "Store the results in the database",
			},
		},
		Action: cmdMeasure,
	}
}

type measureResult struct {
	Rows     int    `json:"rows" yaml:"rows"`
	Distance string `json:"distance_table" yaml:"distanceTable"`
	RunLog   string `json:"run_log" yaml:"runLog"`
	RunID    string `json:"run_id,omitempty" yaml:"runID,omitempty"`
}

func cmdMeasure(ctx context.Context, cmd *urfave.Command) error {
	cfg := getConfig(cmd)

	runCfg := *cfg.Config
	if cmd.IsSet(sizeFlagName) {
		runCfg.ImageSize = int(cmd.Int(sizeFlagName))
	}
	if cmd.IsSet(workersFlagName) {
		runCfg.Workers = int(cmd.Int(workersFlagName))
	}

	res, err := measure.Run(ctx, measure.Options{
		EvalDir: cmd.String(evalSetFlagName),
		RefC:    cmd.String(refCFlagName),
		RefW:    cmd.String(refWFlagName),
		Metrics: cmd.StringSlice(metricFlagName),
		Config:  &runCfg,
	})
	if err != nil {
		return fmt.Errorf("measuring: %w", err)
	}

	out := cmd.String(outFlagName)
	r := measureResult{
		Rows:     len(res.Records),
		Distance: filepath.Join(out, distanceFileName),
		RunLog:   filepath.Join(out, runLogFileName),
	}
	if err := table.WriteDistances(r.Distance, res.Records); err != nil {
		return fmt.Errorf("writing distance table: %w", err)
	}
	if err := table.WriteJSON(r.RunLog, res.Log); err != nil {
		return fmt.Errorf("writing run log: %w", err)
	}

	if cmd.Bool(saveFlagName) {
		s, err := cfg.store(ctx)
		if err != nil {
			return err
		}
		refW := ""
		if res.Log.RefW != nil {
			refW = *res.Log.RefW
		}
		r.RunID, err = s.SaveRun(ctx, data.Run{
			CreatedAt:  res.Log.Started,
			EvalSet:    res.Log.EvalSet,
			RefC:       res.Log.RefC,
			RefW:       refW,
			ImageSize:  res.Log.ImageSize,
			PowerMeanP: runCfg.PowerMeanP,
			Notes:      res.Log.Notes,
		}, res.Records)
		if err != nil {
			return fmt.Errorf("saving run: %w", err)
		}
		slog.Info("run saved", "id", r.RunID)
	}

	slog.Info("measurement complete", "rows", r.Rows, "out", out)
	return encode(cmd, r)
}
