package cli

import (
	"context"
	"fmt"

	urfave "github.com/urfave/cli/v3"
)

const (
	queryResultLimitDefault = 100

	limitFlagName = "limit"
)

func newQueryCmd() *urfave.Command {
	runFlag := func() urfave.Flag {
		return &urfave.StringFlag{
			Name:  runFlagName,
			Usage: "Run id (\"latest\" for the newest)",
			Value: latestRun,
		}
	}

	return &urfave.Command{
		Name:    "query",
		Aliases: []string{"q"},
		Usage:   "List stored runs and their results",
		Commands: []*urfave.Command{
			{
				Name:  "runs",
				Usage: "List stored runs, newest first",
				Flags: []urfave.Flag{
					&urfave.IntFlag{
						Name:  limitFlagName,
						Usage: "Limits number of result returned",
						Value: queryResultLimitDefault,
					},
				},
				Action: cmdQueryRuns,
			},
			{
				Name:  "distances",
				Usage: "Show the distance rows of a run",
				Flags: []urfave.Flag{
					runFlag(),
					&urfave.StringFlag{
						Name:  metricFlagName,
						Usage: "Only rows for this metric",
					},
				},
				Action: cmdQueryDistances,
			},
			{
				Name:   "keys",
				Usage:  "Show the key numbers saved for a run",
				Flags:  []urfave.Flag{runFlag()},
				Action: cmdQueryKeys,
			},
		},
	}
}

func cmdQueryRuns(ctx context.Context, cmd *urfave.Command) error {
	s, err := getConfig(cmd).store(ctx)
	if err != nil {
		return err
	}
	list, err := s.ListRuns(ctx, int(cmd.Int(limitFlagName)))
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	return encode(cmd, list)
}

func cmdQueryDistances(ctx context.Context, cmd *urfave.Command) error {
	s, err := getConfig(cmd).store(ctx)
	if err != nil {
		return err
	}
	runID := cmd.String(runFlagName)
	if runID == latestRun {
		if runID, err = s.LatestRunID(ctx); err != nil {
			return fmt.Errorf("finding latest run: %w", err)
		}
	}
	rows, err := s.GetDistances(ctx, runID, cmd.String(metricFlagName))
	if err != nil {
		return fmt.Errorf("querying distances: %w", err)
	}
	return encode(cmd, distanceViews(rows))
}

func cmdQueryKeys(ctx context.Context, cmd *urfave.Command) error {
	s, err := getConfig(cmd).store(ctx)
	if err != nil {
		return err
	}
	runID := cmd.String(runFlagName)
	if runID == latestRun {
		if runID, err = s.LatestRunID(ctx); err != nil {
			return fmt.Errorf("finding latest run: %w", err)
		}
	}
	keys, err := s.GetKeyNumbers(ctx, runID)
	if err != nil {
		return fmt.Errorf("querying key numbers: %w", err)
	}
	return encode(cmd, keyViews(keys))
}
