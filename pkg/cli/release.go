package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mchmarny/sfi/pkg/checksum"
	"github.com/mchmarny/sfi/pkg/fusion"
	"github.com/mchmarny/sfi/pkg/table"
	urfave "github.com/urfave/cli/v3"
)

const minTableFiles = 5

var errSanity = errors.New("release sanity check failed")

func newReleaseCmd() *urfave.Command {
	return &urfave.Command{
		Name:  "release",
		Usage: "Verify a release bundle end to end: checksums, reproduction, tables and sanity checks",
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:  rootFlagName,
				Usage: "Release bundle root directory",
				Value: ".",
			},
			&urfave.StringFlag{
				Name:  manifestFlagName,
				Usage: "Checksum manifest relative to root",
				Value: checksum.DefaultManifest,
			},
			&urfave.BoolFlag{
				Name:  lenientFlagName,
				Usage: "Tolerate files listed in the manifest that are missing",
			},
			&urfave.FloatFlag{
				Name:  powerMeanFlagName,
				Usage: "Power mean exponent (default from config)",
			},
		},
		Action: cmdRelease,
	}
}

type releaseResult struct {
	Root       string           `json:"root" yaml:"root"`
	Checksums  *checksum.Report `json:"checksums" yaml:"checksums"`
	Reproduced []string         `json:"reproduced" yaml:"reproduced"`
	Tables     []string         `json:"tables" yaml:"tables"`
	KeyNumbers []keyView        `json:"key_numbers" yaml:"keyNumbers"`
	Passed     bool             `json:"passed" yaml:"passed"`
}

// sanityCheck inspects the reproduction outputs.
func sanityCheck(reproDir, tablesDir string) error {
	keyPath := filepath.Join(reproDir, keyNumbersFileName)
	if fi, err := os.Stat(keyPath); err != nil || fi.Size() == 0 {
		return fmt.Errorf("%w: %s is missing or empty", errSanity, keyPath)
	}

	keys, err := table.ReadKeyNumbers(keyPath)
	if err != nil {
		return fmt.Errorf("%w: %w", errSanity, err)
	}
	have := make(map[string]bool, len(keys))
	for _, k := range keys {
		have[k.Key] = true
	}
	var missing []string
	for _, k := range fusion.KeyNames {
		if !have[k] {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: key numbers missing %s", errSanity, strings.Join(missing, ", "))
	}

	tables, err := filepath.Glob(filepath.Join(tablesDir, "*.csv"))
	if err != nil {
		return fmt.Errorf("%w: %w", errSanity, err)
	}
	if len(tables) < minTableFiles {
		return fmt.Errorf("%w: expected at least %d tables in %s, found %d", errSanity, minTableFiles, tablesDir, len(tables))
	}
	for _, t := range tables {
		if fi, err := os.Stat(t); err != nil || fi.Size() == 0 {
			return fmt.Errorf("%w: empty table %s", errSanity, t)
		}
	}
	return nil
}

func cmdRelease(_ context.Context, cmd *urfave.Command) error {
	root := cmd.String(rootFlagName)
	manifest := cmd.String(manifestFlagName)
	p := powerMeanP(cmd)

	if !table.Exists(resolve(root, manifest)) {
		return fmt.Errorf("%w: %s", table.ErrMissingInput, resolve(root, manifest))
	}

	res := releaseResult{Root: root}
	rep, err := verifyChecksums(root, manifest, !cmd.Bool(lenientFlagName))
	res.Checksums = rep
	if err != nil {
		return err
	}

	l := layout{
		Root:    root,
		Out:     resolve(root, defaultReproDir),
		Dist:    resolve(root, defaultDistPath),
		Weights: resolve(root, defaultWeightsPath),
		DimFS:   resolve(root, defaultDimFSPath),
	}
	in, err := loadRelease(l, nil)
	if err != nil {
		return err
	}

	fr, files, err := reproduce(l, in, p)
	if err != nil {
		return err
	}
	res.Reproduced = files
	res.KeyNumbers = keyViews(fr.KeyNumbers)

	tl := l
	tl.Out = resolve(root, defaultTablesDir)
	if res.Tables, err = writeTables(tl, in, p); err != nil {
		return err
	}

	if err := sanityCheck(l.Out, tl.Out); err != nil {
		return err
	}
	res.Passed = true

	slog.Info("release verified", "root", root, "reproduced", len(res.Reproduced), "tables", len(res.Tables))
	return encode(cmd, res)
}
