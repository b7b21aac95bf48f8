package cli

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/mchmarny/sfi/pkg/checksum"
	"github.com/mchmarny/sfi/pkg/table"
	urfave "github.com/urfave/cli/v3"
)

const (
	manifestFlagName = "manifest"
	lenientFlagName  = "lenient"
)

func newChecksumCmd() *urfave.Command {
	rootFlag := func() urfave.Flag {
		return &urfave.StringFlag{
			Name:  rootFlagName,
			Usage: "Release root directory",
			Value: ".",
		}
	}
	manifestFlag := func() urfave.Flag {
		return &urfave.StringFlag{
			Name:  manifestFlagName,
			Usage: "Manifest file relative to root (.csv selects the relative_path,sha256 format)",
			Value: checksum.DefaultManifest,
		}
	}

	return &urfave.Command{
		Name:    "checksum",
		Aliases: []string{"c"},
		Usage:   "SHA-256 manifest operations",
		Commands: []*urfave.Command{
			{
				Name:    "verify",
				Aliases: []string{"v"},
				Usage:   "Verify files under root against a manifest",
				Flags: []urfave.Flag{
					rootFlag(),
					manifestFlag(),
					&urfave.BoolFlag{
						Name:  lenientFlagName,
						Usage: "Tolerate files listed in the manifest that are missing",
					},
				},
				Action: cmdChecksumVerify,
			},
			{
				Name:      "make",
				Aliases:   []string{"m"},
				Usage:     "Write a manifest for the given files (default: every file under root)",
				ArgsUsage: "[file...]",
				Flags: []urfave.Flag{
					rootFlag(),
					manifestFlag(),
				},
				Action: cmdChecksumMake,
			},
		},
	}
}

// verifyChecksums runs a verification and fails unless it passes.
func verifyChecksums(root, manifest string, strict bool) (*checksum.Report, error) {
	rep, err := checksum.Verify(root, manifest)
	if err != nil {
		return nil, fmt.Errorf("verifying checksums: %w", err)
	}
	for _, r := range rep.Results {
		if r.Status != checksum.StatusOK {
			slog.Warn("checksum", "status", r.Status, "path", r.Path, "expected", r.Expected, "got", r.Got)
		}
	}
	slog.Info("checksums verified", "ok", rep.OK, "missing", rep.Missing, "mismatch", rep.Mismatch)
	if !rep.Passed(strict) {
		return rep, fmt.Errorf("%w: %d mismatched, %d missing", checksum.ErrChecksumFailed, rep.Mismatch, rep.Missing)
	}
	return rep, nil
}

func cmdChecksumVerify(_ context.Context, cmd *urfave.Command) error {
	rep, err := verifyChecksums(cmd.String(rootFlagName), cmd.String(manifestFlagName), !cmd.Bool(lenientFlagName))
	if rep != nil {
		if encErr := encode(cmd, rep); encErr != nil {
			return encErr
		}
	}
	return err
}

// releaseFiles lists every regular file under root relative to it,
// leaving out the manifest itself.
func releaseFiles(root, manifest string) ([]string, error) {
	self := filepath.ToSlash(filepath.Clean(manifest))
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel = filepath.ToSlash(rel); rel != self {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing release files: %w", err)
	}
	return files, nil
}

type makeResult struct {
	Manifest string `json:"manifest" yaml:"manifest"`
	Entries  int    `json:"entries" yaml:"entries"`
}

func cmdChecksumMake(_ context.Context, cmd *urfave.Command) error {
	root := cmd.String(rootFlagName)
	manifest := cmd.String(manifestFlagName)

	files := cmd.Args().Slice()
	if len(files) == 0 {
		var err error
		if files, err = releaseFiles(root, manifest); err != nil {
			return err
		}
	}

	entries, err := checksum.Make(root, files)
	if err != nil {
		return fmt.Errorf("hashing files: %w", err)
	}

	var buf bytes.Buffer
	if strings.EqualFold(filepath.Ext(manifest), ".csv") {
		err = checksum.WriteCSV(&buf, entries)
	} else {
		err = checksum.WriteText(&buf, entries)
	}
	if err != nil {
		return fmt.Errorf("rendering manifest: %w", err)
	}

	dst := resolve(root, manifest)
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if err := table.WriteText(dst, lines...); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}

	slog.Info("manifest written", "path", dst, "entries", len(entries))
	return encode(cmd, makeResult{Manifest: dst, Entries: len(entries)})
}
