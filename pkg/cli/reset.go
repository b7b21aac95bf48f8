package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	urfave "github.com/urfave/cli/v3"
)

const yesFlagName = "yes"

func newResetCmd() *urfave.Command {
	return &urfave.Command{
		Name:  "reset",
		Usage: "Delete all stored runs and start fresh",
		Flags: []urfave.Flag{
			&urfave.BoolFlag{
				Name:    yesFlagName,
				Aliases: []string{"y"},
				Usage:   "Skip the confirmation prompt",
			},
		},
		Action: cmdReset,
	}
}

func confirm(r io.Reader, w io.Writer, target string) (bool, error) {
	fmt.Fprintf(w, "This will permanently delete all runs in %s\n", target)
	fmt.Fprint(w, "Are you sure? [y/N]: ")

	answer, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("reading input: %w", err)
	}
	return strings.ToLower(strings.TrimSpace(answer)) == "y", nil
}

func cmdReset(ctx context.Context, cmd *urfave.Command) error {
	cfg := getConfig(cmd)
	w := writer(cmd)

	if !cmd.Bool(yesFlagName) {
		in := cmd.Root().Reader
		if in == nil {
			in = os.Stdin
		}
		ok, err := confirm(in, w, cfg.DBPath)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(w, "Aborted.")
			return nil
		}
	}

	s, err := cfg.store(ctx)
	if err != nil {
		return err
	}
	if err := s.DeleteAll(ctx); err != nil {
		return fmt.Errorf("deleting runs: %w", err)
	}

	slog.Info("database reset", "path", cfg.DBPath)
	fmt.Fprintln(w, "Reset complete.")
	return nil
}
