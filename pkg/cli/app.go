package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mchmarny/sfi/pkg/config"
	"github.com/mchmarny/sfi/pkg/data"
	"github.com/mchmarny/sfi/pkg/logging"
	urfave "github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName      = "sfi"
	appConfigKey = "app-config"

	formatJSON = "json"
	formatYAML = "yaml"
)

const (
	debugFlagName    = "debug"
	logLevelFlagName = "log-level"
	configFlagName   = "config"
	dbFlagName       = "db"
	dbDriverFlagName = "db-driver"
	formatFlagName   = "format"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info")

	app := newApp()
	if err := app.Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	Config     *config.Config
	ConfigPath string
	HomeDir    string
	DBPath     string
	DBDriver   string
	Format     string
	Debug      bool
	Store      *data.Store
}

func getConfig(cmd *urfave.Command) *appConfig {
	return cmd.Root().Metadata[appConfigKey].(*appConfig)
}

// store opens the results database on first use.
func (c *appConfig) store(ctx context.Context) (*data.Store, error) {
	if c.Store != nil {
		return c.Store, nil
	}
	s, err := data.Open(ctx, c.DBDriver, c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	c.Store = s
	return s, nil
}

func newApp() *urfave.Command {
	return &urfave.Command{
		Name:                  appName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Usage:                 "Style fusion index: measure, reproduce and verify image style scores",
		Metadata:              map[string]any{},
		Flags: []urfave.Flag{
			&urfave.BoolFlag{
				Name:  debugFlagName,
				Usage: "Prints verbose logs (optional, default: false)",
			},
			&urfave.StringFlag{
				Name:  logLevelFlagName,
				Usage: "Log level [debug, info, warn, error]",
				Value: "info",
			},
			&urfave.StringFlag{
				Name:  configFlagName,
				Usage: "Path to the run config file (default: $HOME/.sfi/config.yaml)",
			},
			&urfave.StringFlag{
				Name:  dbFlagName,
				Usage: "Path to the sqlite database file, or the postgres DSN",
			},
			&urfave.StringFlag{
				Name:  dbDriverFlagName,
				Usage: "Database driver [sqlite, postgres]",
				Value: data.DriverSQLite,
			},
			&urfave.StringFlag{
				Name:  formatFlagName,
				Usage: "Output format [json, yaml]",
				Value: formatJSON,
			},
		},
		Commands: []*urfave.Command{
			newMeasureCmd(),
			newReproduceCmd(),
			newTablesCmd(),
			newChecksumCmd(),
			newReleaseCmd(),
			newQueryCmd(),
			newResetCmd(),
		},
		Before: func(ctx context.Context, cmd *urfave.Command) (context.Context, error) {
			debug := cmd.Bool(debugFlagName)
			level := cmd.String(logLevelFlagName)
			if debug {
				level = "debug"
			}
			initLogging(level)

			home, _, err := config.GetOrCreateHomeDir(appName)
			if err != nil {
				slog.Debug("error getting home dir, using current dir instead", "error", err)
				home = "."
			}

			cfgPath := cmd.String(configFlagName)
			var cfg *config.Config
			if cfgPath != "" {
				cfg, err = config.Load(cfgPath)
			} else {
				cfgPath = filepath.Join(home, config.FileName)
				cfg, err = config.ReadOrCreate(home)
			}
			if err != nil {
				return ctx, fmt.Errorf("loading config: %w", err)
			}

			dbPath := cmd.String(dbFlagName)
			if dbPath == "" {
				dbPath = filepath.Join(home, data.DataFileName)
			}

			format := formatJSON
			if f := cmd.String(formatFlagName); f == formatYAML || f == "yml" {
				format = formatYAML
			}

			cmd.Root().Metadata[appConfigKey] = &appConfig{
				Config:     cfg,
				ConfigPath: cfgPath,
				HomeDir:    home,
				DBPath:     dbPath,
				DBDriver:   cmd.String(dbDriverFlagName),
				Format:     format,
				Debug:      debug,
			}
			return ctx, nil
		},
		After: func(_ context.Context, cmd *urfave.Command) error {
			if cfg, ok := cmd.Root().Metadata[appConfigKey].(*appConfig); ok && cfg.Store != nil {
				cfg.Store.Close()
				cfg.Store = nil
			}
			return nil
		},
	}
}

func initLogging(level string) {
	logging.SetDefaultCLILogger(level)
}

func writer(cmd *urfave.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func encode(cmd *urfave.Command, v any) error {
	w := writer(cmd)
	if getConfig(cmd).Format == formatYAML {
		return yaml.NewEncoder(w).Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
