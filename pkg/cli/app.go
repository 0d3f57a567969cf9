package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mchmarny/tally/pkg/config"
	"github.com/mchmarny/tally/pkg/data"
	"github.com/mchmarny/tally/pkg/logging"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName      = "tally"
	appConfigKey = "app-config"

	formatJSON = "json"
	formatYAML = "yaml"

	flagConfig   = "config"
	flagDB       = "db"
	flagDriver   = "driver"
	flagFormat   = "format"
	flagDebug    = "debug"
	flagLogLevel = "log-level"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info")

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	Dir    string
	Config *config.Config
	Format string
	DB     *data.DB
}

func getConfig(cmd *cli.Command) *appConfig {
	return cmd.Root().Metadata[appConfigKey].(*appConfig)
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  appName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Usage:                 "Mergeable running statistics and Bayesian ratings",
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Metadata:              map[string]any{},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Usage:   "Path to the config directory (default: $HOME/.tally)",
				Sources: cli.EnvVars("TALLY_CONFIG"),
			},
			&cli.StringFlag{
				Name:    flagDB,
				Usage:   "Store DSN, sqlite file path or postgres connection string",
				Sources: cli.EnvVars("TALLY_DB"),
			},
			&cli.StringFlag{
				Name:    flagDriver,
				Usage:   fmt.Sprintf("Store driver [%s, %s]", data.DriverSQLite, data.DriverPostgres),
				Sources: cli.EnvVars("TALLY_DRIVER"),
			},
			&cli.StringFlag{
				Name:  flagFormat,
				Usage: "Output format [json, yaml]",
				Value: formatJSON,
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "Prints verbose logs (optional, default: false)",
			},
			&cli.StringFlag{
				Name:    flagLogLevel,
				Usage:   "Log level [debug, info, warn, error]",
				Sources: cli.EnvVars("TALLY_LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			newAuthCmd(),
			newImportCmd(),
			newStatsCmd(),
			newRankCmd(),
			newExportCmd(),
			newMergeCmd(),
			newKeysCmd(),
			newDeleteCmd(),
			newStateCmd(),
			newResetCmd(),
			newServerCmd(),
		},
		Before: before,
		After: func(_ context.Context, cmd *cli.Command) error {
			if cfg, ok := cmd.Root().Metadata[appConfigKey].(*appConfig); ok && cfg.DB != nil {
				cfg.DB.Close()
			}
			return nil
		},
	}
}

func before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	dir := cmd.String(flagConfig)
	if dir == "" {
		var err error
		if dir, _, err = config.GetOrCreateHomeDir(appName); err != nil {
			return ctx, fmt.Errorf("getting config dir: %w", err)
		}
	}

	c, err := config.ReadOrCreate(dir)
	if err != nil {
		return ctx, fmt.Errorf("reading config: %w", err)
	}

	if cmd.IsSet(flagLogLevel) {
		c.LogLevel = cmd.String(flagLogLevel)
	}
	if cmd.Bool(flagDebug) {
		c.LogLevel = "debug"
	}
	logging.SetDefaultCLILogger(c.LogLevel)

	if cmd.IsSet(flagDriver) {
		c.Store.Driver = cmd.String(flagDriver)
	}
	if cmd.IsSet(flagDB) {
		c.Store.DSN = cmd.String(flagDB)
	}
	if err := c.Validate(); err != nil {
		return ctx, fmt.Errorf("invalid config: %w", err)
	}

	if err := data.Init(c.Store.Driver, c.Store.DSN); err != nil {
		return ctx, fmt.Errorf("initializing database: %w", err)
	}

	db, err := data.GetDB(c.Store.Driver, c.Store.DSN)
	if err != nil {
		return ctx, fmt.Errorf("opening database: %w", err)
	}

	format := formatJSON
	if f := cmd.String(flagFormat); f == formatYAML || f == "yml" {
		format = formatYAML
	}

	cmd.Root().Metadata[appConfigKey] = &appConfig{
		Dir:    dir,
		Config: c,
		Format: format,
		DB:     db,
	}
	slog.Debug("config loaded", "dir", dir, "driver", c.Store.Driver)
	return ctx, nil
}

func writer(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func reader(cmd *cli.Command) io.Reader {
	if r := cmd.Root().Reader; r != nil {
		return r
	}
	return os.Stdin
}

func encode(cmd *cli.Command, v any) error {
	w := writer(cmd)
	if getConfig(cmd).Format == formatYAML {
		return yaml.NewEncoder(w).Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
