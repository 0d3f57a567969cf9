package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mchmarny/tally/pkg/data"
	"github.com/mchmarny/tally/pkg/net"
	"github.com/urfave/cli/v3"
)

const (
	flagFile    = "file"
	flagURL     = "url"
	flagKey     = "key"
	flagShards  = "shards"
	flagWorkers = "workers"
	flagForce   = "force"

	sourceStdin = "stdin"
)

func newImportCmd() *cli.Command {
	return &cli.Command{
		Name:    "import",
		Aliases: []string{"i"},
		Usage:   "Import key,value rows into partial counters",
		UsageText: `tally import --file ratings.csv                  # import local file
   tally import --url https://host/ratings.csv --shards 8   # import remote file
   cat values.txt | tally import --key latency          # single-column rows from stdin`,
		Action: cmdImport,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagFile,
				Aliases: []string{"f"},
				Usage:   "Path to the CSV file to import",
			},
			&cli.StringFlag{
				Name:  flagURL,
				Usage: "URL of the CSV file to import (default: sourceUrl from config)",
			},
			&cli.StringFlag{
				Name:  flagKey,
				Usage: "Key for rows that only carry a value",
				Value: data.DefaultKey,
			},
			&cli.IntFlag{
				Name:  flagShards,
				Usage: "Number of partial counters per key (default: from config)",
			},
			&cli.IntFlag{
				Name:  flagWorkers,
				Usage: "Max number of shards built at once (default: from config)",
			},
			&cli.BoolFlag{
				Name:  flagForce,
				Usage: "Merge the input even when the same content was imported before",
			},
		},
	}
}

func cmdImport(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)

	opt := data.ImportOptions{
		DefaultKey: cmd.String(flagKey),
		Shards:     cfg.Config.Shards,
		Workers:    cfg.Config.Workers,
		Force:      cmd.Bool(flagForce),
	}
	if cmd.IsSet(flagShards) {
		opt.Shards = cmd.Int(flagShards)
	}
	if cmd.IsSet(flagWorkers) {
		opt.Workers = cmd.Int(flagWorkers)
	}

	r, source, err := openSource(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer r.Close()
	opt.Source = source

	slog.Debug("importing", "source", source, "shards", opt.Shards, "workers", opt.Workers)

	res, err := data.ImportValues(ctx, cfg.DB, r, opt)
	if err != nil {
		return fmt.Errorf("importing %s: %w", source, err)
	}

	return encode(cmd, res)
}

// openSource resolves the import input: file, then url, then stdin.
func openSource(ctx context.Context, cmd *cli.Command, cfg *appConfig) (io.ReadCloser, string, error) {
	if path := cmd.String(flagFile); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, "", fmt.Errorf("opening file %s: %w", path, err)
		}
		return f, path, nil
	}

	url := cmd.String(flagURL)
	if url == "" {
		url = cfg.Config.SourceURL
	}
	if url != "" {
		token, err := getSourceToken(cfg.Dir)
		if err != nil {
			return nil, "", fmt.Errorf("getting source token: %w", err)
		}
		b, err := net.Fetch(ctx, net.GetClient(ctx, token), url)
		if err != nil {
			return nil, "", fmt.Errorf("downloading %s: %w", url, err)
		}
		return io.NopCloser(bytes.NewReader(b)), url, nil
	}

	return io.NopCloser(reader(cmd)), sourceStdin, nil
}
