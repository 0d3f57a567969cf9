package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mchmarny/tally/pkg/aggregate"
	"github.com/mchmarny/tally/pkg/counter"
	"github.com/mchmarny/tally/pkg/data"
	"github.com/urfave/cli/v3"
)

const (
	flagLower = "lower"
	flagUpper = "upper"
	flagLimit = "limit"
	flagHex   = "hex"
	flagShard = "shard"
)

func keyFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     flagKey,
		Aliases:  []string{"k"},
		Usage:    "Key under which the values are stored",
		Required: required,
	}
}

func newStatsCmd() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Print merged statistics of a key",
		Flags:  []cli.Flag{keyFlag(true)},
		Action: cmdStats,
	}
}

func cmdStats(_ context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)
	s, err := data.GetSummary(cfg.DB, cmd.String(flagKey))
	if err != nil {
		return fmt.Errorf("getting stats: %w", err)
	}
	return encode(cmd, s)
}

func newRankCmd() *cli.Command {
	return &cli.Command{
		Name:  "rank",
		Usage: "Rank all keys by Bayesian rating score",
		Flags: []cli.Flag{
			&cli.FloatFlag{
				Name:  flagLower,
				Usage: "Lower bound of the rating scale (default: from config)",
			},
			&cli.FloatFlag{
				Name:  flagUpper,
				Usage: "Upper bound of the rating scale (default: from config)",
			},
			&cli.IntFlag{
				Name:  flagLimit,
				Usage: "Max number of keys to list, 0 for all",
			},
		},
		Action: cmdRank,
	}
}

func cmdRank(_ context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)

	lower, upper := cfg.Config.Bounds.Lower, cfg.Config.Bounds.Upper
	if cmd.IsSet(flagLower) {
		lower = cmd.Float(flagLower)
	}
	if cmd.IsSet(flagUpper) {
		upper = cmd.Float(flagUpper)
	}

	list, err := data.RankKeys(cfg.DB, lower, upper, cmd.Int(flagLimit))
	if err != nil {
		return fmt.Errorf("ranking keys: %w", err)
	}
	return encode(cmd, list)
}

func newExportCmd() *cli.Command {
	return &cli.Command{
		Name:   "export",
		Usage:  "Print the hex encoded counter of a key",
		Flags:  []cli.Flag{keyFlag(true)},
		Action: cmdExport,
	}
}

func cmdExport(_ context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)
	c, err := data.GetCounter(cfg.DB, cmd.String(flagKey))
	if err != nil {
		return fmt.Errorf("exporting counter: %w", err)
	}
	_, err = fmt.Fprintln(writer(cmd), hex.EncodeToString(c.ToBytes()))
	return err
}

// MergeResult is the output of the merge command.
type MergeResult struct {
	Inputs  int             `json:"inputs" yaml:"inputs"`
	Key     string          `json:"key,omitempty" yaml:"key,omitempty"`
	Stats   counter.Summary `json:"stats" yaml:"stats"`
	Encoded string          `json:"encoded" yaml:"encoded"`
}

func newMergeCmd() *cli.Command {
	return &cli.Command{
		Name:      "merge",
		Usage:     "Merge hex encoded counters, optionally into a stored key",
		UsageText: "tally merge --hex <counter> --hex <counter> [--key K --shard S]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     flagHex,
				Usage:    "Hex encoded counter (can be specified multiple times)",
				Required: true,
			},
			keyFlag(false),
			&cli.IntFlag{
				Name:  flagShard,
				Usage: "Shard of the key to merge into",
			},
		},
		Action: cmdMerge,
	}
}

func cmdMerge(_ context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)
	in := cmd.StringSlice(flagHex)

	blobs := make([][]byte, 0, len(in))
	for i, h := range in {
		b, err := hex.DecodeString(strings.TrimSpace(h))
		if err != nil {
			return fmt.Errorf("decoding hex counter %d: %w", i, err)
		}
		blobs = append(blobs, b)
	}

	c, err := aggregate.ReduceBytes(blobs...)
	if err != nil {
		return err
	}

	key := cmd.String(flagKey)
	if key != "" {
		if err := data.SavePartial(cfg.DB, key, cmd.Int(flagShard), c); err != nil {
			return fmt.Errorf("saving merged counter: %w", err)
		}
	}

	return encode(cmd, &MergeResult{
		Inputs:  len(blobs),
		Key:     key,
		Stats:   c.Summary(),
		Encoded: hex.EncodeToString(c.ToBytes()),
	})
}

func newKeysCmd() *cli.Command {
	return &cli.Command{
		Name:  "keys",
		Usage: "List stored keys",
		Action: func(_ context.Context, cmd *cli.Command) error {
			keys, err := data.ListKeys(getConfig(cmd).DB)
			if err != nil {
				return fmt.Errorf("listing keys: %w", err)
			}
			return encode(cmd, keys)
		},
	}
}

func newDeleteCmd() *cli.Command {
	return &cli.Command{
		Name:   "delete",
		Usage:  "Delete all partials of a key",
		Flags:  []cli.Flag{keyFlag(true)},
		Action: cmdDelete,
	}
}

func cmdDelete(_ context.Context, cmd *cli.Command) error {
	key := cmd.String(flagKey)
	n, err := data.DeleteKey(getConfig(cmd).DB, key)
	if err != nil {
		return fmt.Errorf("deleting key: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", data.ErrNotFound, key)
	}
	return encode(cmd, map[string]any{"key": key, "deleted": n})
}

func newStateCmd() *cli.Command {
	return &cli.Command{
		Name:  "state",
		Usage: "Print row counts of the store",
		Action: func(_ context.Context, cmd *cli.Command) error {
			state, err := data.GetDataState(getConfig(cmd).DB)
			if err != nil {
				return fmt.Errorf("getting state: %w", err)
			}
			return encode(cmd, state)
		},
	}
}
