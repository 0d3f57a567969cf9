package data

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mchmarny/tally/pkg/aggregate"
	"github.com/mchmarny/tally/pkg/counter"
)

const (
	DefaultKey    = "default"
	DefaultShards = 4
)

// ImportOptions controls how values are split and built.
type ImportOptions struct {
	// DefaultKey is used for rows that only carry a value.
	DefaultKey string
	// Shards is the number of partial counters per key.
	Shards int
	// Workers limits concurrent shard builds (GOMAXPROCS when 0).
	Workers int
	// Source names the input. Content already imported is skipped unless
	// Force is set.
	Source string
	Force  bool
}

// ImportResult is returned by ImportValues.
type ImportResult struct {
	Keys     int               `json:"keys" yaml:"keys"`
	Values   int               `json:"values" yaml:"values"`
	Invalid  int               `json:"invalid" yaml:"invalid"`
	Partials int               `json:"partials" yaml:"partials"`
	Skipped  bool              `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Source   *Source           `json:"source,omitempty" yaml:"source,omitempty"`
	Counts   map[string]uint64 `json:"counts,omitempty" yaml:"counts,omitempty"`
}

// ImportValues reads `key,value` (or bare `value`) CSV rows from r, builds
// partial counters per key in parallel and merges them into the store.
// Blank lines and lines starting with # are skipped; rows whose value is not
// a finite number are counted as invalid. All partials and the source record
// are stored in a single transaction.
func ImportValues(ctx context.Context, db *DB, r io.Reader, opt ImportOptions) (*ImportResult, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if r == nil {
		return nil, errors.New("reader required")
	}
	if opt.DefaultKey == "" {
		opt.DefaultKey = DefaultKey
	}
	if opt.Shards < 1 {
		opt.Shards = DefaultShards
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading input: %w", err)
	}

	digest := Digest(content)
	prev, err := GetSource(db, digest)
	if err != nil {
		return nil, err
	}
	if prev != nil && !opt.Force {
		slog.Info("source already imported, skipping", "source", prev.Name, "imported_at", prev.ImportedAt)
		return &ImportResult{Skipped: true, Source: prev}, nil
	}

	values, invalid, err := readValues(bytes.NewReader(content), opt.DefaultKey)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{
		Invalid: invalid,
		Counts:  make(map[string]uint64, len(values)),
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	built := make(map[string]map[int]*counter.Counter, len(keys))
	for _, key := range keys {
		shards := aggregate.Partition(values[key], opt.Shards)
		counters, err := aggregate.Build(ctx, shards, opt.Workers)
		if err != nil {
			return nil, fmt.Errorf("error building counters for %s: %w", key, err)
		}

		partials := make(map[int]*counter.Counter, len(counters))
		for i, c := range counters {
			partials[i] = c
		}
		built[key] = partials

		res.Keys++
		res.Values += len(values[key])
		res.Partials += len(counters)
		res.Counts[key] = uint64(len(values[key]))
	}

	res.Source = &Source{Digest: digest, Name: opt.Source, Values: res.Values}

	// partials and the source record commit together so a failed import
	// leaves nothing merged and can be retried
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting import tx: %w", err)
	}

	now := time.Now().UTC().Format(timeFormat)
	for _, key := range keys {
		if err := savePartials(db, tx, key, built[key], now); err != nil {
			rollbackTransaction(tx)
			return nil, fmt.Errorf("error saving partials for %s: %w", key, err)
		}
		slog.Debug("key imported", "key", key, "values", len(values[key]), "shards", len(built[key]))
	}

	if err := saveSource(db, tx, res.Source); err != nil {
		rollbackTransaction(tx)
		return nil, fmt.Errorf("error recording source: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing import tx: %w", err)
	}

	slog.Info("values imported", "keys", res.Keys, "values", res.Values, "invalid", res.Invalid)
	return res, nil
}

func readValues(r io.Reader, defaultKey string) (map[string][]float64, int, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	values := make(map[string][]float64)
	invalid := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("error reading values: %w", err)
		}

		key, raw := defaultKey, rec[0]
		if len(rec) > 1 {
			key, raw = strings.TrimSpace(rec[0]), rec[1]
		}

			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || key == "" || math.IsNaN(v) || math.IsInf(v, 0) {
			line, _ := cr.FieldPos(0)
			slog.Debug("skipping invalid row", "line", line, "value", raw)
			invalid++
			continue
		}
		values[key] = append(values[key], v)
	}
	return values, invalid, nil
}
