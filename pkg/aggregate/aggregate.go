// Package aggregate builds counters in parallel and reduces them.
// Each worker owns its counter; results are combined only after all
// workers are done.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/mchmarny/tally/pkg/counter"
	"golang.org/x/sync/errgroup"
)

// Partition splits values round-robin into at most shards non-empty slices.
func Partition(values []float64, shards int) [][]float64 {
	if len(values) == 0 {
		return [][]float64{}
	}
	if shards < 1 {
		shards = 1
	}
	if shards > len(values) {
		shards = len(values)
	}

	size := (len(values) + shards - 1) / shards
	parts := make([][]float64, shards)
	for i := range parts {
		parts[i] = make([]float64, 0, size)
	}
	for i, v := range values {
		parts[i%shards] = append(parts[i%shards], v)
	}
	return parts
}

// Build returns one counter per shard. Shards are processed concurrently by
// at most workers goroutines (GOMAXPROCS when workers < 1).
func Build(ctx context.Context, shards [][]float64, workers int) ([]*counter.Counter, error) {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	counters := make([]*counter.Counter, len(shards))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, shard := range shards {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("building shard %d: %w", i, err)
			}
			c := counter.New()
			for _, v := range shard {
				c.Increment(v)
			}
			counters[i] = c
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Debug("shards built", "shards", len(shards), "workers", workers)
	return counters, nil
}

// Reduce merges counters pairwise in a balanced tree. Inputs are not
// modified; nil entries are skipped.
func Reduce(counters ...*counter.Counter) *counter.Counter {
	level := make([]*counter.Counter, 0, len(counters))
	for _, c := range counters {
		if c != nil {
			level = append(level, c)
		}
	}
	if len(level) == 0 {
		return counter.New()
	}

	// the first level is cloned so no caller-owned counter is mutated
	for i, c := range level {
		level[i] = c.Clone()
	}

	for len(level) > 1 {
		next := level[:0]
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				level[i].Merge(level[i+1])
			}
			next = append(next, level[i])
		}
		level = next
	}
	return level[0]
}

// Fold merges counters left to right into a new counter.
func Fold(counters ...*counter.Counter) *counter.Counter {
	total := counter.New()
	for _, c := range counters {
		total.Merge(c)
	}
	return total
}

// ReduceBytes decodes every encoded counter and merges them.
func ReduceBytes(blobs ...[]byte) (*counter.Counter, error) {
	total := counter.New()
	for i, b := range blobs {
		if err := total.MergeBytes(b); err != nil {
			return nil, fmt.Errorf("merging counter %d: %w", i, err)
		}
	}
	return total, nil
}
