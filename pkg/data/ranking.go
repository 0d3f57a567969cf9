package data

import (
	"fmt"
	"math"

	"github.com/mchmarny/tally/pkg/rating"
)

const selectAllPartialsSQL = `SELECT name, data FROM partial ORDER BY name, shard`

// RankedItem is one key in a ranking.
type RankedItem struct {
	Key   string  `json:"key" yaml:"key"`
	Count uint64  `json:"count" yaml:"count"`
	Mean  float64 `json:"mean" yaml:"mean"`
	Score float64 `json:"score" yaml:"score"`
	Label string  `json:"label" yaml:"label"`
}

// RankKeys scores every stored key as a rating within [lower, upper] and
// returns them best first. A positive limit truncates the list.
func RankKeys(db *DB, lower, upper float64, limit int) ([]*RankedItem, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if !isFinite(lower) || !isFinite(upper) {
		return nil, fmt.Errorf("invalid bounds: %v and %v must be finite", lower, upper)
	}
	if upper < lower {
		return nil, fmt.Errorf("invalid bounds: upper %v is less than lower %v", upper, lower)
	}

	rows, err := db.Query(selectAllPartialsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query partials: %w", err)
	}
	defer rows.Close()

	byKey := make(map[*rating.Rating]string)
	ratings := make([]*rating.Rating, 0)
	var current *rating.Rating
	var currentKey string

	for rows.Next() {
		var key string
		var b []byte
		if err := rows.Scan(&key, &b); err != nil {
			return nil, fmt.Errorf("failed to scan partial: %w", err)
		}
		if current == nil || key != currentKey {
			current = rating.New(lower, upper)
			currentKey = key
			byKey[current] = key
			ratings = append(ratings, current)
		}
		if err := current.MergeBytes(b); err != nil {
			return nil, fmt.Errorf("error decoding partial of %s: %w", key, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating partials: %w", err)
	}

	rating.Sort(ratings)

	if limit > 0 && len(ratings) > limit {
		ratings = ratings[:limit]
	}

	list := make([]*RankedItem, 0, len(ratings))
	for _, r := range ratings {
		list = append(list, &RankedItem{
			Key:   byKey[r],
			Count: r.Count(),
			Mean:  r.MeanRating(),
			Score: r.BayesianScore(),
			Label: r.String(),
		})
	}
	return list, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
