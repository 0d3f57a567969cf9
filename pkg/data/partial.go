package data

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mchmarny/tally/pkg/aggregate"
	"github.com/mchmarny/tally/pkg/counter"
)

const (
	selectPartialSQL = `SELECT data FROM partial WHERE name = ? AND shard = ?`

	upsertPartialSQL = `INSERT INTO partial (name, shard, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name, shard) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`

	selectPartialsSQL = `SELECT data FROM partial WHERE name = ? ORDER BY shard`

	selectKeysSQL = `SELECT DISTINCT name FROM partial ORDER BY name`

	deleteKeySQL = `DELETE FROM partial WHERE name = ?`
)

// KeySummary is the merged view of all partials stored under one key.
type KeySummary struct {
	Key     string          `json:"key" yaml:"key"`
	Shards  int             `json:"shards" yaml:"shards"`
	Stats   counter.Summary `json:"stats" yaml:"stats"`
	Encoded string          `json:"encoded" yaml:"encoded"`
}

// SavePartial merges c into the partial stored under key and shard.
func SavePartial(db *DB, key string, shard int, c *counter.Counter) error {
	return SavePartials(db, key, map[int]*counter.Counter{shard: c})
}

// SavePartials merges each counter into the partial of its shard in a
// single transaction.
func SavePartials(db *DB, key string, partials map[int]*counter.Counter) error {
	if db == nil {
		return errDBNotInitialized
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("error starting partial tx: %w", err)
	}

	if err := savePartials(db, tx, key, partials, time.Now().UTC().Format(timeFormat)); err != nil {
		rollbackTransaction(tx)
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing partial tx: %w", err)
	}
	return nil
}

func savePartials(db *DB, tx *sql.Tx, key string, partials map[int]*counter.Counter, now string) error {
	if key == "" {
		return errors.New("key required")
	}
	for shard, c := range partials {
		if c == nil {
			continue
		}
		if err := savePartial(db, tx, key, shard, c, now); err != nil {
			return err
		}
	}
	return nil
}

func savePartial(db *DB, tx *sql.Tx, key string, shard int, c *counter.Counter, now string) error {
	merged := counter.New()

	var existing []byte
	err := tx.QueryRow(db.rebind(selectPartialSQL), key, shard).Scan(&existing)
	switch {
	case err == nil:
		if err := merged.MergeBytes(existing); err != nil {
			return fmt.Errorf("error decoding stored partial %s/%d: %w", key, shard, err)
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return fmt.Errorf("error selecting partial %s/%d: %w", key, shard, err)
	}

	merged.Merge(c)

	if _, err := tx.Exec(db.rebind(upsertPartialSQL), key, shard, merged.ToBytes(), now); err != nil {
		return fmt.Errorf("error saving partial %s/%d: %w", key, shard, err)
	}
	return nil
}

// MergeEncoded validates an encoded counter and merges it into a partial.
func MergeEncoded(db *DB, key string, shard int, b []byte) (*counter.Counter, error) {
	c, err := counter.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("error decoding counter: %w", err)
	}
	if err := SavePartial(db, key, shard, c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetPartials returns all partial counters stored under key ordered by shard.
func GetPartials(db *DB, key string) ([]*counter.Counter, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(db.rebind(selectPartialsSQL), key)
	if err != nil {
		return nil, fmt.Errorf("failed to query partials for %s: %w", key, err)
	}
	defer rows.Close()

	list := make([]*counter.Counter, 0)
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("failed to scan partial: %w", err)
		}
		c, err := counter.Decode(b)
		if err != nil {
			return nil, fmt.Errorf("error decoding partial of %s: %w", key, err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating partials: %w", err)
	}

	return list, nil
}

// GetCounter merges all partials of key into a single counter.
func GetCounter(db *DB, key string) (*counter.Counter, error) {
	list, err := GetPartials(db, key)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return aggregate.Reduce(list...), nil
}

// GetSummary returns the merged statistics of key.
func GetSummary(db *DB, key string) (*KeySummary, error) {
	list, err := GetPartials(db, key)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	c := aggregate.Reduce(list...)
	return &KeySummary{
		Key:     key,
		Shards:  len(list),
		Stats:   c.Summary(),
		Encoded: fmt.Sprintf("%x", c.ToBytes()),
	}, nil
}

// ListKeys returns all keys with stored partials.
func ListKeys(db *DB) ([]string, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(selectKeysSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating keys: %w", err)
	}
	return keys, nil
}

// DeleteKey removes all partials of key and returns how many were deleted.
func DeleteKey(db *DB, key string) (int64, error) {
	if db == nil {
		return 0, errDBNotInitialized
	}

	res, err := db.Exec(db.rebind(deleteKeySQL), key)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}
	return n, nil
}
