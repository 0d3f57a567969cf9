package data

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var (
	stateQueries = map[string]string{
		"keys":     "SELECT COUNT(DISTINCT name) FROM partial",
		"partials": "SELECT COUNT(*) FROM partial",
		"sources":  "SELECT COUNT(*) FROM source",
	}

	insertSourceSQL = `INSERT INTO source (digest, name, values_count, imported_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (digest) DO UPDATE SET
			name = excluded.name,
			values_count = excluded.values_count,
			imported_at = excluded.imported_at
	`

	selectSourceSQL = `SELECT name, values_count, imported_at FROM source WHERE digest = ?`
)

// Source records an imported input so the same content is not merged twice.
type Source struct {
	Digest     string `json:"digest" yaml:"digest"`
	Name       string `json:"name" yaml:"name"`
	Values     int    `json:"values" yaml:"values"`
	ImportedAt string `json:"imported_at" yaml:"importedAt"`
}

// Digest returns the content digest used to identify a source.
func Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// GetSource returns the recorded source with digest, or nil when the
// content was never imported.
func GetSource(db *DB, digest string) (*Source, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	s := &Source{Digest: digest}
	err := db.QueryRow(db.rebind(selectSourceSQL), digest).Scan(&s.Name, &s.Values, &s.ImportedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan source: %w", err)
	}
	return s, nil
}

// SaveSource records an imported source.
func SaveSource(db *DB, s *Source) error {
	if db == nil {
		return errDBNotInitialized
	}
	return saveSource(db, db.DB, s)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func saveSource(db *DB, ex execer, s *Source) error {
	if s == nil || s.Digest == "" {
		return errors.New("source with digest required")
	}
	if s.ImportedAt == "" {
		s.ImportedAt = time.Now().UTC().Format(timeFormat)
	}

	if _, err := ex.Exec(db.rebind(insertSourceSQL), s.Digest, s.Name, s.Values, s.ImportedAt); err != nil {
		return fmt.Errorf("failed to insert source: %w", err)
	}
	return nil
}

// GetDataState returns row counts of the store.
func GetDataState(db *DB) (map[string]int64, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	state := make(map[string]int64)
	for k, q := range stateQueries {
		var count int64
		if err := db.QueryRow(q).Scan(&count); err != nil {
			return nil, fmt.Errorf("error getting %s count: %w", k, err)
		}
		state[k] = count
	}

	return state, nil
}
