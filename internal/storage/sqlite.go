// Package storage is the concrete realization of the storage adapter and
// persistence sink spec.md describes only at their interface: reading OHLCV
// rows into named series for internal/lang, and writing scoring.Run results
// back out.
package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps a pure-Go, cgo-free sqlite connection. Safe for concurrent
// use by multiple goroutines (database/sql pools connections internally).
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database file at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to sqlite database %q: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection pool, for callers (ingestion
// tooling, tests) that need direct SQL access beyond LoadSeries/Write*.
func (s *Store) DB() *sql.DB {
	return s.db
}

// InitSchema creates stock_data, score_summary, and score_details if they
// do not already exist.
func (s *Store) InitSchema() error {
	for _, stmt := range []string{createStockData, createScoreSummary, createScoreDetails} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
