// Package store persists a best-effort audit log of training runs and
// predictions in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Store is the audit log. All write failures are logged, never propagated:
// storage must not fail a client request.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open creates the database file and schema.
func Open(path string, log *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS training_runs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            generation INTEGER NOT NULL,
            window_from DATETIME NOT NULL,
            window_to DATETIME NOT NULL,
            rows_pulled INTEGER NOT NULL,
            rows_kept INTEGER NOT NULL,
            duration_ms INTEGER NOT NULL,
            status TEXT NOT NULL,
            detail TEXT,
            created_at INTEGER DEFAULT (strftime('%s', 'now'))
        )`,
		`CREATE TABLE IF NOT EXISTS predictions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            requested_at DATETIME NOT NULL,
            trip_distance REAL NOT NULL,
            hour INTEGER NOT NULL,
            pred_fare REAL NOT NULL,
            pred_revenue REAL NOT NULL,
            created_at INTEGER DEFAULT (strftime('%s', 'now'))
        )`,
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			db.Close()
			return nil, fmt.Errorf("create tables: %w", err)
		}
	}

	return &Store{db: db, log: log}, nil
}

// TrainingRun records one training attempt.
func (s *Store) TrainingRun(generation uint64, windowFrom, windowTo time.Time,
	rowsPulled, rowsKept int, duration time.Duration, status, detail string) {
	_, err := s.db.Exec(
		`INSERT INTO training_runs
            (generation, window_from, window_to, rows_pulled, rows_kept, duration_ms, status, detail)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		generation, windowFrom, windowTo, rowsPulled, rowsKept,
		duration.Milliseconds(), status, detail,
	)
	if err != nil {
		s.log.Warn("audit training run failed", zap.Error(err))
	}
}

// Prediction records one served prediction.
func (s *Store) Prediction(at time.Time, distance float64, hour int, fare, revenue float64) {
	_, err := s.db.Exec(
		`INSERT INTO predictions (requested_at, trip_distance, hour, pred_fare, pred_revenue)
         VALUES (?, ?, ?, ?, ?)`,
		at, distance, hour, fare, revenue,
	)
	if err != nil {
		s.log.Warn("audit prediction failed", zap.Error(err))
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
