// Package history persists control-state snapshots: a SQLite table with
// retention, a JSON file holding the latest state, and an append-only text log.
package history

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/thermostat/internal/port"
	"github.com/sweeney/thermostat/internal/state"
)

// pruneEvery bounds how often PublishSnapshot applies the retention window.
const pruneEvery = time.Hour

// Store is the snapshot history table.
type Store struct {
	db        *sql.DB
	retention time.Duration
	now       func() time.Time

	mu         sync.Mutex
	lastPruned time.Time
}

var _ port.SnapshotSink = (*Store)(nil)

// Open opens (creating if needed) the history database at path.
// A retention of zero keeps every snapshot.
func Open(path string, retention time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}
	return &Store{db: db, retention: retention, now: time.Now}, nil
}

func initSchema(db *sql.DB) error {
	// payload is the snapshot JSON, so rows decode with state.ParseJSON
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			relay TEXT NOT NULL,
			command TEXT NOT NULL,
			payload TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snapshots_updated ON snapshots(updated_at);
	`)
	if err != nil {
		return fmt.Errorf("create snapshots table: %w", err)
	}
	return nil
}

// Append stores one snapshot.
func (s *Store) Append(snap state.Snapshot) error {
	_, err := s.db.Exec(
		`INSERT INTO snapshots (id, updated_at, relay, command, payload) VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.UpdatedAt.UnixMilli(), snap.Relay.String(), snap.LastCommand.String(), string(state.FormatEvent(snap)),
	)
	if err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}
	return nil
}

// PublishSnapshot appends snap and, at most once an hour, drops snapshots
// older than the retention window.
func (s *Store) PublishSnapshot(snap state.Snapshot) error {
	if err := s.Append(snap); err != nil {
		return err
	}
	if s.retention <= 0 {
		return nil
	}

	now := s.now()
	s.mu.Lock()
	due := now.Sub(s.lastPruned) >= pruneEvery
	if due {
		s.lastPruned = now
	}
	s.mu.Unlock()
	if !due {
		return nil
	}

	n, err := s.DeleteOlderThan(s.retention)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Debug().Int64("deleted", n).Dur("retention", s.retention).Msg("pruned snapshot history")
	}
	return nil
}

// Recent returns up to limit snapshots, newest first.
func (s *Store) Recent(limit int) ([]state.Snapshot, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(`SELECT payload FROM snapshots ORDER BY updated_at DESC, seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []state.Snapshot
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap, err := state.ParseJSON([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes snapshots evaluated more than d ago and reports how many.
func (s *Store) DeleteOlderThan(d time.Duration) (int64, error) {
	cutoff := s.now().Add(-d).UnixMilli()
	res, err := s.db.Exec(`DELETE FROM snapshots WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old snapshots: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
