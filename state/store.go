// Package state persists setup progress and service preferences across
// restarts in a local SQLite database.
package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"voxup/engine"
	"voxup/pipeline"
)

// Snapshot is everything voxup remembers between runs. Unknown fields in
// a stored payload are ignored so older snapshots keep loading after
// upgrades.
type Snapshot struct {
	InstallDir string `json:"install_dir,omitempty"`
	ModelDir   string `json:"model_dir,omitempty"`
	Region     string `json:"region,omitempty"`

	// Steps maps step IDs to their last known outcome.
	Steps map[string]pipeline.Outcome `json:"steps,omitempty"`

	Service ServiceDefaults `json:"service"`

	LastRunID     string `json:"last_run_id,omitempty"`
	LastRunStatus string `json:"last_run_status,omitempty"`

	ServiceState   string `json:"service_state,omitempty"`
	ServiceMessage string `json:"service_message,omitempty"`

	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// ServiceDefaults are the operator's launch preferences.
type ServiceDefaults struct {
	Host      string           `json:"host,omitempty"`
	Port      int              `json:"port,omitempty"`
	Device    engine.Device    `json:"device,omitempty"`
	Precision engine.Precision `json:"precision,omitempty"`
}

// Outcome returns the stored outcome for a step, or a zero Outcome.
func (s Snapshot) Outcome(stepID string) (pipeline.Outcome, bool) {
	out, ok := s.Steps[stepID]
	return out, ok
}

// clone returns a copy whose Steps map is independent of the receiver's,
// so readers never alias a map a concurrent Update is writing.
func (s Snapshot) clone() Snapshot {
	out := s
	out.Steps = maps.Clone(s.Steps)
	return out
}

// snapshotKey is the single row the store keeps. The schema allows more
// keys so future tools can share the database.
const snapshotKey = "wizard"

// Store reads and writes snapshots.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	key TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize state schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load returns the stored snapshot. A missing or unreadable snapshot is
// reported as absent, never as an error, so a corrupt database degrades
// to a fresh start instead of blocking the tool.
func (s *Store) Load() (Snapshot, bool, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM snapshots WHERE key = ?`, snapshotKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		slog.Warn("Discarding unreadable snapshot.", "err", err)
		return Snapshot{}, false, nil
	}
	return snap, true, nil
}

// Save writes the snapshot, stamping UpdatedAt.
func (s *Store) Save(snap Snapshot) error {
	snap.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	const upsert = `
INSERT INTO snapshots (key, payload, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	payload = excluded.payload,
	updated_at = excluded.updated_at`
	if _, err := s.db.Exec(upsert, snapshotKey, string(payload), snap.UpdatedAt.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
