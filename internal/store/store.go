// Package store persists run state and events in a local SQLite
// database, so `foreman status` and a restarted TUI/web front-end can
// inspect a run without keeping the scheduling process alive.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/foreman-run/foreman/internal/events"
)

// Run is one scheduler execution's persisted metadata.
type Run struct {
	ID           string
	Label        string
	TargetBranch string
	WindowSize   int
	StartedAt    time.Time
	FinishedAt   sql.NullTime
	Status       string // "running", "completed", "failed"
}

// SlotRecord is one item's persisted attempt-pipeline outcome for a run.
type SlotRecord struct {
	RunID      string
	ItemID     string
	Number     int
	Title      string
	Domain     string
	Status     string
	Attempts   int
	Branch     string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	LastError  string
}

// Store wraps a SQLite connection holding run/slot/event history.
type Store struct {
	db *sql.DB
}

// Open creates (if necessary) and migrates the database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// SQLite allows only one writer at a time; the scheduler's event
	// volume never needs more than a single open connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			target_branch TEXT NOT NULL,
			window_size INTEGER NOT NULL,
			started_at DATETIME NOT NULL,
			finished_at DATETIME,
			status TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS slots (
			run_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			number INTEGER NOT NULL,
			title TEXT,
			domain TEXT,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			branch TEXT,
			started_at DATETIME,
			finished_at DATETIME,
			last_error TEXT,
			PRIMARY KEY (run_id, item_id),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			type TEXT NOT NULL,
			item_id TEXT,
			slot_index INTEGER,
			payload TEXT,
			error TEXT,
			occurred_at DATETIME NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_run ON slots(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_occurred ON events(occurred_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("store: migration failed: %w", err)
		}
	}
	return nil
}

// NewRun inserts a new run row with a freshly generated ID and returns it.
func (s *Store) NewRun(label, targetBranch string, windowSize int) (*Run, error) {
	run := &Run{
		ID:           uuid.NewString(),
		Label:        label,
		TargetBranch: targetBranch,
		WindowSize:   windowSize,
		StartedAt:    time.Now(),
		Status:       "running",
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (id, label, target_branch, window_size, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.Label, run.TargetBranch, run.WindowSize, run.StartedAt, run.Status)
	if err != nil {
		return nil, fmt.Errorf("store: insert run: %w", err)
	}
	return run, nil
}

// FinishRun marks a run terminal with the given status.
func (s *Store) FinishRun(runID, status string) error {
	_, err := s.db.Exec(`
		UPDATE runs SET status = ?, finished_at = ? WHERE id = ?
	`, status, time.Now(), runID)
	if err != nil {
		return fmt.Errorf("store: finish run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID, or nil if it doesn't exist.
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, label, target_branch, window_size, started_at, finished_at, status
		FROM runs WHERE id = ?
	`, runID)
	var run Run
	if err := row.Scan(&run.ID, &run.Label, &run.TargetBranch, &run.WindowSize, &run.StartedAt, &run.FinishedAt, &run.Status); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	return &run, nil
}

// LatestRun returns the most recently started run, or nil if the store
// has none yet.
func (s *Store) LatestRun() (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, label, target_branch, window_size, started_at, finished_at, status
		FROM runs ORDER BY started_at DESC LIMIT 1
	`)
	var run Run
	if err := row.Scan(&run.ID, &run.Label, &run.TargetBranch, &run.WindowSize, &run.StartedAt, &run.FinishedAt, &run.Status); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: latest run: %w", err)
	}
	return &run, nil
}

// LatestRunForLabel returns the most recently started run with the given
// label, or nil if the store has none, for `foreman status --label`.
func (s *Store) LatestRunForLabel(label string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, label, target_branch, window_size, started_at, finished_at, status
		FROM runs WHERE label = ? ORDER BY started_at DESC LIMIT 1
	`, label)
	var run Run
	if err := row.Scan(&run.ID, &run.Label, &run.TargetBranch, &run.WindowSize, &run.StartedAt, &run.FinishedAt, &run.Status); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: latest run for label: %w", err)
	}
	return &run, nil
}

// UpsertSlot writes the current state of one item's slot for a run.
func (s *Store) UpsertSlot(rec *SlotRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO slots (run_id, item_id, number, title, domain, status, attempts, branch, started_at, finished_at, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, item_id) DO UPDATE SET
			status = excluded.status,
			attempts = excluded.attempts,
			branch = excluded.branch,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			last_error = excluded.last_error
	`, rec.RunID, rec.ItemID, rec.Number, rec.Title, rec.Domain, rec.Status, rec.Attempts, rec.Branch, rec.StartedAt, rec.FinishedAt, rec.LastError)
	if err != nil {
		return fmt.Errorf("store: upsert slot: %w", err)
	}
	return nil
}

// ListSlots returns every slot recorded for a run.
func (s *Store) ListSlots(runID string) ([]*SlotRecord, error) {
	rows, err := s.db.Query(`
		SELECT run_id, item_id, number, title, domain, status, attempts, branch, started_at, finished_at, last_error
		FROM slots WHERE run_id = ? ORDER BY number
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: list slots: %w", err)
	}
	defer rows.Close()

	var out []*SlotRecord
	for rows.Next() {
		var rec SlotRecord
		if err := rows.Scan(&rec.RunID, &rec.ItemID, &rec.Number, &rec.Title, &rec.Domain, &rec.Status, &rec.Attempts, &rec.Branch, &rec.StartedAt, &rec.FinishedAt, &rec.LastError); err != nil {
			return nil, fmt.Errorf("store: scan slot: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// RecordEvent persists one event for later inspection.
func (s *Store) RecordEvent(e events.Event) error {
	var payload string
	if e.Payload != nil {
		data, err := json.Marshal(e.Payload)
		if err == nil {
			payload = string(data)
		}
	}
	var slotIndex sql.NullInt64
	if e.Slot != nil {
		slotIndex = sql.NullInt64{Int64: int64(*e.Slot), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO events (id, run_id, type, item_id, slot_index, payload, error, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), e.RunID, string(e.Type), e.Item, slotIndex, payload, e.Error, e.Time)
	if err != nil {
		return fmt.Errorf("store: record event: %w", err)
	}
	return nil
}

// Subscriber returns an events.Handler that persists every event it
// receives, for wiring directly into events.Bus.Subscribe.
func (s *Store) Subscriber() events.Handler {
	return func(e events.Event) {
		_ = s.RecordEvent(e)
	}
}

// ListEvents returns every event recorded for a run, oldest first.
func (s *Store) ListEvents(runID string) ([]events.Event, error) {
	rows, err := s.db.Query(`
		SELECT type, item_id, slot_index, payload, error, occurred_at
		FROM events WHERE run_id = ? ORDER BY occurred_at ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var typ, itemID, payload, errStr string
		var slotIndex sql.NullInt64
		var occurredAt time.Time
		if err := rows.Scan(&typ, &itemID, &slotIndex, &payload, &errStr, &occurredAt); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		e := events.Event{
			Time:  occurredAt,
			Type:  events.EventType(typ),
			RunID: runID,
			Item:  itemID,
			Error: errStr,
		}
		if slotIndex.Valid {
			slot := int(slotIndex.Int64)
			e.Slot = &slot
		}
		if payload != "" {
			var v any
			if json.Unmarshal([]byte(payload), &v) == nil {
				e.Payload = v
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
