// Package persistence provides a SQLite run journal: periodic colony
// snapshots and the outcome of every run. Nothing is ever restored from it.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/foobar-colony/internal/agents"
	"github.com/talgya/foobar-colony/internal/engine"
)

// DB wraps a SQLite connection for the run journal.
type DB struct {
	conn *sqlx.DB
}

// Run is one row of the runs table.
type Run struct {
	ID         string `db:"id" json:"id"`
	StartedAt  int64  `db:"started_at" json:"started_at"`   // Unix milliseconds
	FinishedAt *int64 `db:"finished_at" json:"finished_at"` // Nil while running
	Ticks      uint64 `db:"ticks" json:"ticks"`
	Agents     int    `db:"agents" json:"agents"`
	Won        bool   `db:"won" json:"won"`
	Error      string `db:"error" json:"error,omitempty"`
}

// SnapshotRow is one journaled snapshot.
type SnapshotRow struct {
	Tick      uint64                   `db:"tick" json:"tick"`
	Agents    int                      `db:"agents" json:"agents"`
	RawA      int                      `db:"raw_a" json:"raw_a"`
	RawB      int                      `db:"raw_b" json:"raw_b"`
	Processed int                      `db:"processed" json:"processed"`
	Currency  int                      `db:"currency" json:"currency"`
	InFlight  int                      `db:"in_flight" json:"in_flight"`
	StateJSON string                   `db:"states_json" json:"-"`
	ByState   map[agents.WorkState]int `db:"-" json:"by_state"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		ticks INTEGER NOT NULL DEFAULT 0,
		agents INTEGER NOT NULL DEFAULT 0,
		won INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		tick INTEGER NOT NULL,
		agents INTEGER NOT NULL,
		raw_a INTEGER NOT NULL,
		raw_b INTEGER NOT NULL,
		processed INTEGER NOT NULL,
		currency INTEGER NOT NULL,
		in_flight INTEGER NOT NULL,
		states_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_run_tick ON snapshots(run_id, tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// BeginRun registers a new run and returns its ID.
func (db *DB) BeginRun(started time.Time) (uuid.UUID, error) {
	id := uuid.New()
	_, err := db.conn.Exec(
		"INSERT INTO runs (id, started_at) VALUES (?, ?)",
		id.String(), started.UnixMilli(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin run: %w", err)
	}
	slog.Info("run started", "run", id)
	return id, nil
}

// RecordSnapshot appends one snapshot to the run's journal.
func (db *DB) RecordSnapshot(run uuid.UUID, s engine.Snapshot) error {
	statesJSON, err := json.Marshal(s.ByState)
	if err != nil {
		return fmt.Errorf("encode states: %w", err)
	}

	_, err = db.conn.Exec(`INSERT INTO snapshots
		(run_id, tick, agents, raw_a, raw_b, processed, currency, in_flight, states_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.String(), s.Tick, s.Agents,
		s.Ledger.RawA, s.Ledger.RawB, s.Ledger.Processed, s.Ledger.Currency,
		s.InFlight, string(statesJSON),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot %d: %w", s.Tick, err)
	}
	return nil
}

// FinishRun stores the outcome of a run. runErr may be nil.
func (db *DB) FinishRun(run uuid.UUID, finished time.Time, final engine.Snapshot, won bool, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	_, err := db.conn.Exec(
		"UPDATE runs SET finished_at = ?, ticks = ?, agents = ?, won = ?, error = ? WHERE id = ?",
		finished.UnixMilli(), final.Tick, final.Agents, won, msg, run.String(),
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	slog.Info("run recorded", "run", run, "ticks", final.Tick, "agents", final.Agents, "won", won)
	return nil
}

// History returns up to limit snapshots of a run, most recent first.
func (db *DB) History(run uuid.UUID, limit int) ([]SnapshotRow, error) {
	var rows []SnapshotRow
	err := db.conn.Select(&rows, `SELECT tick, agents, raw_a, raw_b, processed, currency, in_flight, states_json
		FROM snapshots WHERE run_id = ? ORDER BY tick DESC LIMIT ?`,
		run.String(), limit,
	)
	if err != nil {
		return nil, err
	}

	for i := range rows {
		if err := json.Unmarshal([]byte(rows[i].StateJSON), &rows[i].ByState); err != nil {
			return nil, fmt.Errorf("decode states at tick %d: %w", rows[i].Tick, err)
		}
	}
	return rows, nil
}

// Runs returns the most recent runs, newest first.
func (db *DB) Runs(limit int) ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs,
		"SELECT id, started_at, finished_at, ticks, agents, won, error FROM runs ORDER BY started_at DESC LIMIT ?",
		limit,
	)
	return runs, err
}
