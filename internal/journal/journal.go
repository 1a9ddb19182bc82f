// Package journal keeps a SQLite log of accepted strokes per session.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Entry is one accepted stroke.
type Entry struct {
	SessionID  int64         `json:"session_id"`
	At         time.Time     `json:"at"`
	Category   string        `json:"category"`
	Confidence float64       `json:"confidence"`
	Sample     uint64        `json:"sample"`
	Latency    time.Duration `json:"latency_ns"`
}

// CategoryTotal is an aggregated count.
type CategoryTotal struct {
	Category string `json:"category"`
	Count    uint64 `json:"count"`
}

// Journal wraps SQLite access.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies migrations.
func Open(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return j, nil
}

// dsn enables WAL and a busy timeout so a reader in another process does
// not fail writes with SQLITE_BUSY.
func dsn(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY,
			started_at TEXT NOT NULL,
			window_samples INTEGER NOT NULL,
			hop_samples INTEGER NOT NULL,
			labels TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS strokes (
			id INTEGER PRIMARY KEY,
			session_id INTEGER NOT NULL,
			at TEXT NOT NULL,
			category TEXT NOT NULL,
			confidence REAL NOT NULL,
			sample_index INTEGER NOT NULL,
			latency_ns INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_strokes_session ON strokes(session_id);`,
		`CREATE INDEX IF NOT EXISTS idx_strokes_at ON strokes(at);`,
	}
	for _, stmt := range stmts {
		if _, err := j.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// StartSession records the pipeline geometry of a new run and returns its id.
func (j *Journal) StartSession(ctx context.Context, startedAt time.Time, window, hop int, labels string) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO sessions (started_at, window_samples, hop_samples, labels) VALUES (?, ?, ?, ?)`,
		startedAt.UTC().Format(time.RFC3339Nano), window, hop, labels)
	if err != nil {
		return 0, fmt.Errorf("journal: start session: %w", err)
	}
	return res.LastInsertId()
}

// Record appends one accepted stroke.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO strokes (session_id, at, category, confidence, sample_index, latency_ns)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.SessionID,
		e.At.UTC().Format(time.RFC3339Nano),
		e.Category,
		e.Confidence,
		int64(e.Sample),
		int64(e.Latency),
	)
	if err != nil {
		return fmt.Errorf("journal: record %s: %w", e.Category, err)
	}
	return nil
}

// Recent returns up to limit strokes, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT session_id, at, category, confidence, sample_index, latency_ns
		 FROM strokes ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			at      string
			sample  int64
			latency int64
		)
		if err := rows.Scan(&e.SessionID, &at, &e.Category, &e.Confidence, &sample, &latency); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.At, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("journal: bad timestamp %q: %w", at, err)
		}
		e.Sample = uint64(sample)
		e.Latency = time.Duration(latency)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Totals aggregates stroke counts per category for one session, or for all
// sessions when sessionID is 0. Categories are sorted by name.
func (j *Journal) Totals(ctx context.Context, sessionID int64) ([]CategoryTotal, error) {
	query := `SELECT category, COUNT(*) FROM strokes`
	var args []any
	if sessionID != 0 {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` GROUP BY category ORDER BY category`

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: totals: %w", err)
	}
	defer rows.Close()

	var out []CategoryTotal
	for rows.Next() {
		var t CategoryTotal
		if err := rows.Scan(&t.Category, &t.Count); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
