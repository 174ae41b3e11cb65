// Package store persists the session engine snapshot and the session history
// in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sweeney/lockbox/internal/session"
	"github.com/sweeney/lockbox/internal/store/migrations"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a session record does not exist.
var ErrNotFound = errors.New("not found")

// Store provides SQLite-backed persistence.
type Store struct {
	db *sql.DB
}

// Open opens the database at path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer; snapshots are written every second.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveSnapshot replaces the stored engine snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, snap session.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO engine_snapshot (id, state, payload, updated_at) VALUES (1, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	state = excluded.state,
	payload = excluded.payload,
	updated_at = excluded.updated_at
`, snap.State.String(), string(payload), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored snapshot. It reports false when nothing has
// been stored yet.
func (s *Store) LoadSnapshot(ctx context.Context) (session.Snapshot, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM engine_snapshot WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Snapshot{}, false, nil
	}
	if err != nil {
		return session.Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}

	var snap session.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return session.Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}

// SessionRecord is one row of session history.
type SessionRecord struct {
	ID             string
	StartedAt      time.Time
	EndedAt        time.Time // zero while the session is open
	Outcome        session.Outcome
	LockDuration   uint32
	PenaltySeconds uint32
	PaybackSeconds uint32 // debt after the session ended
}

// BeginSession records the start of a session with an UNKNOWN outcome.
func (s *Store) BeginSession(ctx context.Context, rec SessionRecord) error {
	rec.ID = strings.TrimSpace(rec.ID)
	if rec.ID == "" {
		return errors.New("session id is required")
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO session_history (id, started_at, outcome, lock_duration)
VALUES (?, ?, ?, ?)
`, rec.ID, rec.StartedAt.UTC().UnixMilli(), string(session.OutcomeUnknown), rec.LockDuration)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	return nil
}

// EndSession closes an open session record.
func (s *Store) EndSession(ctx context.Context, id string, outcome session.Outcome, endedAt time.Time, penalty, payback uint32) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE session_history
SET ended_at = ?, outcome = ?, penalty_seconds = ?, payback_seconds = ?
WHERE id = ?
`, endedAt.UTC().UnixMilli(), string(outcome), penalty, payback, id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("end session %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListSessions returns up to limit records, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be greater than zero")
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, started_at, ended_at, outcome, lock_duration, penalty_seconds, payback_seconds
FROM session_history
ORDER BY started_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	records := make([]SessionRecord, 0, limit)
	for rows.Next() {
		var (
			rec       SessionRecord
			startedAt int64
			endedAt   sql.NullInt64
			outcome   string
		)
		if err := rows.Scan(&rec.ID, &startedAt, &endedAt, &outcome,
			&rec.LockDuration, &rec.PenaltySeconds, &rec.PaybackSeconds); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.StartedAt = time.UnixMilli(startedAt).UTC()
		if endedAt.Valid {
			rec.EndedAt = time.UnixMilli(endedAt.Int64).UTC()
		}
		rec.Outcome = session.Outcome(outcome)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return records, nil
}

// CloseOpenSessions marks every open session with outcome. Used at boot when
// a session was interrupted before its end was recorded.
func (s *Store) CloseOpenSessions(ctx context.Context, outcome session.Outcome, endedAt time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE session_history SET ended_at = ?, outcome = ? WHERE ended_at IS NULL
`, endedAt.UTC().UnixMilli(), string(outcome))
	if err != nil {
		return 0, fmt.Errorf("close open sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("close open sessions: %w", err)
	}
	return int(n), nil
}
