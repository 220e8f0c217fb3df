package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pairplay/duet/internal/match"
	"github.com/pairplay/duet/internal/puzzle"
)

// timeFormat is fixed width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLite keeps each match as a JSONB document next to the columns it is
// queried by. Schema comes from package migrations.
type SQLite struct {
	db *sql.DB

	// writeMu serializes read-modify-write transactions within the process;
	// the version check catches writers in other processes.
	writeMu sync.Mutex
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) Create(ctx context.Context, m *match.Match) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO matches (id, pairing_id, kind, puzzle_id, status, version, created_at, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?, jsonb(?))`,
		m.ID, m.PairingID, string(m.Kind), m.PuzzleID, string(m.Status), m.Version,
		m.CreatedAt.UTC().Format(timeFormat), string(data),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return match.ErrConflict
	}
	return err
}

func (s *SQLite) Get(ctx context.Context, id string) (*match.Match, error) {
	return scanMatch(s.db.QueryRowContext(ctx,
		`SELECT json(data), version FROM matches WHERE id = ?`, id,
	))
}

func (s *SQLite) Active(ctx context.Context, pairingID string, kind puzzle.Kind) (*match.Match, error) {
	return scanMatch(s.db.QueryRowContext(ctx,
		`SELECT json(data), version FROM matches
		 WHERE pairing_id = ? AND kind = ? AND status = 'active'`,
		pairingID, string(kind),
	))
}

// Update loads the match, applies fn, and saves it in one transaction. The
// write only lands if the version is unchanged since the read.
func (s *SQLite) Update(ctx context.Context, id string, fn func(*match.Match) error) (*match.Match, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, busyAsConflict(err)
	}
	defer tx.Rollback()

	m, err := scanMatch(tx.QueryRowContext(ctx,
		`SELECT json(data), version FROM matches WHERE id = ?`, id,
	))
	if err != nil {
		return nil, busyAsConflict(err)
	}
	read := m.Version
	wasActive := m.Status == match.StatusActive

	if err := fn(m); err != nil {
		return nil, err
	}

	m.Version = read + 1
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var completedAt *string
	if m.CompletedAt != nil {
		v := m.CompletedAt.UTC().Format(timeFormat)
		completedAt = &v
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE matches SET status = ?, version = ?, completed_at = ?, data = jsonb(?)
		 WHERE id = ? AND version = ?`,
		string(m.Status), m.Version, completedAt, string(data), id, read,
	)
	if err != nil {
		return nil, busyAsConflict(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, match.ErrConflict
	}

	if wasActive {
		if ev, ok := match.NewCompletionEvent(m); ok {
			payload, err := json.Marshal(ev)
			if err != nil {
				return nil, err
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO completion_outbox (match_id, payload, created_at) VALUES (?, ?, ?)
				 ON CONFLICT(match_id) DO NOTHING`,
				m.ID, string(payload), time.Now().UTC().Format(timeFormat),
			)
			if err != nil {
				return nil, fmt.Errorf("recording completion: %w", busyAsConflict(err))
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, busyAsConflict(err)
	}
	return m, nil
}

// busyAsConflict reports a lock lost to a writer in another process as
// ErrConflict. A deferred transaction that read a stale WAL snapshot cannot
// wait its way to the write lock, so the caller has to reload and retry.
func busyAsConflict(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, s := range []string{"SQLITE_BUSY", "SQLITE_LOCKED", "database is locked", "database table is locked"} {
		if strings.Contains(msg, s) {
			return fmt.Errorf("%w: %v", match.ErrConflict, err)
		}
	}
	return err
}

// Completions lists the pairing's finished matches of kind, oldest first.
func (s *SQLite) Completions(ctx context.Context, pairingID string, kind puzzle.Kind) ([]puzzle.Completion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT puzzle_id, completed_at FROM matches
		 WHERE pairing_id = ? AND kind = ? AND status = 'completed'
		 ORDER BY completed_at`,
		pairingID, string(kind),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []puzzle.Completion
	for rows.Next() {
		var id, at string
		if err := rows.Scan(&id, &at); err != nil {
			return nil, err
		}
		t, err := time.Parse(timeFormat, at)
		if err != nil {
			return nil, fmt.Errorf("match on %s: bad completed_at %q", id, at)
		}
		out = append(out, puzzle.Completion{PuzzleID: id, CompletedAt: t})
	}
	return out, rows.Err()
}

// Pending returns undelivered completion events, oldest first.
func (s *SQLite) Pending(ctx context.Context, limit int) ([]match.OutboxEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload, created_at, attempts, COALESCE(last_error, '') FROM completion_outbox
		 WHERE delivered_at IS NULL
		 ORDER BY created_at, match_id
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []match.OutboxEntry
	for rows.Next() {
		var payload, created string
		var e match.OutboxEntry
		if err := rows.Scan(&payload, &created, &e.Attempts, &e.LastError); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &e.Event); err != nil {
			return nil, fmt.Errorf("decoding outbox payload: %w", err)
		}
		e.CreatedAt, _ = time.Parse(timeFormat, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLite) MarkDelivered(ctx context.Context, matchID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE completion_outbox SET delivered_at = ?, last_error = NULL WHERE match_id = ?`,
		time.Now().UTC().Format(timeFormat), matchID,
	)
	return err
}

func (s *SQLite) MarkFailed(ctx context.Context, matchID string, cause error) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE completion_outbox SET attempts = attempts + 1, last_error = ? WHERE match_id = ?`,
		cause.Error(), matchID,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner) (*match.Match, error) {
	var data string
	var version int64
	err := row.Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, match.ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}
	var m match.Match
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("decoding match: %w", err)
	}
	m.Version = version
	return &m, nil
}
