package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrSessionNotFound is returned when stopping a session that does not
// exist or is already stopped.
var ErrSessionNotFound = errors.New("session not found or already stopped")

// Store is the SQLite journal database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the journal at path and brings its schema up to
// date.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Version returns the schema version recorded in the database.
func (s *Store) Version() (int, error) {
	return userVersion(s.db)
}

func (s *Store) insert(query string, args ...any) (int64, error) {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertRegistration records r, filling in its ID and, when zero, its
// time.
func (s *Store) InsertRegistration(r *Registration) (int64, error) {
	if r.AtNs == 0 {
		r.AtNs = s.now().UnixNano()
	}
	id, err := s.insert(
		`INSERT INTO registrations (profile_id, name, ok, at_ns) VALUES (?, ?, ?, ?)`,
		r.ProfileID, r.Name, r.OK, r.AtNs)
	if err != nil {
		return 0, fmt.Errorf("insert registration: %w", err)
	}
	r.ID = id
	return id, nil
}

// RecentRegistrations returns up to limit registrations, newest first.
func (s *Store) RecentRegistrations(limit int) ([]Registration, error) {
	rows, err := s.db.Query(
		`SELECT id, profile_id, name, ok, at_ns FROM registrations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query registrations: %w", err)
	}
	defer rows.Close()

	var out []Registration
	for rows.Next() {
		var r Registration
		if err := rows.Scan(&r.ID, &r.ProfileID, &r.Name, &r.OK, &r.AtNs); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StartSession opens a transmission session for profile.
func (s *Store) StartSession(profile string) (int64, error) {
	id, err := s.insert(`INSERT INTO sessions (profile, started_ns) VALUES (?, ?)`,
		profile, s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

// StopSession closes an open session with the number of frames served.
func (s *Store) StopSession(id int64, frames uint64) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET stopped_ns = ?, frames = ? WHERE id = ? AND stopped_ns IS NULL`,
		s.now().UnixNano(), int64(frames), id)
	if err != nil {
		return fmt.Errorf("stop session: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("stop session: %w", err)
	} else if n == 0 {
		return fmt.Errorf("session %d: %w", id, ErrSessionNotFound)
	}
	return nil
}

const sessionColumns = `id, profile, started_ns, stopped_ns, frames`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var (
		sess   Session
		frames int64
	)
	err := row.Scan(&sess.ID, &sess.Profile, &sess.StartedNs, &sess.StoppedNs, &frames)
	sess.Frames = uint64(frames)
	return sess, err
}

// GetSession returns the session with id, or nil when there is none.
func (s *Store) GetSession(id int64) (*Session, error) {
	sess, err := scanSession(s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// RecentSessions returns up to limit sessions, newest first.
func (s *Store) RecentSessions(limit int) ([]Session, error) {
	rows, err := s.db.Query(`SELECT `+sessionColumns+` FROM sessions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// CloseOpenSessions stops every session left open, for example by a
// daemon that exited without the host stopping transmission. It returns
// how many were closed.
func (s *Store) CloseOpenSessions() (int64, error) {
	res, err := s.db.Exec(`UPDATE sessions SET stopped_ns = ? WHERE stopped_ns IS NULL`,
		s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("close open sessions: %w", err)
	}
	return res.RowsAffected()
}
