// Package archive persists users and delivered scraper packages in Postgres.
// The archive is optional at runtime; live session state never depends on it.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/mohammad-safakhou/webscout/internal/session"
)

// Store wraps the archive database.
type Store struct {
	db *sql.DB
}

// NewWithDSN connects and pings the archive database.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing database handle.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// CreateUser inserts a new account with a bcrypt password hash.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, now())`,
		uuid.NewString(), email, passwordHash)
	return err
}

// GetUserByEmail returns the user id and password hash for a login attempt.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (string, string, error) {
	var id, hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email = $1`, email).Scan(&id, &hash)
	if err != nil {
		return "", "", err
	}
	return id, hash, nil
}

// SavePackage stores a delivered scraper package with its descriptor.
func (s *Store) SavePackage(ctx context.Context, sessionID, fileName string, descriptor interface{}, payload []byte) error {
	desc, err := json.Marshal(descriptor)
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO packages (id, session_id, file_name, descriptor, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, now())`,
		uuid.NewString(), sessionID, fileName, desc, payload)
	return err
}

// ArchiveSession stores a terminal session snapshot for later inspection.
func (s *Store) ArchiveSession(ctx context.Context, snap session.Session) error {
	data, err := json.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", snap.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_archive (id, target_url, status, snapshot, archived_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, snapshot = EXCLUDED.snapshot, archived_at = now()`,
		snap.ID, snap.TargetURL, string(snap.Status), data)
	return err
}

// ListArchivedSessions returns id/status/url rows ordered by archive time.
func (s *Store) ListArchivedSessions(ctx context.Context) ([]ArchivedSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, target_url, status, archived_at FROM session_archive ORDER BY archived_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ArchivedSession
	for rows.Next() {
		var a ArchivedSession
		if err := rows.Scan(&a.ID, &a.TargetURL, &a.Status, &a.ArchivedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ArchivedSession is one row of the archived sessions listing.
type ArchivedSession struct {
	ID         string    `json:"id"`
	TargetURL  string    `json:"target_url"`
	Status     string    `json:"status"`
	ArchivedAt time.Time `json:"archived_at"`
}
