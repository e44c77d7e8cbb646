package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists bookmarks and the ContentDirectory SystemUpdateID.
type Store struct {
	db *sql.DB
}

type Options struct {
	BusyTimeout time.Duration
}

func Open(dsn string, options Options) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if dsn == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		fmt.Sprintf("PRAGMA busy_timeout=%d", int(options.BusyTimeout/time.Millisecond)),
	}
	if dsn != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("storage: %s: %w", p, err)
		}
	}

	store := &Store{db: db}
	if err := store.EnsureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetBookmark records the resume position of path for a renderer user.
func (s *Store) SetBookmark(ctx context.Context, path string, userID int, position time.Duration) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage: missing database connection")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookmarks (path, user_id, position_seconds, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path, user_id) DO UPDATE SET
			position_seconds=excluded.position_seconds,
			updated_at=excluded.updated_at
	`, path, userID, int64(position/time.Second), time.Now().Unix())
	return err
}

// Bookmark returns the stored position, and false when there is none.
func (s *Store) Bookmark(ctx context.Context, path string, userID int) (time.Duration, bool, error) {
	if s == nil || s.db == nil {
		return 0, false, fmt.Errorf("storage: missing database connection")
	}
	var secs int64
	err := s.db.QueryRowContext(ctx,
		`SELECT position_seconds FROM bookmarks WHERE path = ? AND user_id = ?`,
		path, userID).Scan(&secs)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return time.Duration(secs) * time.Second, true, nil
}

// LoadUpdateID returns the last saved SystemUpdateID, or 0.
func (s *Store) LoadUpdateID(ctx context.Context) (uint64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("storage: missing database connection")
	}
	var v int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM system_state WHERE key = 'system_update_id'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func (s *Store) SaveUpdateID(ctx context.Context, id uint64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage: missing database connection")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_state (key, value) VALUES ('system_update_id', ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value
		WHERE excluded.value > system_state.value
	`, int64(id))
	return err
}
