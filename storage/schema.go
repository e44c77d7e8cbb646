package storage

import "fmt"

const schemaBookmarks = `
CREATE TABLE IF NOT EXISTS bookmarks (
	path TEXT NOT NULL,
	user_id INTEGER NOT NULL DEFAULT 0,
	position_seconds INTEGER NOT NULL CHECK (position_seconds >= 0),
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (path, user_id)
);`

const schemaSystemState = `
CREATE TABLE IF NOT EXISTS system_state (
	key TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);`

func (s *Store) EnsureSchema() error {
	for _, stmt := range []string{schemaBookmarks, schemaSystemState} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("storage: ensure schema: %w", err)
		}
	}
	return nil
}
