package store

import (
	"database/sql"
	"fmt"
)

// SetState persists a small key/value fact. An empty value deletes the
// key, mirroring how callers clear counters and dimensions.
func (s *Store) SetState(key, value string) error {
	if value == "" {
		if _, err := s.db.Exec(`DELETE FROM state WHERE key = ?`, key); err != nil {
			return fmt.Errorf("failed to delete state key %s: %w", key, err)
		}
		return nil
	}
	if _, err := s.db.Exec(`INSERT OR REPLACE INTO state (key, value) VALUES (?, ?)`, key, value); err != nil {
		return fmt.Errorf("failed to set state key %s: %w", key, err)
	}
	return nil
}

// GetState returns the value for a key, or "" when unset.
func (s *Store) GetState(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get state key %s: %w", key, err)
	}
	return value, nil
}

// AllState loads the whole state table, done once at initialization.
func (s *Store) AllState() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM state`)
	if err != nil {
		return nil, fmt.Errorf("failed to select state: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan state row: %w", err)
		}
		out[key] = value.String
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate state: %w", err)
	}
	return out, nil
}
