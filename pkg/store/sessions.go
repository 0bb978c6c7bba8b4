package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// UpsertHeartbeat records the live session's latest annotations. The
// payload carries everything needed to synthesize a session_end event
// if the process dies before one is written.
func (s *Store) UpsertHeartbeat(sessionID string, startTS int64, payload json.RawMessage) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO session (session_id, timestamp, payload) VALUES (?, ?, ?)`,
		sessionID, startTS, string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session heartbeat: %w", err)
	}
	return nil
}

// DeleteHeartbeat removes a session's heartbeat row, done when its
// session_end event is spooled.
func (s *Store) DeleteHeartbeat(sessionID string) error {
	if _, err := s.db.Exec(`DELETE FROM session WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session heartbeat: %w", err)
	}
	return nil
}

// StaleSessions returns heartbeat rows belonging to sessions other than
// the current one. Each is a session that never got a session_end.
func (s *Store) StaleSessions(currentSessionID string) ([]SessionRow, error) {
	rows, err := s.db.Query(
		`SELECT session_id, timestamp, payload FROM session WHERE session_id != ?`,
		currentSessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select stale sessions: %w", err)
	}
	defer rows.Close()

	return scanSessions(rows)
}

// Sessions returns every heartbeat row, for the inspection tooling.
func (s *Store) Sessions() ([]SessionRow, error) {
	rows, err := s.db.Query(`SELECT session_id, timestamp, payload FROM session`)
	if err != nil {
		return nil, fmt.Errorf("failed to select sessions: %w", err)
	}
	defer rows.Close()

	return scanSessions(rows)
}

func scanSessions(rows *sql.Rows) ([]SessionRow, error) {
	var out []SessionRow
	for rows.Next() {
		var (
			sr      SessionRow
			payload string
		)
		if err := rows.Scan(&sr.SessionID, &sr.StartTS, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sr.Payload = json.RawMessage(payload)
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return out, nil
}
