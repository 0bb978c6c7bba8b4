package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// InsertEvent spools one enriched event with status "new".
func (s *Store) InsertEvent(category Category, sessionID string, clientTS int64, payload json.RawMessage) error {
	_, err := s.db.Exec(
		`INSERT INTO events (status, category, session_id, client_ts, payload) VALUES (?, ?, ?, ?, ?)`,
		StatusNew, string(category), sessionID, clientTS, string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// CountNew returns the number of unclaimed events, optionally filtered
// by category.
func (s *Store) CountNew(category Category) (int, error) {
	query := `SELECT COUNT(*) FROM events WHERE status = ?`
	args := []any{StatusNew}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, string(category))
	}

	var count int
	if err := s.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count new events: %w", err)
	}
	return count, nil
}

// BatchCutoff returns the client_ts of the limit-th oldest unclaimed
// event. Claiming with that cutoff bounds a single flush to roughly
// limit events under heavy backlog while keeping whole timestamps
// together.
func (s *Store) BatchCutoff(category Category, limit int) (int64, error) {
	query := `SELECT client_ts FROM events WHERE status = ?`
	args := []any{StatusNew}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, string(category))
	}
	query += ` ORDER BY client_ts ASC LIMIT 1 OFFSET ?`
	args = append(args, limit-1)

	var cutoff int64
	err := s.db.QueryRow(query, args...).Scan(&cutoff)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to select batch cutoff: %w", err)
	}
	return cutoff, nil
}

// ClaimNew atomically rewrites unclaimed rows to the claim token. A
// cutoff of 0 claims everything; otherwise only rows with client_ts at
// or below the cutoff are taken. Returns the number of rows claimed.
func (s *Store) ClaimNew(token string, category Category, cutoff int64) (int64, error) {
	query := `UPDATE events SET status = ? WHERE status = ?`
	args := []any{token, StatusNew}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, string(category))
	}
	if cutoff > 0 {
		query += ` AND client_ts <= ?`
		args = append(args, cutoff)
	}

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to claim events: %w", err)
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return claimed, nil
}

// ClaimedEvents returns the rows owned by a claim token in insertion
// order.
func (s *Store) ClaimedEvents(token string) ([]EventRow, error) {
	rows, err := s.db.Query(
		`SELECT status, category, session_id, client_ts, payload FROM events WHERE status = ? ORDER BY rowid ASC`,
		token,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select claimed events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// DeleteClaimed settles a claim by deletion: the batch was delivered,
// or rejected in a way that retrying would repeat forever.
func (s *Store) DeleteClaimed(token string) error {
	if _, err := s.db.Exec(`DELETE FROM events WHERE status = ?`, token); err != nil {
		return fmt.Errorf("failed to delete claimed events: %w", err)
	}
	return nil
}

// RevertClaimed settles a claim by putting the rows back in the queue.
// This is the only retry path, taken when the collector never answered.
func (s *Store) RevertClaimed(token string) error {
	if _, err := s.db.Exec(`UPDATE events SET status = ? WHERE status = ?`, StatusNew, token); err != nil {
		return fmt.Errorf("failed to revert claimed events: %w", err)
	}
	return nil
}

// ResetClaims returns every claimed row to "new". Run before claiming
// so rows stranded by a crash mid-flush are not lost.
func (s *Store) ResetClaims() error {
	if _, err := s.db.Exec(`UPDATE events SET status = ? WHERE status != ?`, StatusNew, StatusNew); err != nil {
		return fmt.Errorf("failed to reset stale claims: %w", err)
	}
	return nil
}

// CountClaimed returns the number of rows currently owned by any claim
// token, for the inspection tooling.
func (s *Store) CountClaimed() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM events WHERE status != ?`, StatusNew).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count claimed events: %w", err)
	}
	return count, nil
}

// EventsByStatus returns rows matching a status, for the inspection
// tooling and tests.
func (s *Store) EventsByStatus(status string) ([]EventRow, error) {
	rows, err := s.db.Query(
		`SELECT status, category, session_id, client_ts, payload FROM events WHERE status = ? ORDER BY client_ts ASC, rowid ASC`,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]EventRow, error) {
	var out []EventRow
	for rows.Next() {
		var (
			ev       EventRow
			category string
			payload  string
		)
		if err := rows.Scan(&ev.Status, &category, &ev.SessionID, &ev.ClientTS, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		ev.Category = Category(category)
		ev.Payload = json.RawMessage(payload)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return out, nil
}
