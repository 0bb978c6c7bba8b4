package store

import "fmt"

// SetProgressionTries persists the attempt counter for a progression
// path. Zero tries deletes the row (a completed progression).
func (s *Store) SetProgressionTries(progression string, tries int) error {
	if tries <= 0 {
		if _, err := s.db.Exec(`DELETE FROM progression WHERE progression = ?`, progression); err != nil {
			return fmt.Errorf("failed to clear progression %s: %w", progression, err)
		}
		return nil
	}
	if _, err := s.db.Exec(
		`INSERT OR REPLACE INTO progression (progression, tries) VALUES (?, ?)`,
		progression, tries,
	); err != nil {
		return fmt.Errorf("failed to set progression %s: %w", progression, err)
	}
	return nil
}

// AllProgression loads every persisted attempt counter, done once at
// initialization.
func (s *Store) AllProgression() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT progression, tries FROM progression`)
	if err != nil {
		return nil, fmt.Errorf("failed to select progression: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var progression string
		var tries int
		if err := rows.Scan(&progression, &tries); err != nil {
			return nil, fmt.Errorf("failed to scan progression row: %w", err)
		}
		out[progression] = tries
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate progression: %w", err)
	}
	return out, nil
}
