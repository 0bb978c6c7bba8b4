// Package store is the durable event spool: a single SQLite file
// holding the outbound event queue plus the small persisted facts the
// coordinator needs across restarts (counters, dimensions, cached
// remote config, progression attempt counts).
//
// After initialization all writes happen on the scheduler's worker
// goroutine; the store itself does no locking beyond what SQLite
// provides.
package store

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/signalpipe/signalpipe-go/pkg/logging"
)

// Store manages the SQLite connection and schema.
type Store struct {
	db   *sql.DB
	path string
	log  *logging.Logger
}

// Open initializes the spool at the given file path, creating or
// repairing the schema and trimming the event table if the file has
// grown past the trim threshold. Trim runs only here, not continuously.
func Open(path string, log *logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	// WAL keeps readers (the inspect tool) from blocking the writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db, path: path, log: log}

	if err := s.ensureTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema setup failed: %w", err)
	}

	if err := s.trimEvents(); err != nil {
		// A failed trim is not fatal; the hard cap still protects us.
		log.Warningf("event table trim failed: %v", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the spool file path.
func (s *Store) Path() string {
	return s.path
}

var tableSchemas = []struct {
	name     string
	create   string
	probeCol string
}{
	{
		name: "events",
		create: `CREATE TABLE IF NOT EXISTS events (
			status TEXT NOT NULL,
			category TEXT NOT NULL,
			session_id TEXT NOT NULL,
			client_ts INTEGER NOT NULL,
			payload TEXT NOT NULL
		);`,
		probeCol: "status",
	},
	{
		name: "session",
		create: `CREATE TABLE IF NOT EXISTS session (
			session_id TEXT PRIMARY KEY NOT NULL,
			timestamp INTEGER NOT NULL,
			payload TEXT NOT NULL
		);`,
		probeCol: "session_id",
	},
	{
		name: "state",
		create: `CREATE TABLE IF NOT EXISTS state (
			key TEXT PRIMARY KEY NOT NULL,
			value TEXT
		);`,
		probeCol: "key",
	},
	{
		name: "progression",
		create: `CREATE TABLE IF NOT EXISTS progression (
			progression TEXT PRIMARY KEY NOT NULL,
			tries INTEGER NOT NULL
		);`,
		probeCol: "progression",
	},
}

// ensureTables creates the four tables and self-heals any that fail a
// probe select, which happens when a previous process died mid-write
// and corrupted a table.
func (s *Store) ensureTables() error {
	for _, t := range tableSchemas {
		if _, err := s.db.Exec(t.create); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.name, err)
		}

		probe := fmt.Sprintf("SELECT %s FROM %s LIMIT 1", t.probeCol, t.name)
		if _, err := s.db.Exec(probe); err != nil {
			s.log.Warningf("table %s corrupt, recreating: %v", t.name, err)
			if _, err := s.db.Exec("DROP TABLE " + t.name); err != nil {
				return fmt.Errorf("failed to drop corrupt table %s: %w", t.name, err)
			}
			if _, err := s.db.Exec(t.create); err != nil {
				return fmt.Errorf("failed to recreate table %s: %w", t.name, err)
			}
		}
	}
	return nil
}

// SizeBytes reports the spool file size on disk.
func (s *Store) SizeBytes() int64 {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// TooLargeForEvents reports whether the spool has passed the hard cap
// and most categories should be refused.
func (s *Store) TooLargeForEvents() bool {
	return s.SizeBytes() > MaxSpoolBytes
}

// trimEvents drops the oldest sessions' events when the file has grown
// past the trim threshold, then compacts the file.
func (s *Store) trimEvents() error {
	if s.SizeBytes() <= TrimThresholdBytes {
		return nil
	}
	s.log.Warningf("spool too large at open (%d bytes), deleting the oldest %d session(s)", s.SizeBytes(), TrimSessionCount)
	return s.trimOldestSessions()
}

func (s *Store) trimOldestSessions() error {
	rows, err := s.db.Query(
		`SELECT session_id FROM events GROUP BY session_id ORDER BY MAX(client_ts) ASC LIMIT ?`,
		TrimSessionCount,
	)
	if err != nil {
		return fmt.Errorf("failed to select oldest sessions: %w", err)
	}
	defer rows.Close()

	var sessionIDs []any
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan session id: %w", err)
		}
		sessionIDs = append(sessionIDs, id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate sessions: %w", err)
	}
	if len(sessionIDs) == 0 {
		return nil
	}

	placeholders := "?"
	for i := 1; i < len(sessionIDs); i++ {
		placeholders += ",?"
	}

	if _, err := s.db.Exec(
		fmt.Sprintf("DELETE FROM events WHERE session_id IN (%s)", placeholders),
		sessionIDs...,
	); err != nil {
		return fmt.Errorf("failed to delete oldest sessions: %w", err)
	}

	if _, err := s.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum: %w", err)
	}

	return nil
}
