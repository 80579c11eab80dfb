// Package history persists executed commands across sessions. The in-memory
// execution log lives on the session context; this store is the durable copy
// replayed into new sessions at startup.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/defiterm/defiterm/internal/session"
)

type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS history_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			command_id TEXT NOT NULL,
			protocol TEXT NOT NULL,
			args TEXT NOT NULL,
			result TEXT NOT NULL,
			success INTEGER NOT NULL,
			error TEXT NOT NULL,
			executed_at INTEGER NOT NULL
		);`,
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init history schema: %w", err)
		}
	}

	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append persists one executed command. The file lock serializes writers when
// multiple terminal instances share a history file.
func (s *Store) Append(entry session.HistoryEntry) error {
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock history: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock history: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	args, err := json.Marshal(entry.Args)
	if err != nil {
		return fmt.Errorf("encode history args: %w", err)
	}
	// The full result payload is persisted so replayed entries carry their
	// tables and transaction requests, not just the kind tag.
	result, err := json.Marshal(entry.Result)
	if err != nil {
		return fmt.Errorf("encode history result: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO history_entries (command_id, protocol, args, result, success, error, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.CommandID, entry.Protocol, string(args), string(result), boolToInt(entry.Success), entry.Error, entry.Timestamp.UTC().Unix())
	if err != nil {
		return fmt.Errorf("history write: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(limit int) ([]session.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT command_id, protocol, args, result, success, error, executed_at
		FROM history_entries ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("history read: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []session.HistoryEntry{}
	for rows.Next() {
		var (
			entry      session.HistoryEntry
			argsJSON   string
			resultJSON string
			success    int
			executedAt int64
		)
		if err := rows.Scan(&entry.CommandID, &entry.Protocol, &argsJSON, &resultJSON, &success, &entry.Error, &executedAt); err != nil {
			return nil, fmt.Errorf("history scan: %w", err)
		}
		if err := json.Unmarshal([]byte(argsJSON), &entry.Args); err != nil {
			return nil, fmt.Errorf("decode history args: %w", err)
		}
		if err := json.Unmarshal([]byte(resultJSON), &entry.Result); err != nil {
			return nil, fmt.Errorf("decode history result: %w", err)
		}
		entry.Success = success != 0
		entry.Timestamp = time.Unix(executedAt, 0).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history rows: %w", err)
	}
	return entries, nil
}

// Clear deletes all persisted entries.
func (s *Store) Clear() error {
	if s == nil || s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("DELETE FROM history_entries"); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Trim deletes all but the newest keep entries.
func (s *Store) Trim(keep int) error {
	if s == nil || s.db == nil || keep <= 0 {
		return nil
	}
	_, err := s.db.Exec(`
		DELETE FROM history_entries WHERE id NOT IN (
			SELECT id FROM history_entries ORDER BY id DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("trim history: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
