package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite keeps configuration bytes in a single-table database so settings
// survive restarts. Missing addresses read as zero.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("store: sqlite path is required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS config_bytes (
		addr INTEGER PRIMARY KEY,
		value INTEGER NOT NULL
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("store: init schema: %w", err)
	}
	return nil
}

func (s *SQLite) ReadAt(p []byte, off int64) (int, error) {
	if err := checkRange(len(p), off); err != nil {
		return 0, err
	}
	clear(p)
	rows, err := s.db.Query(
		"SELECT addr, value FROM config_bytes WHERE addr >= ? AND addr < ?",
		off, off+int64(len(p)),
	)
	if err != nil {
		return 0, fmt.Errorf("store: read: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var addr int64
		var value int
		if err := rows.Scan(&addr, &value); err != nil {
			return 0, fmt.Errorf("store: scan: %w", err)
		}
		p[addr-off] = byte(value)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("store: read: %w", err)
	}
	return len(p), nil
}

func (s *SQLite) WriteAt(p []byte, off int64) (int, error) {
	if err := checkRange(len(p), off); err != nil {
		return 0, err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO config_bytes (addr, value) VALUES (?, ?)
		ON CONFLICT(addr) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return 0, fmt.Errorf("store: prepare: %w", err)
	}
	defer stmt.Close()

	for i, b := range p {
		if _, err := stmt.Exec(off+int64(i), int(b)); err != nil {
			return 0, fmt.Errorf("store: write %d: %w", off+int64(i), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}
	return len(p), nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
