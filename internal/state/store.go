// Package state persists file lifecycle status, parent/child relations,
// and the last-known hashlist in a single embedded SQLite database. The
// store is not internally synchronized — callers (the sync orchestrator)
// must serialize access, the same contract the teacher's database
// package leaves to its single-writer SQLite connection.
package state

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/torrents3/torrents3/internal/hashlist"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// FileStatus mirrors spec.md's FileStatus enum.
type FileStatus int

const (
	StatusUploading FileStatus = iota
	StatusReady
)

// Store is the durable bookkeeping table set described in spec.md §4.2.
// It is the only component allowed to touch the underlying *sql.DB.
type Store struct {
	db *sql.DB
}

// Open creates (or reuses) the SQLite file at path, runs schema
// migrations, and optionally resets (drops + recreates) all tables.
func Open(path string, reset bool) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if reset {
		if err := s.dropTables(); err != nil {
			db.Close()
			return nil, err
		}
	}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) dropTables() error {
	for _, table := range []string{"tracked_files", "piece_hashes", "hashlist_links", "schema_migrations"} {
		if _, err := s.db.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}

func (s *Store) runMigrations() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return err
		}
		applied[version] = true
	}
	rows.Close()

	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, filename := range names {
		version := strings.TrimSuffix(filename, ".sql")
		if applied[version] {
			continue
		}
		content, err := fs.ReadFile(migrationFiles, "migrations/"+filename)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %s: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %s: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", version, err)
		}
	}
	return nil
}

// AddUploading implements spec.md's add_uploading: it replaces any
// existing children of path wholesale, inserts path itself with
// parent=NULL, and rebinds any child already tracked under a
// different parent (Open Question (b): rebind, reset to UPLOADING).
func (s *Store) AddUploading(path string, children []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM tracked_files WHERE parent = ?", path); err != nil {
		return fmt.Errorf("add_uploading: delete existing children: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO tracked_files (path, parent, status) VALUES (?, NULL, ?)
		 ON CONFLICT(path) DO UPDATE SET parent=NULL, status=excluded.status`,
		path, int(StatusUploading),
	); err != nil {
		return fmt.Errorf("add_uploading: insert parent: %w", err)
	}

	for _, child := range children {
		if _, err := tx.Exec(
			`INSERT INTO tracked_files (path, parent, status) VALUES (?, ?, ?)
			 ON CONFLICT(path) DO UPDATE SET parent=excluded.parent, status=excluded.status`,
			child, path, int(StatusUploading),
		); err != nil {
			return fmt.Errorf("add_uploading: insert child %s: %w", child, err)
		}
	}

	return tx.Commit()
}

// MarkReady sets path's status to READY.
func (s *Store) MarkReady(path string) error {
	_, err := s.db.Exec("UPDATE tracked_files SET status = ? WHERE path = ?", int(StatusReady), path)
	return err
}

// GetStatus returns path's status, or ok=false if untracked.
func (s *Store) GetStatus(path string) (status FileStatus, ok bool, err error) {
	row := s.db.QueryRow("SELECT status FROM tracked_files WHERE path = ?", path)
	var raw int
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return FileStatus(raw), true, nil
}

// GetUploadingParent returns path's parent, but only if path's own
// status is still UPLOADING.
func (s *Store) GetUploadingParent(path string) (parent string, ok bool, err error) {
	row := s.db.QueryRow("SELECT parent, status FROM tracked_files WHERE path = ?", path)
	var rawParent sql.NullString
	var status int
	if err := row.Scan(&rawParent, &status); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	if status != int(StatusUploading) || !rawParent.Valid {
		return "", false, nil
	}
	return rawParent.String, true, nil
}

func (s *Store) filesByStatus(status FileStatus) (map[string][]string, error) {
	rows, err := s.db.Query("SELECT path, parent FROM tracked_files WHERE status = ?", int(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]string)
	for rows.Next() {
		var path string
		var parent sql.NullString
		if err := rows.Scan(&path, &parent); err != nil {
			return nil, err
		}
		if !parent.Valid {
			if _, exists := result[path]; !exists {
				result[path] = []string{}
			}
			continue
		}
		result[parent.String] = append(result[parent.String], path)
	}
	return result, rows.Err()
}

// GetUploadingFiles returns one entry per parent=null row (its key,
// empty or populated with its UPLOADING children).
func (s *Store) GetUploadingFiles() (map[string][]string, error) {
	return s.filesByStatus(StatusUploading)
}

// GetCompletedFiles mirrors GetUploadingFiles for READY rows.
func (s *Store) GetCompletedFiles() (map[string][]string, error) {
	return s.filesByStatus(StatusReady)
}

// SaveHashlist truncates piece_hashes/hashlist_links and reinserts the
// given hashlist in a single transaction, preserving piece order via
// an explicit sequence column.
func (s *Store) SaveHashlist(hl hashlist.Hashlist) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM piece_hashes"); err != nil {
		return fmt.Errorf("save_hashlist: truncate piece_hashes: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM hashlist_links"); err != nil {
		return fmt.Errorf("save_hashlist: truncate hashlist_links: %w", err)
	}

	insertHash, err := tx.Prepare("INSERT INTO piece_hashes (file, seq, hash) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer insertHash.Close()

	insertLink, err := tx.Prepare(
		`INSERT INTO hashlist_links (child, parent) VALUES (?, ?)
		 ON CONFLICT(child) DO UPDATE SET parent=excluded.parent`)
	if err != nil {
		return err
	}
	defer insertLink.Close()

	for file, record := range hl {
		for seq, h := range record.Hashes {
			if _, err := insertHash.Exec(file, seq, h); err != nil {
				return fmt.Errorf("save_hashlist: insert hash for %s: %w", file, err)
			}
		}
		for _, child := range record.LinkedFiles {
			if _, err := insertLink.Exec(child, file); err != nil {
				return fmt.Errorf("save_hashlist: insert link %s<-%s: %w", child, file, err)
			}
		}
	}

	return tx.Commit()
}

// GetHashlist reconstructs the persisted Hashlist, preserving each
// file's piece order via the seq column.
func (s *Store) GetHashlist() (hashlist.Hashlist, error) {
	hl := make(hashlist.Hashlist)

	rows, err := s.db.Query("SELECT file, hash FROM piece_hashes ORDER BY file, seq")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var file string
		var h []byte
		if err := rows.Scan(&file, &h); err != nil {
			rows.Close()
			return nil, err
		}
		rec := hl[file]
		rec.Hashes = append(rec.Hashes, h)
		hl[file] = rec
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	linkRows, err := s.db.Query("SELECT child, parent FROM hashlist_links")
	if err != nil {
		return nil, err
	}
	defer linkRows.Close()
	for linkRows.Next() {
		var child, parent string
		if err := linkRows.Scan(&child, &parent); err != nil {
			return nil, err
		}
		rec := hl[parent]
		rec.LinkedFiles = append(rec.LinkedFiles, child)
		hl[parent] = rec
		if _, ok := hl[child]; !ok {
			hl[child] = hashlist.Record{}
		}
	}
	return hl, linkRows.Err()
}
