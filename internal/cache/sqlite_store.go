package cache

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	perrors "git.home.luguber.info/inful/presto/internal/errors"
)

// SQLiteStore keeps entries in a single SQLite table. It is selected for
// cache files ending in .db/.sqlite and suits very large source trees.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// NewSQLiteStore opens (and if needed creates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, perrors.CacheIOError("open", dbPath, err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, perrors.CacheIOError("open", dbPath, fmt.Errorf("initialize schema: %w", err))
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS cache (
		path  TEXT PRIMARY KEY,
		stamp TEXT NOT NULL
	);`)
	return err
}

// Load reads all entries.
func (s *SQLiteStore) Load(ctx context.Context) (Entries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(ctx)
	if err != nil {
		return Entries{}, perrors.CacheIOError("load", s.path, err)
	}
	return entries, nil
}

func (s *SQLiteStore) load(ctx context.Context) (Entries, error) {
	entries := Entries{}
	rows, err := s.db.QueryContext(ctx, "SELECT path, stamp FROM cache")
	if err != nil {
		return entries, fmt.Errorf("query cache: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var path, stamp string
		if err := rows.Scan(&path, &stamp); err != nil {
			return Entries{}, fmt.Errorf("scan cache row: %w", err)
		}
		entries[path] = stamp
	}
	if err := rows.Err(); err != nil {
		return Entries{}, fmt.Errorf("iterate cache rows: %w", err)
	}
	return entries, nil
}

// Save replaces the stored entries in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, entries Entries) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.save(ctx, entries); err != nil {
		return perrors.CacheIOError("save", s.path, err)
	}
	return nil
}

func (s *SQLiteStore) save(ctx context.Context, entries Entries) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM cache"); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO cache (path, stamp) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("prepare cache insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range entries.Paths() {
		if _, err := stmt.ExecContext(ctx, p, entries[p]); err != nil {
			return fmt.Errorf("insert cache entry %s: %w", p, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cache: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
