// Package store persists taskctl's entities in a single SQLite
// database and applies every status change inside a transaction that
// runs the lifecycle validators from internal/state.
//
// # Concurrency
//
// The database is opened in WAL mode with a busy timeout, and a
// process-level file lock next to the database file prevents a second
// taskctl process from mutating the same store. Read paths do not take
// the lock.
//
// # Error Mapping
//
// Backend failures surface as StoreError with kind backend (exit code
// 3); constraint violations surface as kind conflict; missing rows
// surface as NotFoundError; short-id lookups that match several rows
// surface as AmbiguousError.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/hotter6163/taskctl/internal/errors"
	"github.com/hotter6163/taskctl/internal/id"
)

// Store wraps the SQLite database and the process lock.
type Store struct {
	db    *sql.DB
	lock  *flock.Flock
	path  string
	clock *id.Clock
}

// Open opens (creating if necessary) the database at path, acquires the
// process lock, applies pragmas, and ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.NewStoreError(errors.StoreBackend, "create database directory", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.NewStoreError(errors.StoreBackend, "acquire process lock", err)
	}
	if !locked {
		return nil, errors.NewStoreError(errors.StoreConflict, "acquire process lock", nil)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, errors.NewStoreError(errors.StoreBackend, "open database", err)
	}

	// Pragmas must run outside any transaction.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, errors.NewStoreError(errors.StoreBackend, "apply pragma", err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, errors.NewStoreError(errors.StoreBackend, "apply schema", err)
	}

	return &Store{db: db, lock: lock, path: path, clock: &id.Clock{}}, nil
}

// Close releases the database and the process lock.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
	if err != nil {
		return errors.NewStoreError(errors.StoreBackend, "close database", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// now returns the store's monotonic wall time, truncated for stable
// round-tripping through SQLite DATETIME columns.
func (s *Store) now() time.Time {
	return s.clock.Now().Truncate(time.Millisecond)
}

// -----------------------------------------------------------------------------
// Internal Helpers
// -----------------------------------------------------------------------------

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStoreError(errors.StoreBackend, op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.NewStoreError(errors.StoreBackend, op, err)
	}
	return nil
}

// mapError translates a database/sql failure into the store taxonomy.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isConstraintError(err) {
		return errors.NewStoreError(errors.StoreConflict, op, err)
	}
	return errors.NewStoreError(errors.StoreBackend, op, err)
}

func isConstraintError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "constraint failed") ||
		strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "FOREIGN KEY constraint")
}

// findByPrefix resolves a full or short id against a table. Exactly one
// match returns its full id; zero matches is NotFoundError; several
// matches is AmbiguousError listing the candidates.
func (s *Store) findByPrefix(ctx context.Context, table, entity, prefix string) (string, error) {
	if prefix == "" {
		return "", errors.NewNotFoundError(entity, prefix)
	}
	// LIKE metacharacters in the ref must match literally.
	norm := likeEscaper.Replace(strings.ToUpper(prefix))

	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM "+table+" WHERE id LIKE ? ESCAPE '\\' ORDER BY id LIMIT 10", norm+"%")
	if err != nil {
		return "", mapError("find "+entity, err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var full string
		if err := rows.Scan(&full); err != nil {
			return "", mapError("find "+entity, err)
		}
		matches = append(matches, full)
	}
	if err := rows.Err(); err != nil {
		return "", mapError("find "+entity, err)
	}

	switch len(matches) {
	case 0:
		return "", errors.NewNotFoundError(entity, prefix)
	case 1:
		return matches[0], nil
	default:
		return "", errors.NewAmbiguousError(entity, prefix, matches)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// querier abstracts *sql.DB and *sql.Tx for the row loaders so the
// transition paths can reuse them inside transactions.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
