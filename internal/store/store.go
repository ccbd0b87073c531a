// Package store is Apollo's catalog persistence layer: a single embedded
// SQLite database holding tracks, albums, and playlists behind a
// migration-versioned schema with a transactionally coherent FTS index.
//
// Grounded on the teacher's internal/db (WithTx helper) and
// internal/state/schema.go (migration shape), generalized to numbered
// steps and trigger-maintained FTS per the spec's invariants.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/apollo-music/apollo/internal/model"
)

// Store wraps a *sql.DB configured for Apollo's locking model: WAL
// journaling, transactions that begin IMMEDIATE so writers serialize,
// a busy timeout so concurrent readers never see SQLITE_BUSY, and
// foreign keys enforced.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the catalog database at path and
// applies any pending migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1 << 4)

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for packages (query) that need to run
// read-only SQL this package doesn't wrap directly.
func (s *Store) DB() *sql.DB { return s.db }

// WithTx runs fn inside a single write transaction, rolling back on any
// returned error. Ported from the teacher's internal/db.WithTx.
func (s *Store) WithTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return model.Wrap("store", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return model.Wrap("store", tx.Commit())
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func marshalGenres(g []string) string {
	if len(g) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(g)
	return string(b)
}

func unmarshalGenres(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
}

var _ execer = (*sql.DB)(nil)
var _ execer = (*sql.Tx)(nil)
