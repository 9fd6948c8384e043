package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"receiptgen/internal/logging"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a key or row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the receiptgen SQLite database: a key/value table for settings,
// revoked session ids and Telegram users seen at login.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
	log  *logging.Logger
}

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database.
func Open(path string) (*Store, error) {
	memory := path == ":memory:" || strings.HasPrefix(path, "file::memory:")
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: in-memory databases are per connection, and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, now: time.Now, log: logging.Get(logging.CategoryStore)}
	if err := s.initialize(memory); err != nil {
		db.Close()
		return nil, err
	}
	s.log.Debug("opened store at %s", path)
	return s, nil
}

func (s *Store) initialize(memory bool) error {
	pragmas := []string{"PRAGMA busy_timeout = 5000", "PRAGMA foreign_keys = ON"}
	if !memory {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	res, err := RunMigrations(s.db)
	if err != nil {
		return err
	}
	s.log.Debug("schema at v%d", res.ToVersion)
	return nil
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
