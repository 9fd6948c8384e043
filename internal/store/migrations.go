package store

import (
	"database/sql"
	"fmt"
	"time"

	"receiptgen/internal/logging"
)

// Schema versions:
// v1: kv table for settings
// v2: revoked_sessions for logged out tokens
// v3: known_users for username login lookups
const CurrentSchemaVersion = 3

// Migration is one forward schema step.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []Migration{
	{1, "settings key/value table", `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`},
	{2, "revoked session ids", `
	CREATE TABLE IF NOT EXISTS revoked_sessions (
		id TEXT PRIMARY KEY,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_revoked_expires ON revoked_sessions(expires_at);
	`},
	{3, "telegram users seen at login", `
	CREATE TABLE IF NOT EXISTS known_users (
		id INTEGER PRIMARY KEY,
		username TEXT,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		last_login DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_known_users_username ON known_users(lower(username));
	`},
}

// MigrationResult holds the result of RunMigrations.
type MigrationResult struct {
	FromVersion   int
	ToVersion     int
	MigrationsRun int
	Duration      time.Duration
}

// RunMigrations applies every migration newer than the recorded version,
// each in its own transaction.
func RunMigrations(db *sql.DB) (MigrationResult, error) {
	start := time.Now()
	log := logging.Get(logging.CategoryStore)

	if err := ensureVersionTable(db); err != nil {
		return MigrationResult{}, err
	}
	from, err := GetSchemaVersion(db)
	if err != nil {
		return MigrationResult{}, err
	}
	res := MigrationResult{FromVersion: from, ToVersion: from}
	if from > CurrentSchemaVersion {
		return res, fmt.Errorf("database schema version %d is newer than supported version %d", from, CurrentSchemaVersion)
	}

	for _, m := range migrations {
		if m.Version <= from {
			continue
		}
		log.Debug("applying migration v%d: %s", m.Version, m.Description)
		if err := apply(db, m); err != nil {
			return res, fmt.Errorf("migration v%d (%s) failed: %w", m.Version, m.Description, err)
		}
		res.ToVersion = m.Version
		res.MigrationsRun++
	}

	res.Duration = time.Since(start)
	if res.MigrationsRun > 0 {
		log.Info("schema migrated from v%d to v%d in %s", res.FromVersion, res.ToVersion, res.Duration.Round(time.Millisecond))
	}
	return res, nil
}

func apply(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(m.SQL); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_versions (version, description, applied_at) VALUES (?, ?, ?)",
		m.Version, m.Description, time.Now().UTC(),
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit()
}

func ensureVersionTable(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_versions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version INTEGER NOT NULL,
		applied_at DATETIME NOT NULL,
		description TEXT
	)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_versions table: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the highest applied schema version, or 0 for a
// fresh database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var version sql.NullInt64
	if err := db.QueryRow("SELECT MAX(version) FROM schema_versions").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}
