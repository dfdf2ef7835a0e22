package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"folio-optimizer/internal/logger"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection backing the adapter-level bar cache.
// Only provider responses are cached here; computed allocations are never
// persisted.
type DB struct {
	sql *sql.DB
	ttl time.Duration
}

func dbPath() string {
	// Prefer working directory so the DB is stable across go run / go build.
	// Fall back to executable directory for deployed builds.
	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, "folio.db")
	}
	exe, _ := os.Executable()
	return filepath.Join(filepath.Dir(exe), "folio.db")
}

// Open opens (or creates) the SQLite database and runs migrations.
// Cached closes older than ttl are treated as misses.
func Open(ttl time.Duration) (*DB, error) {
	path := dbPath()
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	d := &DB{sql: sqlDB, ttl: ttl}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	logger.Success("DB", fmt.Sprintf("Opened %s", path))
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) migrate() error {
	version := 0
	d.sql.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := d.sql.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS daily_closes (
				ticker TEXT NOT NULL,
				date   TEXT NOT NULL,
				close  REAL NOT NULL,
				PRIMARY KEY (ticker, date)
			);

			CREATE TABLE IF NOT EXISTS daily_closes_meta (
				ticker     TEXT PRIMARY KEY,
				from_date  TEXT NOT NULL,
				updated_at TEXT NOT NULL
			);

			INSERT INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return err
		}
	}
	return nil
}
