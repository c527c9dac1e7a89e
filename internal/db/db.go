package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/bodypress/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 4

// Init initializes the SQLite database at baseDir/bodypress.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.bodypress.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	// Create exports subdirectory
	exportsDir := filepath.Join(baseDir, "exports")
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create exports directory: %w", err)
	}
	_ = os.Chmod(exportsDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, "bodypress.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
//
// Every step is re-appliable: tables use IF NOT EXISTS and column additions
// go through addColumn, so a crash between an ALTER and the version bump is
// recovered on the next start.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: base tables
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS captures (
		  id               TEXT PRIMARY KEY,
		  timestamp        INTEGER NOT NULL,
		  is_processed     INTEGER NOT NULL DEFAULT 0,
		  user_note        TEXT,
		  user_mood        TEXT,
		  tags             TEXT,
		  health_data      TEXT,
		  environment_data TEXT,
		  location_data    TEXT,
		  calendar_events  TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_captures_timestamp
		ON captures(timestamp DESC);

		CREATE INDEX IF NOT EXISTS idx_captures_unprocessed
		ON captures(timestamp)
		WHERE is_processed = 0;

		CREATE TABLE IF NOT EXISTS settings (
		  key   TEXT PRIMARY KEY,
		  value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS journal_entries (
		  date          TEXT PRIMARY KEY,
		  headline      TEXT NOT NULL,
		  summary       TEXT NOT NULL,
		  body          TEXT NOT NULL,
		  mood          TEXT NOT NULL,
		  mood_emoji    TEXT NOT NULL,
		  tags          TEXT,
		  user_note     TEXT,
		  user_mood     TEXT,
		  snapshot      TEXT,
		  capture_count INTEGER NOT NULL DEFAULT 0,
		  created_at    INTEGER NOT NULL,
		  updated_at    INTEGER NOT NULL
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Migration 1 -> 2: processing bookkeeping
	if version < 2 {
		for _, col := range []struct{ table, def string }{
			{"captures", "processed_at INTEGER"},
			{"captures", "ai_insights TEXT"},
			{"journal_entries", "ai_generated INTEGER NOT NULL DEFAULT 0"},
		} {
			if err := addColumn(db, col.table, col.def); err != nil {
				return fmt.Errorf("migration 2 failed: %w", err)
			}
		}
		if err := SetUserVersion(db, 2); err != nil {
			return err
		}
	}

	// Migration 2 -> 3: background capture provenance
	if version < 3 {
		for _, def := range []string{
			"source TEXT NOT NULL DEFAULT 'manual'",
			`"trigger" TEXT`,
			"execution_duration_ms INTEGER",
			"errors TEXT",
			"battery_level INTEGER",
		} {
			if err := addColumn(db, "captures", def); err != nil {
				return fmt.Errorf("migration 3 failed: %w", err)
			}
		}
		if err := SetUserVersion(db, 3); err != nil {
			return err
		}
	}

	// Migration 3 -> 4: annotator output
	if version < 4 {
		if err := addColumn(db, "captures", "ai_metadata TEXT"); err != nil {
			return fmt.Errorf("migration 4 failed: %w", err)
		}
		if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_captures_unannotated
			ON captures(timestamp) WHERE ai_metadata IS NULL`); err != nil {
			return fmt.Errorf("migration 4 failed: %w", err)
		}
		if err := SetUserVersion(db, 4); err != nil {
			return err
		}
	}

	return nil
}

// addColumn runs ALTER TABLE ... ADD COLUMN, treating an existing column as success.
func addColumn(db *sql.DB, table, def string) error {
	_, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, def))
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "duplicate column name") {
		return nil
	}
	return err
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
