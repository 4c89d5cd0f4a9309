package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure-Go driver, always available
)

// validateIntegrity checks an on-disk database before opening it. A
// missing file is not corruption — it will be created. A failed
// integrity_check means the caller should clear the file and start over.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

func clearCorrupted(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	_ = os.Remove(path + "-wal")
	_ = os.Remove(path + "-shm")
	return nil
}

func openPortable(path string) (*sql.DB, error) {
	if path == "" || path == ":memory:" {
		db, err := sql.Open("sqlite", ":memory:")
		if err != nil {
			return nil, err
		}
		if err := configureConnection(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := validateIntegrity(path); err != nil {
		slog.Warn("metadata store corrupted, clearing", "path", path, "error", err)
		if err := clearCorrupted(path); err != nil {
			return nil, fmt.Errorf("clear corrupted store at %s: %w", path, err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := configureConnection(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// configureConnection applies the pragmas and pool limits both backends
// need. DSN query params are sometimes ignored by the driver, so every
// pragma is also set explicitly via PRAGMA statements. A single open
// connection enforces the single-writer discipline without an
// in-process mutex duplicating what SQLite already serializes.
func configureConnection(db *sql.DB) error {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}
	return nil
}
