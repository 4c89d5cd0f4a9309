//go:build cgo

package store

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3" // CGO-backed driver, used when available
)

const nativeAvailable = true

func openNative(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := configureConnection(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
