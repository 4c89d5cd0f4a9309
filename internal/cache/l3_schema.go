package cache

import "database/sql"

const l3SchemaDDL = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key           TEXT PRIMARY KEY,
	value         BLOB NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	ttl_ns        INTEGER NOT NULL,
	access_count  INTEGER NOT NULL DEFAULT 0,
	last_accessed TIMESTAMP NOT NULL,
	byte_size     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS query_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	query_text    TEXT NOT NULL,
	query_hash    TEXT NOT NULL,
	options_json  TEXT NOT NULL,
	result_count  INTEGER NOT NULL,
	execution_ms  REAL NOT NULL,
	cache_hit     INTEGER NOT NULL,
	cache_level   TEXT NOT NULL DEFAULT '',
	timestamp     TIMESTAMP NOT NULL,
	index_version INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_query_log_hash ON query_log(query_hash);
CREATE INDEX IF NOT EXISTS idx_query_log_timestamp ON query_log(timestamp);
`

func initL3Schema(db *sql.DB) error {
	_, err := db.Exec(l3SchemaDDL)
	return err
}
