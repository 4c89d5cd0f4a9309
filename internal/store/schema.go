package store

import "database/sql"

// schemaVersion is the current metadata store schema. Bump when the
// tables below change shape; initSchema only ever creates, so a version
// bump implies a new store.go migration step, not present yet.
const schemaVersion = 1

const schemaDDL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS store_state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS nodes (
	node_id        TEXT PRIMARY KEY,
	label          INTEGER NOT NULL UNIQUE,
	kind           TEXT NOT NULL,
	name           TEXT NOT NULL DEFAULT '',
	file_path      TEXT NOT NULL,
	start_line     INTEGER NOT NULL,
	start_column   INTEGER NOT NULL,
	start_byte     INTEGER NOT NULL,
	end_line       INTEGER NOT NULL,
	end_column     INTEGER NOT NULL,
	end_byte       INTEGER NOT NULL,
	source_text    TEXT NOT NULL DEFAULT '',
	significance   INTEGER NOT NULL,
	metadata_json  TEXT NOT NULL,
	parent_id      TEXT NOT NULL DEFAULT '',
	children_json  TEXT NOT NULL DEFAULT '[]',
	embedding      BLOB NOT NULL,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_nodes_file_path ON nodes(file_path);
CREATE INDEX IF NOT EXISTS idx_nodes_label ON nodes(label);

CREATE TABLE IF NOT EXISTS file_digests (
	path           TEXT PRIMARY KEY,
	content_hash   TEXT NOT NULL,
	last_parsed_at TIMESTAMP NOT NULL,
	node_ids_json  TEXT NOT NULL
);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

func initSchema(db *sql.DB) error {
	_, err := db.Exec(schemaDDL)
	return err
}
