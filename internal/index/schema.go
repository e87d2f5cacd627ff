// Package index provides the SQLite-backed query cache over the file store.
//
// Nothing in here is authoritative: every table is a denormalized projection
// of entity files and can be dropped and rebuilt from a store scan at any
// time. Full-text search uses FTS5 when compiled with the sqlite_fts5 tag
// and a token-scan fallback otherwise.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS subjects (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	code             TEXT NOT NULL DEFAULT '',
	type             TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL,
	last_reviewed_at TEXT NOT NULL,
	path             TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agenda_items (
	id                 TEXT PRIMARY KEY,
	subject_id         TEXT NOT NULL,
	title              TEXT NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	priority           INTEGER NOT NULL,
	status             TEXT NOT NULL,
	created_at         TEXT NOT NULL,
	discussed_at       TEXT,
	is_recurring       INTEGER NOT NULL DEFAULT 0,
	recurrence_pattern TEXT NOT NULL DEFAULT '',
	recurrence_anchor  TEXT,
	successor_id       TEXT NOT NULL DEFAULT '',
	path               TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS meetings (
	id         TEXT PRIMARY KEY,
	subject_id TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	date       TEXT NOT NULL,
	attendees  TEXT NOT NULL DEFAULT '[]',
	content    TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	path       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS actions (
	id             TEXT PRIMARY KEY,
	subject_id     TEXT NOT NULL,
	title          TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	due_date       TEXT,
	created_at     TEXT NOT NULL,
	completed_at   TEXT,
	archived_at    TEXT,
	meeting_id     TEXT NOT NULL DEFAULT '',
	note_id        TEXT NOT NULL DEFAULT '',
	agenda_item_id TEXT NOT NULL DEFAULT '',
	tags           TEXT NOT NULL DEFAULT '[]',
	path           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS notes (
	id         TEXT PRIMARY KEY,
	subject_id TEXT NOT NULL,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	tags       TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	path       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_records (
	path            TEXT PRIMARY KEY,
	kind            TEXT NOT NULL,
	hash            TEXT NOT NULL DEFAULT '',
	size            INTEGER NOT NULL DEFAULT 0,
	mtime           TEXT NOT NULL DEFAULT '',
	needs_attention INTEGER NOT NULL DEFAULT 0,
	last_synced_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_subjects_reviewed ON subjects(last_reviewed_at);
CREATE INDEX IF NOT EXISTS idx_agenda_subject    ON agenda_items(subject_id);
CREATE INDEX IF NOT EXISTS idx_agenda_status     ON agenda_items(status);
CREATE INDEX IF NOT EXISTS idx_agenda_path       ON agenda_items(path);
CREATE INDEX IF NOT EXISTS idx_meetings_subject  ON meetings(subject_id);
CREATE INDEX IF NOT EXISTS idx_meetings_date     ON meetings(date);
CREATE INDEX IF NOT EXISTS idx_actions_subject   ON actions(subject_id);
CREATE INDEX IF NOT EXISTS idx_actions_status    ON actions(status);
CREATE INDEX IF NOT EXISTS idx_actions_due       ON actions(due_date);
CREATE INDEX IF NOT EXISTS idx_notes_subject     ON notes(subject_id);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite index and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply search schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
