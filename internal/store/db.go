package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// DB wraps a SQLite database connection
type DB struct {
	conn *sql.DB
	Path string
}

// OpenDB opens a SQLite database with WAL mode enabled and the mesh schema
// applied. Safe to call on an existing database; schema statements are
// idempotent.
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if err := initSchema(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return &DB{conn: conn, Path: path}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying sql.DB for custom queries
func (d *DB) Conn() *sql.DB {
	return d.conn
}

func initSchema(conn *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS edges (
			id TEXT PRIMARY KEY,
			source_kind TEXT NOT NULL,
			source_id TEXT NOT NULL,
			relation TEXT NOT NULL,
			target_kind TEXT NOT NULL,
			target_id TEXT NOT NULL,
			confidence INTEGER NOT NULL DEFAULT 50,
			discovered_via TEXT,
			metadata TEXT,
			first_seen_at INTEGER NOT NULL,
			UNIQUE(source_kind, source_id, target_kind, target_id, relation)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_kind, source_id, relation)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_kind, target_id, relation)`,
		`CREATE TABLE IF NOT EXISTS communities (
			id TEXT PRIMARY KEY,
			name TEXT,
			member_count INTEGER NOT NULL DEFAULT 0,
			admin_usernames TEXT NOT NULL DEFAULT '[]',
			moderator_usernames TEXT NOT NULL DEFAULT '[]',
			linked_token_mints TEXT NOT NULL DEFAULT '[]',
			linked_wallets TEXT NOT NULL DEFAULT '[]',
			scrape_status TEXT NOT NULL DEFAULT 'pending',
			failed_scrape_count INTEGER NOT NULL DEFAULT 0,
			is_flagged INTEGER NOT NULL DEFAULT 0,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			deleted_detected_at INTEGER,
			deletion_alert_sent INTEGER NOT NULL DEFAULT 0,
			last_existence_check_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_communities_check ON communities(is_deleted, last_existence_check_at)`,
		`CREATE TABLE IF NOT EXISTS teams (
			team_id TEXT PRIMARY KEY,
			member_wallets TEXT NOT NULL DEFAULT '[]',
			member_twitter_accounts TEXT NOT NULL DEFAULT '[]',
			admin_usernames TEXT NOT NULL DEFAULT '[]',
			moderator_usernames TEXT NOT NULL DEFAULT '[]',
			linked_token_mints TEXT NOT NULL DEFAULT '[]',
			linked_x_communities TEXT NOT NULL DEFAULT '[]',
			tokens_created INTEGER NOT NULL DEFAULT 0,
			tokens_rugged INTEGER NOT NULL DEFAULT 0,
			risk_level TEXT NOT NULL DEFAULT 'low',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS blacklist_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entry_type TEXT NOT NULL,
			identifier TEXT NOT NULL,
			linked_token_mints TEXT NOT NULL DEFAULT '[]',
			linked_wallets TEXT NOT NULL DEFAULT '[]',
			linked_twitter TEXT NOT NULL DEFAULT '[]',
			linked_telegram TEXT NOT NULL DEFAULT '[]',
			linked_pumpfun_accounts TEXT NOT NULL DEFAULT '[]',
			level TEXT NOT NULL DEFAULT 'high',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			UNIQUE(entry_type, identifier)
		)`,
		`CREATE TABLE IF NOT EXISTS whitelist_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entry_type TEXT NOT NULL,
			identifier TEXT NOT NULL,
			linked_token_mints TEXT NOT NULL DEFAULT '[]',
			linked_wallets TEXT NOT NULL DEFAULT '[]',
			linked_twitter TEXT NOT NULL DEFAULT '[]',
			linked_telegram TEXT NOT NULL DEFAULT '[]',
			linked_pumpfun_accounts TEXT NOT NULL DEFAULT '[]',
			level TEXT NOT NULL DEFAULT 'high',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			UNIQUE(entry_type, identifier)
		)`,
	}
	for _, s := range stmts {
		if _, err := conn.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// encodeList serializes a string slice to its JSON column representation.
func encodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// decodeList deserializes a JSON column into a string slice.
func decodeList(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil
	}
	return items
}
