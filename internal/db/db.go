package db

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const SchemaVersion = 1

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the rally database at the given path
func Open(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_timeout=5000&_foreign_keys=on", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(1) // SQLite works best with single writer
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	db := &DB{
		conn: conn,
		path: dbPath,
	}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// initSchema creates the schema on first use and refuses databases written
// by a newer or older schema.
func (db *DB) initSchema() error {
	var currentVersion int
	err := db.conn.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&currentVersion)

	if err == sql.ErrNoRows || (err != nil && strings.Contains(err.Error(), "no such table: schema_version")) {
		if _, err := db.conn.Exec(schemaSQL); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	if currentVersion != SchemaVersion {
		return fmt.Errorf("schema migration needed from version %d to %d (not implemented)", currentVersion, SchemaVersion)
	}

	return nil
}

// Begin starts a new transaction
func (db *DB) Begin() (*sql.Tx, error) {
	return db.conn.Begin()
}

// Exec executes a query without returning rows
func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return db.conn.Exec(query, args...)
}

// Query executes a query that returns rows
func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.Query(query, args...)
}

// QueryRow executes a query that returns at most one row
func (db *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRow(query, args...)
}

// DefaultDBPath returns the default database path
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./rally.db"
	}
	return filepath.Join(home, ".rally", "rally.db")
}

// Stats returns database statistics
func (db *DB) Stats() (*Stats, error) {
	stats := &Stats{}

	counts := []struct {
		table string
		dst   *int64
	}{
		{"activities", &stats.ActivityCount},
		{"chats", &stats.ChatCount},
		{"messages", &stats.MessageCount},
		{"users", &stats.UserCount},
		{"chat_list_items", &stats.ChatListItemCount},
		{"raw_responses", &stats.RawResponseCount},
	}
	for _, c := range counts {
		if err := db.QueryRow("SELECT COUNT(*) FROM " + c.table).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", c.table, err)
		}
	}

	// Get date range
	var earliest, latest sql.NullInt64
	err := db.QueryRow(`
		SELECT MIN(sort_time), MAX(sort_time)
		FROM messages
	`).Scan(&earliest, &latest)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get date range: %w", err)
	}
	stats.EarliestMessage = millisToTime(earliest)
	stats.LatestMessage = millisToTime(latest)

	// Get database file size
	if info, err := os.Stat(db.path); err == nil {
		stats.DatabaseSize = info.Size()
	}

	return stats, nil
}

// Stats represents database statistics
type Stats struct {
	ActivityCount     int64
	ChatCount         int64
	MessageCount      int64
	UserCount         int64
	ChatListItemCount int64
	RawResponseCount  int64
	EarliestMessage   *time.Time
	LatestMessage     *time.Time
	DatabaseSize      int64
}

func millisToTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
