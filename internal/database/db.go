// Package database opens the SQLite file that backs the last-known-good
// snapshot store and exposes the maintenance primitives the scheduler needs.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Snapshot payloads can always be refetched, so durability is traded for
// write speed. WAL keeps readers (fallback lookups) off the writer's lock.
var pragmas = []string{
	"journal_mode(WAL)",
	"synchronous(OFF)",
	"auto_vacuum(FULL)",
	"temp_store(MEMORY)",
	"busy_timeout(5000)",
	"wal_autocheckpoint(1000)",
}

// DB is an open SQLite database.
type DB struct {
	conn *sql.DB
	path string
	name string
}

// Config holds database configuration
type Config struct {
	Path string // file path, or a file: URI used verbatim
	Name string // used in log lines and errors
}

// New opens (creating if needed) the database at cfg.Path and verifies it
// answers within five seconds.
func New(cfg Config) (*DB, error) {
	if !strings.HasPrefix(cfg.Path, "file:") {
		absPath, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path to absolute: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		cfg.Path = absPath
	}

	conn, err := sql.Open("sqlite", connectionString(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}

	// Handlers read concurrently while one fetch at a time writes through
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	return &DB{conn: conn, path: cfg.Path, name: cfg.Name}, nil
}

func connectionString(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	params := make([]string, 0, len(pragmas))
	for _, p := range pragmas {
		params = append(params, "_pragma="+p)
	}
	return path + sep + strings.Join(params, "&")
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying connection pool for repositories.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Name returns the database name for logging
func (db *DB) Name() string {
	return db.name
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Migrate applies a schema inside a transaction. Schemas use
// CREATE ... IF NOT EXISTS so re-applying them is a no-op.
func (db *DB) Migrate(schema string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for %s schema: %w", db.name, err)
	}

	if _, err := tx.Exec(schema); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to execute schema for %s: %w", db.name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema for %s: %w", db.name, err)
	}

	return nil
}

// Ping checks the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// IntegrityCheck runs PRAGMA quick_check and returns its first result row,
// which is "ok" for a healthy database.
func (db *DB) IntegrityCheck(ctx context.Context) (string, error) {
	var result string
	if err := db.conn.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return "", fmt.Errorf("integrity check of %s failed: %w", db.name, err)
	}
	return result, nil
}

// Checkpoint is the outcome of a passive WAL checkpoint.
type Checkpoint struct {
	Busy         bool
	WALFrames    int
	Checkpointed int
}

// CheckpointWAL copies as much of the WAL back into the database as it can
// without waiting for readers.
func (db *DB) CheckpointWAL(ctx context.Context) (Checkpoint, error) {
	var busy int
	var cp Checkpoint
	err := db.conn.QueryRowContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &cp.WALFrames, &cp.Checkpointed)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("wal checkpoint of %s failed: %w", db.name, err)
	}
	cp.Busy = busy != 0
	return cp, nil
}

// Stats describes the on-disk footprint of the database.
type Stats struct {
	SizeBytes    int64
	WALSizeBytes int64
	PageCount    int64
	PageSize     int64
}

// TotalMB is the database plus WAL size in megabytes.
func (s Stats) TotalMB() float64 {
	return float64(s.SizeBytes+s.WALSizeBytes) / 1024 / 1024
}

// GetStats reads file sizes and page counters.
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{}

	if fileInfo, err := os.Stat(db.path); err == nil {
		stats.SizeBytes = fileInfo.Size()
	}
	if fileInfo, err := os.Stat(db.path + "-wal"); err == nil {
		stats.WALSizeBytes = fileInfo.Size()
	}

	if err := db.conn.QueryRow("PRAGMA page_count").Scan(&stats.PageCount); err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	if err := db.conn.QueryRow("PRAGMA page_size").Scan(&stats.PageSize); err != nil {
		return nil, fmt.Errorf("failed to get page size: %w", err)
	}

	return stats, nil
}
