// Package clientdata persists last-known-good upstream payloads so that
// fallbacks survive a restart. Rows carry an expiration timestamp; a snapshot
// is only ever served as a fallback, never as a fresh response.
package clientdata

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Schema creates the snapshot table. Safe to apply repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS upstream_snapshots (
	cache_key  TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_upstream_snapshots_expires ON upstream_snapshots(expires_at);
`

// Snapshot is one persisted upstream payload.
type Snapshot struct {
	Key       string    `msgpack:"key"`
	Payload   []byte    `msgpack:"payload"`
	FetchedAt time.Time `msgpack:"fetched_at"`
}

// JSON returns the payload as raw JSON.
func (s *Snapshot) JSON() json.RawMessage {
	return json.RawMessage(s.Payload)
}

// Repository provides snapshot storage on top of a sqlite connection.
type Repository struct {
	db  *sql.DB
	ttl time.Duration
}

// NewRepository creates a new snapshot repository.
// A non-positive ttl falls back to TTLSnapshot.
func NewRepository(db *sql.DB, ttl time.Duration) *Repository {
	if ttl <= 0 {
		ttl = TTLSnapshot
	}
	return &Repository{db: db, ttl: ttl}
}

// Store saves the payload with expiration = fetchedAt + ttl.
// Uses INSERT OR REPLACE to upsert data.
func (r *Repository) Store(key string, payload json.RawMessage, fetchedAt time.Time) error {
	if len(payload) == 0 {
		return fmt.Errorf("refusing to store empty payload for %s", key)
	}

	data, err := msgpack.Marshal(&Snapshot{
		Key:       key,
		Payload:   []byte(payload),
		FetchedAt: fetchedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot %s: %w", key, err)
	}

	expiresAt := fetchedAt.Add(r.ttl).Unix()

	_, err = r.db.Exec(
		"INSERT OR REPLACE INTO upstream_snapshots (cache_key, data, expires_at) VALUES (?, ?, ?)",
		key, data, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store snapshot %s: %w", key, err)
	}

	return nil
}

// GetIfFresh returns the snapshot only if expires_at > now.
// Returns nil, nil if the key doesn't exist or the row is expired. A row that
// no longer decodes is deleted so the next lookup misses cleanly.
func (r *Repository) GetIfFresh(key string, now time.Time) (*Snapshot, error) {
	var data []byte
	err := r.db.QueryRow(
		"SELECT data FROM upstream_snapshots WHERE cache_key = ? AND expires_at > ?",
		key, now.Unix(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot %s: %w", key, err)
	}

	snap, err := decode(key, data)
	if err != nil {
		if delErr := r.Delete(key); delErr != nil {
			return nil, errors.Join(err, delErr)
		}
		return nil, err
	}
	return snap, nil
}

// Delete removes a specific snapshot.
func (r *Repository) Delete(key string) error {
	if _, err := r.db.Exec("DELETE FROM upstream_snapshots WHERE cache_key = ?", key); err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", key, err)
	}
	return nil
}

// DeleteExpired removes all rows where expires_at < now.
// Returns the number of rows deleted.
func (r *Repository) DeleteExpired(now time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM upstream_snapshots WHERE expires_at < ?", now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired snapshots: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

// Count returns the number of stored snapshots.
func (r *Repository) Count() (int64, error) {
	var n int64
	if err := r.db.QueryRow("SELECT COUNT(*) FROM upstream_snapshots").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return n, nil
}

func decode(key string, data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", key, err)
	}
	return &s, nil
}
