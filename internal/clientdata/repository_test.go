package clientdata

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)

	// a single connection keeps the in-memory database alive and shared
	db.SetMaxOpenConns(1)

	_, err = db.Exec(Schema)
	require.NoError(t, err)

	return db
}

func TestNewRepository_DefaultTTL(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, 0)
	assert.Equal(t, TTLSnapshot, repo.ttl)
}

func TestStoreAndGet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, time.Hour)
	fetchedAt := time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC)
	payload := json.RawMessage(`{"data":[{"symbol":"NIFTY 50","lastPrice":22000.5}]}`)

	require.NoError(t, repo.Store("nifty50", payload, fetchedAt))

	snap, err := repo.GetIfFresh("nifty50", fetchedAt)
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, "nifty50", snap.Key)
	assert.JSONEq(t, string(payload), string(snap.JSON()))
	assert.True(t, fetchedAt.Equal(snap.FetchedAt))

	var expiresAt int64
	require.NoError(t, db.QueryRow("SELECT expires_at FROM upstream_snapshots WHERE cache_key = ?", "nifty50").Scan(&expiresAt))
	assert.Equal(t, fetchedAt.Add(time.Hour).Unix(), expiresAt)
}

func TestStore_Upsert(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, time.Hour)
	now := time.Now()

	require.NoError(t, repo.Store("bankNifty", json.RawMessage(`{"v":1}`), now))
	require.NoError(t, repo.Store("bankNifty", json.RawMessage(`{"v":2}`), now.Add(time.Second)))

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	snap, err := repo.GetIfFresh("bankNifty", now)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.JSONEq(t, `{"v":2}`, string(snap.Payload))
}

func TestStore_RejectsEmptyPayload(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, time.Hour)
	assert.Error(t, repo.Store("nifty50", nil, time.Now()))
}

func TestGetIfFresh_NotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, time.Hour)

	snap, err := repo.GetIfFresh("missing", time.Now())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestGetIfFresh(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, time.Hour)
	fetchedAt := time.Now().Add(-2 * time.Hour)
	require.NoError(t, repo.Store("historical_TCS", json.RawMessage(`{"data":[]}`), fetchedAt))

	fresh, err := repo.GetIfFresh("historical_TCS", fetchedAt.Add(30*time.Minute))
	require.NoError(t, err)
	assert.NotNil(t, fresh)

	expired, err := repo.GetIfFresh("historical_TCS", time.Now())
	require.NoError(t, err)
	assert.Nil(t, expired, "expired row must not be returned as fresh")

	// expired rows stay on disk until the cleanup job runs
	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestGetIfFresh_CorruptRowIsDeleted(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, time.Hour)
	_, err := db.Exec("INSERT INTO upstream_snapshots (cache_key, data, expires_at) VALUES (?, ?, ?)",
		"broken", []byte{0xc1}, time.Now().Add(time.Hour).Unix())
	require.NoError(t, err)

	_, err = repo.GetIfFresh("broken", time.Now())
	assert.Error(t, err)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count, "undecodable row is removed")

	snap, err := repo.GetIfFresh("broken", time.Now())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestDelete(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, time.Hour)
	require.NoError(t, repo.Store("nifty", json.RawMessage(`[]`), time.Now()))
	require.NoError(t, repo.Delete("nifty"))
	require.NoError(t, repo.Delete("nifty"))

	snap, err := repo.GetIfFresh("nifty", time.Now())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestDeleteExpired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, time.Hour)
	now := time.Now()

	require.NoError(t, repo.Store("old_1", json.RawMessage(`1`), now.Add(-3*time.Hour)))
	require.NoError(t, repo.Store("old_2", json.RawMessage(`2`), now.Add(-2*time.Hour)))
	require.NoError(t, repo.Store("new_1", json.RawMessage(`3`), now))

	deleted, err := repo.DeleteExpired(now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestDeleteExpired_EmptyTable(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, time.Hour)
	deleted, err := repo.DeleteExpired(time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}
