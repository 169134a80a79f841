package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketdash/internal/cache"
	"github.com/aristath/marketdash/internal/clients/nse"
	"github.com/aristath/marketdash/internal/modules/market_hours"
)

type fixedSession struct {
	status nse.SessionStatus
}

func (f fixedSession) Status() nse.SessionStatus { return f.status }

type fixedCounter struct {
	count int64
	err   error
}

func (f fixedCounter) Count() (int64, error) { return f.count, f.err }

func TestHandleSystemStatus(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	now := time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC)

	c := cache.New(time.Second)
	c.Put("nifty50", json.RawMessage(`{}`), now.Add(-500*time.Millisecond))
	c.Put("bankNifty", json.RawMessage(`{}`), now.Add(-5*time.Second))

	session := fixedSession{status: nse.SessionStatus{
		Valid:      true,
		Generation: "gen-1",
		AcquiredAt: now.Add(-200 * time.Millisecond),
		Handshakes: 3,
	}}

	h := NewSystemHandlers(logger, c, session, fixedCounter{count: 7}, nil, market_hours.NewMarketHoursService())
	h.now = func() time.Time { return now }
	h.startedAt = now.Add(-90 * time.Second)
	h.hostStats = func() (float64, float64) { return 12.5, 40 }

	req := httptest.NewRequest(http.MethodGet, "/api/system/status", nil)
	w := httptest.NewRecorder()
	h.HandleSystemStatus(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp SystemStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, int64(90), resp.UptimeSeconds)
	assert.Equal(t, "open", resp.Market.Status)
	assert.Equal(t, 2, resp.Cache.Entries)
	assert.Equal(t, 1, resp.Cache.Fresh)
	assert.Equal(t, int64(1000), resp.Cache.TTLMs)
	assert.Equal(t, []string{"bankNifty", "nifty50"}, resp.Cache.Keys)
	assert.True(t, resp.Session.Valid)
	assert.Equal(t, "gen-1", resp.Session.Generation)
	assert.Equal(t, int64(3), resp.Session.Handshakes)
	assert.True(t, resp.Snapshots.Enabled)
	assert.Equal(t, int64(7), resp.Snapshots.Count)
	assert.Equal(t, 12.5, resp.CPUPercent)
	assert.Equal(t, float64(40), resp.RAMPercent)
}

func TestHandleSystemStatus_SnapshotsDisabled(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	h := NewSystemHandlers(logger, cache.New(0), nil, nil, nil, market_hours.NewMarketHoursService())
	h.hostStats = func() (float64, float64) { return 0, 0 }

	w := httptest.NewRecorder()
	h.HandleSystemStatus(w, httptest.NewRequest(http.MethodGet, "/api/system/status", nil))

	var resp SystemStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Snapshots.Enabled)
	assert.Equal(t, 0, resp.Cache.Entries)
	assert.False(t, resp.Session.Valid)
}

func TestHandleSystemStatus_SnapshotCountError(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	h := NewSystemHandlers(logger, cache.New(0), nil, fixedCounter{err: errors.New("database is locked")}, nil, market_hours.NewMarketHoursService())
	h.hostStats = func() (float64, float64) { return 0, 0 }

	w := httptest.NewRecorder()
	h.HandleSystemStatus(w, httptest.NewRequest(http.MethodGet, "/api/system/status", nil))

	var resp SystemStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Snapshots.Enabled)
	assert.Equal(t, "database is locked", resp.Snapshots.LastError)
}
