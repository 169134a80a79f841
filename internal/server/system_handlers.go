package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/marketdash/internal/cache"
	"github.com/aristath/marketdash/internal/clients/nse"
	"github.com/aristath/marketdash/internal/database"
	"github.com/aristath/marketdash/internal/modules/market_hours"
)

// SessionStatusProvider reports the upstream credential state.
type SessionStatusProvider interface {
	Status() nse.SessionStatus
}

// SnapshotCounter reports how many snapshots are persisted.
type SnapshotCounter interface {
	Count() (int64, error)
}

// SystemHandlers serves operational status
type SystemHandlers struct {
	log       zerolog.Logger
	cache     *cache.Cache
	session   SessionStatusProvider
	snapshots SnapshotCounter
	db        *database.DB
	market    *market_hours.MarketHoursService
	startedAt time.Time
	now       func() time.Time
	hostStats func() (float64, float64)
}

// NewSystemHandlers creates system handlers. snapshots and db may be nil
// when persistence is disabled.
func NewSystemHandlers(
	log zerolog.Logger,
	responseCache *cache.Cache,
	session SessionStatusProvider,
	snapshots SnapshotCounter,
	db *database.DB,
	market *market_hours.MarketHoursService,
) *SystemHandlers {
	h := &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		cache:     responseCache,
		session:   session,
		snapshots: snapshots,
		db:        db,
		market:    market,
		startedAt: time.Now(),
		now:       time.Now,
	}
	h.hostStats = h.getSystemStats
	return h
}

// CacheStatus summarises the response cache
type CacheStatus struct {
	Entries int      `json:"entries"`
	TTLMs   int64    `json:"ttl_ms"`
	Keys    []string `json:"keys"`
	Fresh   int      `json:"fresh"`
}

// SnapshotStatus summarises the snapshot store
type SnapshotStatus struct {
	Enabled   bool    `json:"enabled"`
	Count     int64   `json:"count"`
	SizeMB    float64 `json:"size_mb,omitempty"`
	LastError string  `json:"last_error,omitempty"`
}

// SystemStatusResponse is returned by GET /api/system/status
type SystemStatusResponse struct {
	Status        string                    `json:"status"`
	UptimeSeconds int64                     `json:"uptime_seconds"`
	Market        market_hours.MarketStatus `json:"market"`
	Session       nse.SessionStatus         `json:"session"`
	Cache         CacheStatus               `json:"cache"`
	Snapshots     SnapshotStatus            `json:"snapshots"`
	CPUPercent    float64                   `json:"cpu_percent"`
	RAMPercent    float64                   `json:"ram_percent"`
	LastUpdated   string                    `json:"last_updated"`
}

func (h *SystemHandlers) uptimeSeconds() int64 {
	return int64(h.now().Sub(h.startedAt).Seconds())
}

func (h *SystemHandlers) sessionReady() bool {
	return h.session != nil && h.session.Status().Valid
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	cpuPercent, ramPercent := h.hostStats()

	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: h.uptimeSeconds(),
		Market:        h.market.Status(now),
		Cache:         h.cacheStatus(now),
		Snapshots:     h.snapshotStatus(),
		CPUPercent:    cpuPercent,
		RAMPercent:    ramPercent,
		LastUpdated:   now.Format(time.RFC3339),
	}
	if h.session != nil {
		response.Session = h.session.Status()
	}

	h.writeJSON(w, http.StatusOK, response)
}

func (h *SystemHandlers) cacheStatus(now time.Time) CacheStatus {
	keys := h.cache.Keys()
	fresh := 0
	for _, key := range keys {
		if _, ok := h.cache.GetFresh(key, now); ok {
			fresh++
		}
	}

	return CacheStatus{
		Entries: len(keys),
		TTLMs:   h.cache.TTL().Milliseconds(),
		Keys:    keys,
		Fresh:   fresh,
	}
}

func (h *SystemHandlers) snapshotStatus() SnapshotStatus {
	if h.snapshots == nil {
		return SnapshotStatus{}
	}

	status := SnapshotStatus{Enabled: true}

	count, err := h.snapshots.Count()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to count snapshots")
		status.LastError = err.Error()
	}
	status.Count = count

	if h.db != nil {
		stats, err := h.db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to get snapshot database stats")
		} else {
			status.SizeMB = stats.TotalMB()
		}
	}

	return status
}

// getSystemStats calculates CPU and RAM usage percentages
// Uses a short interval (100ms) so the endpoint stays responsive
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
