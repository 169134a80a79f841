package server

import (
	"encoding/json"
	"net/http"
)

// Version is reported by the health endpoint. Set at build time with
// -ldflags "-X github.com/aristath/marketdash/internal/server.Version=...".
var Version = "dev"

// HealthResponse is returned by GET /health. It never touches the network,
// so load balancers can poll it freely.
type HealthResponse struct {
	Status        string `json:"status"`
	Service       string `json:"service"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	// SessionReady is false until the first handshake and after the
	// credential expires; the next upstream fetch renews it.
	SessionReady bool `json:"session_ready"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:  "healthy",
		Service: "marketdash",
		Version: Version,
	}
	if s.system != nil {
		response.UptimeSeconds = s.system.uptimeSeconds()
		response.SessionReady = s.system.sessionReady()
	}

	s.writeJSON(w, http.StatusOK, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
