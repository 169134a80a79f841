package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketdash/internal/modules/market_hours"
)

func TestHandleGetStatus(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	service := market_hours.NewMarketHoursService()

	tests := []struct {
		name        string
		now         time.Time
		wantStatus  string
		wantOpen    bool
		wantMessage string
	}{
		{
			name:        "weekday session",
			now:         time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC),
			wantStatus:  "open",
			wantOpen:    true,
			wantMessage: "Market Open",
		},
		{
			name:        "weekend",
			now:         time.Date(2026, 3, 14, 5, 0, 0, 0, time.UTC),
			wantStatus:  "closed",
			wantMessage: "Weekend - Market Closed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(service, logger)
			handler.now = func() time.Time { return tt.now }

			req := httptest.NewRequest("GET", "/api/market-status", nil)
			w := httptest.NewRecorder()

			handler.HandleGetStatus(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var response map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.wantStatus, response["status"])
			assert.Equal(t, tt.wantMessage, response["message"])
			assert.Equal(t, tt.wantOpen, response["open"])
			assert.Equal(t, "Asia/Kolkata", response["timezone"])
			assert.NotEmpty(t, response["localTime"])
		})
	}
}
