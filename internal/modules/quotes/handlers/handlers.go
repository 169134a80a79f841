// Package handlers provides HTTP handlers for the dashboard quote endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/marketdash/internal/modules/quotes"
)

// Handler handles quote HTTP requests
type Handler struct {
	service *quotes.Service
	log     zerolog.Logger
}

// NewHandler creates a new quotes handler
func NewHandler(service *quotes.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "quotes").Logger(),
	}
}

// HandleNifty50 handles GET /api/nifty50
// Returns the raw NIFTY 50 listing
func (h *Handler) HandleNifty50(w http.ResponseWriter, r *http.Request) {
	payload, err := h.service.Nifty50(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to fetch NIFTY 50")
		h.writeError(w, http.StatusInternalServerError, "Failed to fetch data from NSE")
		return
	}

	h.writeJSON(w, http.StatusOK, payload)
}

// HandleNifty handles GET /api/nifty
// Degrades to an empty list on failure
func (h *Handler) HandleNifty(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Nifty(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to fetch NIFTY 500, returning empty list")
		rows = []quotes.StockRow{}
	}

	h.writeJSON(w, http.StatusOK, rows)
}

// HandleBankNifty handles GET /api/banknifty
// Degrades to an empty list on failure
func (h *Handler) HandleBankNifty(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.BankNifty(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to fetch NIFTY BANK, returning empty list")
		rows = []quotes.StockRow{}
	}

	h.writeJSON(w, http.StatusOK, rows)
}

// HandleBankNiftyStocks handles GET /api/banknifty-stocks
func (h *Handler) HandleBankNiftyStocks(w http.ResponseWriter, r *http.Request) {
	stocks, err := h.service.BankNiftyStocks(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to fetch Bank Nifty stocks")
		h.writeError(w, http.StatusInternalServerError, "Failed to fetch Bank Nifty stocks")
		return
	}

	h.writeJSON(w, http.StatusOK, stocks)
}

// HandleStock handles GET /api/stock/{symbol}
func (h *Handler) HandleStock(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	details, err := h.service.StockDetails(r.Context(), symbol)
	if err != nil {
		if h.writeValidationError(w, err) {
			return
		}
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to fetch stock details")
		h.writeError(w, http.StatusInternalServerError, "Failed to fetch stock details")
		return
	}

	h.writeJSON(w, http.StatusOK, details)
}

// HandleHistorical handles GET /api/historical/{symbol}
func (h *Handler) HandleHistorical(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	candles, err := h.service.Historical(r.Context(), symbol)
	if err != nil {
		if h.writeValidationError(w, err) {
			return
		}
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to fetch historical data")
		h.writeError(w, http.StatusInternalServerError, "Failed to fetch historical data from NSE")
		return
	}

	h.writeJSON(w, http.StatusOK, candles)
}

// HandleIndices handles GET /api/indices
// Always answers 200; degraded values are flagged in performance
func (h *Handler) HandleIndices(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Indices(r.Context()))
}

// HandleSearch handles GET /api/search?q=
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	payload, err := h.service.Search(r.Context(), query)
	if err != nil {
		if h.writeValidationError(w, err) {
			return
		}
		h.log.Error().Err(err).Str("query", query).Msg("Search failed")
		h.writeError(w, http.StatusInternalServerError, "Failed to search NSE")
		return
	}

	h.writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) writeValidationError(w http.ResponseWriter, err error) bool {
	var ve quotes.ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	h.writeError(w, http.StatusBadRequest, ve.Field+" "+ve.Message)
	return true
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
