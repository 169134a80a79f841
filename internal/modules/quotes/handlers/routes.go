package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all quote routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/nifty50", h.HandleNifty50)
	r.Get("/nifty", h.HandleNifty)
	r.Get("/banknifty", h.HandleBankNifty)
	r.Get("/banknifty-stocks", h.HandleBankNiftyStocks)
	r.Get("/stock/{symbol}", h.HandleStock)
	r.Get("/historical/{symbol}", h.HandleHistorical)
	r.Get("/indices", h.HandleIndices)
	r.Get("/search", h.HandleSearch)
}
