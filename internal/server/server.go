// Package server provides the HTTP server and routing for the market dashboard.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	markethourshandlers "github.com/aristath/marketdash/internal/modules/market_hours/handlers"
	quoteshandlers "github.com/aristath/marketdash/internal/modules/quotes/handlers"
)

// requestTimeout must cover the slowest logical fetch: several upstream
// attempts with pacing and backoff in between.
const requestTimeout = 60 * time.Second

// Config holds server configuration
type Config struct {
	Log         zerolog.Logger
	Port        int
	DevMode     bool
	Quotes      *quoteshandlers.Handler
	MarketHours *markethourshandlers.Handler
	System      *SystemHandlers
	Stream      *IndicesStreamHandler
}

// Server represents the HTTP server
type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	port    int
	quotes  *quoteshandlers.Handler
	market  *markethourshandlers.Handler
	system  *SystemHandlers
	stream  *IndicesStreamHandler
	devMode bool
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		log:     cfg.Log.With().Str("component", "server").Logger(),
		port:    cfg.Port,
		quotes:  cfg.Quotes,
		market:  cfg.MarketHours,
		system:  cfg.System,
		stream:  cfg.Stream,
		devMode: cfg.DevMode,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays unset: the websocket stream is long-lived and
		// regular routes are bounded by requestTimeout.
		IdleTimeout: 60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	// Websocket upgrades must not be wrapped by the timeout or compressor
	if s.stream != nil {
		s.router.Get("/api/indices/stream", s.stream.ServeHTTP)
	}

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		if !s.devMode {
			r.Use(middleware.Compress(5))
		}

		r.Get("/health", s.handleHealth)

		r.Route("/api", func(r chi.Router) {
			if s.quotes != nil {
				s.quotes.RegisterRoutes(r)
			}
			if s.market != nil {
				s.market.RegisterRoutes(r)
			}
			if s.system != nil {
				r.Get("/system/status", s.system.HandleSystemStatus)
			}
		})
	})
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
