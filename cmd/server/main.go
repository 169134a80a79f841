// Package main is the entry point for the market dashboard backend.
//
// The server proxies the NSE website's JSON API for a browser dashboard. NSE
// guards the API with anti-bot cookies and rate limits, so every upstream call
// goes through a shared session manager, a short-TTL response cache and a
// bounded retry loop. Last-known-good payloads are persisted to SQLite so that
// index endpoints can degrade gracefully across restarts.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/marketdash/internal/cache"
	"github.com/aristath/marketdash/internal/clientdata"
	"github.com/aristath/marketdash/internal/clients/nse"
	"github.com/aristath/marketdash/internal/clock"
	"github.com/aristath/marketdash/internal/config"
	"github.com/aristath/marketdash/internal/database"
	"github.com/aristath/marketdash/internal/modules/market_hours"
	markethourshandlers "github.com/aristath/marketdash/internal/modules/market_hours/handlers"
	"github.com/aristath/marketdash/internal/modules/quotes"
	quoteshandlers "github.com/aristath/marketdash/internal/modules/quotes/handlers"
	"github.com/aristath/marketdash/internal/scheduler"
	"github.com/aristath/marketdash/internal/server"
	"github.com/aristath/marketdash/pkg/logger"
)

const snapshotDBFile = "snapshots.db"

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Int("port", cfg.Port).
		Str("upstream", cfg.Upstream.BaseURL).
		Bool("snapshots", cfg.Snapshot.Enabled).
		Msg("Starting market dashboard")

	clk := clock.New()

	// Snapshot persistence is optional; without it fallbacks are memory-only
	var (
		snapshotDB   *database.DB
		snapshotRepo *clientdata.Repository
	)
	if cfg.Snapshot.Enabled {
		snapshotDB, snapshotRepo, err = openSnapshots(cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize snapshot store")
		}
		defer snapshotDB.Close()
	}

	// Upstream client: one HTTP client, one session, one cache
	httpClient := nse.NewHTTPClient(cfg.Upstream.RequestTimeout)
	responseCache := cache.New(cfg.Upstream.CacheTTL)

	session := nse.NewSessionManager(nse.SessionConfig{
		BaseURL:        cfg.Upstream.BaseURL,
		ReferencePath:  cfg.Upstream.ReferencePath,
		TTL:            cfg.Upstream.SessionTTL,
		Retries:        cfg.Upstream.SessionRetries,
		Backoff:        cfg.Upstream.SessionBackoff,
		HandshakeDelay: cfg.Upstream.HandshakeDelay,
	}, httpClient, clk, log)

	var snapshots nse.SnapshotStore
	if snapshotRepo != nil {
		snapshots = snapshotRepo
	}

	nseClient := nse.NewClient(nse.ClientConfig{
		BaseURL:      cfg.Upstream.BaseURL,
		FetchRetries: cfg.Upstream.FetchRetries,
		RetryPacing:  cfg.Upstream.RetryPacing,
		RetryBackoff: cfg.Upstream.RetryBackoff,
	}, httpClient, session, responseCache, snapshots, clk, log)

	// Services and handlers
	marketHours := market_hours.NewMarketHoursService()
	quotesService := quotes.NewService(nseClient, marketHours, clk, quotes.Config{
		StockFetchRetries: cfg.Upstream.StockFetchRetries,
		IndicesJitter:     cfg.IndicesJitter,
	}, log)

	var snapshotCounter server.SnapshotCounter
	if snapshotRepo != nil {
		snapshotCounter = snapshotRepo
	}

	srv := server.New(server.Config{
		Log:         log,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
		Quotes:      quoteshandlers.NewHandler(quotesService, log),
		MarketHours: markethourshandlers.NewHandler(marketHours, log),
		System:      server.NewSystemHandlers(log, responseCache, session, snapshotCounter, snapshotDB, marketHours),
		Stream:      server.NewIndicesStreamHandler(quotesService, cfg.StreamInterval, log),
	})

	// Background maintenance of the snapshot store
	sched := scheduler.New(log)
	if snapshotRepo != nil {
		if err := sched.AddJob(cfg.Snapshot.CleanupSchedule, clientdata.NewCleanupJob(snapshotRepo, log)); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule snapshot cleanup")
		}
		if err := sched.AddJob(cfg.Snapshot.MaintenanceSchedule, scheduler.NewDatabaseMaintenanceJob(snapshotDB, log)); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule database maintenance")
		}
	}
	sched.Start()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	sched.Stop()

	// Give in-flight requests up to 10 seconds to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func openSnapshots(cfg *config.Config, log zerolog.Logger) (*database.DB, *clientdata.Repository, error) {
	db, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, snapshotDBFile),
		Name: "snapshots",
	})
	if err != nil {
		return nil, nil, err
	}

	if err := db.Migrate(clientdata.Schema); err != nil {
		db.Close()
		return nil, nil, err
	}

	repo := clientdata.NewRepository(db.Conn(), cfg.Snapshot.TTL)

	// Drop anything that expired while the process was down
	if removed, err := repo.DeleteExpired(time.Now()); err != nil {
		log.Warn().Err(err).Msg("Failed to prune expired snapshots")
	} else if removed > 0 {
		log.Info().Int64("removed", removed).Msg("Pruned expired snapshots")
	}

	log.Info().Str("path", db.Path()).Msg("Snapshot store ready")
	return db, repo, nil
}
