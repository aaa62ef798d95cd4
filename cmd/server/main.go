package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/truecost/backend/config"
	httpDelivery "github.com/truecost/backend/internal/delivery/http"
	"github.com/truecost/backend/internal/infrastructure/cache"
	"github.com/truecost/backend/internal/infrastructure/catalog"
	"github.com/truecost/backend/internal/observability"
	"github.com/truecost/backend/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("TRUECOST_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "truecost-backend",
	})

	logger.Info().
		Str("environment", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Str("cache", cfg.Cache.Type).
		Dur("cache_ttl", cfg.Cache.TTL).
		Msg("starting TrueCost backend")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize infrastructure dependencies
	store, err := cache.New(ctx, cache.Options{Type: cfg.Cache.Type, RedisURL: cfg.Cache.RedisURL})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize cache")
	}
	defer store.Close()

	client := catalog.NewClient(catalog.ClientConfig{
		UserAgent:         cfg.Catalog.UserAgent,
		Timeout:           cfg.Catalog.Timeout,
		MaxAttempts:       cfg.Catalog.MaxAttempts,
		RequestsPerSecond: cfg.RateLimit.CatalogRPS,
		Burst:             cfg.RateLimit.CatalogBurst,
	}, logger)

	// Enable debug mode in development environment
	if cfg.Server.Environment == "development" {
		client.SetDebug(true)
		logger.Debug().Msg("catalog client debug mode enabled")
	}

	// Initialize usecase layer
	retrieval := usecase.NewRetrievalService(client, store, usecase.RetrievalConfig{
		DialectAPageSize:     cfg.Catalog.DialectAPageSize,
		DialectAParallelism:  cfg.Catalog.DialectAParallelism,
		DialectBPageSize:     cfg.Catalog.DialectBPageSize,
		DialectBParallelism:  cfg.Catalog.DialectBParallelism,
		DialectBWaitTimeout:  cfg.Catalog.DialectBWaitTimeout,
		DialectBPollInterval: cfg.Catalog.DialectBPollInterval,
		TaxMultiplier:        cfg.Catalog.TaxMultiplier,
		CacheTTL:             cfg.Cache.TTL,
		Discovery: usecase.DiscoveryConfig{
			ListingMarker:       cfg.Discovery.ListingMarker,
			QueryMarkers:        cfg.Discovery.QueryMarkers,
			DialectBHostMarker:  cfg.Discovery.DialectBHostMarker,
			DialectBPathMarkers: cfg.Discovery.DialectBPathMarkers,
		},
	}, logger)

	sortConfig := usecase.SortEngineConfig{
		DebounceWindow: cfg.Sort.DebounceWindow,
		SettleDelay:    cfg.Sort.SettleDelay,
		Selectors:      cfg.Selectors,
	}

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(retrieval, sortConfig, logger)
	router := httpDelivery.SetupRouter(cfg, handler, logger)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
