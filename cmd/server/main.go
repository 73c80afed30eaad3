package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/imagingworks/pixels-dicom-connector/internal/cache"
	"github.com/imagingworks/pixels-dicom-connector/internal/config"
	"github.com/imagingworks/pixels-dicom-connector/internal/database"
	"github.com/imagingworks/pixels-dicom-connector/internal/datasource"
	"github.com/imagingworks/pixels-dicom-connector/internal/handlers"
	"github.com/imagingworks/pixels-dicom-connector/internal/middleware"
	"github.com/imagingworks/pixels-dicom-connector/internal/repository"
	"github.com/imagingworks/pixels-dicom-connector/internal/services"
	"github.com/imagingworks/pixels-dicom-connector/internal/store"
	"github.com/imagingworks/pixels-dicom-connector/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Initialize logger
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("warehouse_id", cfg.Warehouse.WarehouseID()).Msg("Starting Pixels DICOM Connector")

	// Connect to the audit database when enabled
	if cfg.Database.Enabled {
		if err := database.Connect(cfg.Database); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to audit database")
		}
		defer database.Close()
	} else {
		log.Info().Msg("Audit database disabled")
	}

	// Initialize cache
	var cacheImpl cache.Cache
	if cfg.Cache.Enabled && cfg.Cache.Type == "redis" {
		addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		cacheImpl, err = cache.NewRedisCache(addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		log.Info().Msg("Redis cache initialized")
	} else {
		cacheImpl = cache.NewMemoryCache()
		log.Info().Msg("Memory cache initialized")
	}

	// Viewer-side sinks shared by retrieval and write-back
	metadataStore := store.NewMemoryStore()
	registry := store.NewMemoryRegistry()

	// Initialize data source
	factory := datasource.NewFactory()
	defer factory.CloseAll()

	source, err := factory.Get("pixels", cfg.Warehouse, metadataStore, registry)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create data source")
	}

	// Initialize services
	auditRepo := repository.NewAuditRepository()
	imagingService := services.NewImagingService(source, cacheImpl, cfg.Cache.TTL, auditRepo)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler()
	pixelsHandler := handlers.NewPixelsHandler(imagingService)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Pixels data-source endpoints
	r.Route("/pixels", func(r chi.Router) {
		r.Get("/studies", pixelsHandler.SearchStudies)
		r.Get("/studies/resolve", pixelsHandler.ResolveStudyUIDs)
		r.Get("/studies/{studyUID}/series", pixelsHandler.SearchSeries)
		r.Get("/studies/{studyUID}/series/{seriesUID}/instances", pixelsHandler.SearchInstances)
		r.Get("/studies/{studyUID}/metadata", pixelsHandler.RetrieveSeriesMetadata)
		r.Post("/store", pixelsHandler.StoreDataset)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
