package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/corridor/internal/adapters/http"
	"github.com/samirrijal/corridor/internal/adapters/memindex"
	natsadapter "github.com/samirrijal/corridor/internal/adapters/nats"
	"github.com/samirrijal/corridor/internal/adapters/postgres"
	"github.com/samirrijal/corridor/internal/adapters/valkey"
	"github.com/samirrijal/corridor/internal/core/ports"
	"github.com/samirrijal/corridor/internal/core/usecases"
	"github.com/samirrijal/corridor/internal/pkg/config"
	"github.com/samirrijal/corridor/internal/pkg/logging"
	"github.com/samirrijal/corridor/internal/pkg/metrics"
	"github.com/samirrijal/corridor/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("corridor-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns))
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	entryRepo := postgres.NewEntryRepo(db)
	routeRepo := postgres.NewRouteRepo(db)

	// NATS
	publisher, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, events disabled", "error", err)
	} else {
		defer publisher.Close()
	}

	// Raw NATS connection for the WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	}

	// Index backend. The engine only needs QueryRadius; which store answers
	// it is a deployment choice.
	var (
		geoIndex    ports.GeoIndex
		indexWriter ports.GeoIndexWriter
		cache       ports.CacheService
		syncWrites  bool
	)
	switch cfg.Corridor.IndexBackend {
	case config.IndexBackendValkey:
		client, err := valkey.Connect(cfg.Valkey.Addr)
		if err != nil {
			log.Fatalf("valkey: %v", err)
		}
		defer client.Close()
		vk := valkey.NewGeoIndex(client, cfg.Corridor.GeoKey)
		geoIndex = vk
		indexWriter = vk
		cache = valkey.NewCache(client)

	case config.IndexBackendPostgres:
		// The entries table is the index; ST_DWithin answers QueryRadius
		// and writes need no separate sync.
		geoIndex = entryRepo

	case config.IndexBackendMemory:
		mem := memindex.New()
		if err := hydrateIndex(ctx, entryRepo, mem); err != nil {
			log.Fatalf("hydrate memory index: %v", err)
		}
		geoIndex = mem
		indexWriter = mem
		syncWrites = true
	}

	// Use cases
	var eventSink ports.EventPublisher
	if publisher != nil {
		eventSink = publisher
	}
	analysisSvc, err := usecases.NewAnalysisService(geoIndex, routeRepo, eventSink, cfg.Corridor.MaxConcurrentQueries)
	if err != nil {
		log.Fatalf("analysis service: %v", err)
	}
	entrySvc := usecases.NewEntryService(entryRepo, cache, eventSink)
	routeSvc := usecases.NewRouteService(routeRepo, cache)

	deps := &http.Dependencies{
		Analysis:   analysisSvc,
		Entries:    entrySvc,
		Routes:     routeSvc,
		Index:      indexWriter,
		SyncWrites: syncWrites,
		NATS:       natsConn,
		DB:         db,
		Cache:      cache,
		Config:     &cfg.Corridor,
	}

	// Pool and index gauges, refreshed out of band
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.UpdateDBPoolMetrics(db.Pool.Stat())
				if indexWriter != nil {
					if n, err := indexWriter.Count(ctx); err == nil {
						metrics.IndexEntries.Set(float64(n))
					}
				}
			}
		}
	}()

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Corridor API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "index_backend", cfg.Corridor.IndexBackend)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// hydrateIndex pages the canonical store into a fresh in-memory index.
func hydrateIndex(ctx context.Context, repo ports.EntryRepository, ix ports.GeoIndexWriter) error {
	const pageSize = 500
	offset := 0
	for {
		entries, total, err := repo.List(ctx, pageSize, offset)
		if err != nil {
			return fmt.Errorf("list entries at offset %d: %w", offset, err)
		}
		if len(entries) == 0 {
			break
		}
		if err := ix.AddBatch(ctx, entries); err != nil {
			return fmt.Errorf("index batch at offset %d: %w", offset, err)
		}
		offset += len(entries)
		if offset >= total {
			break
		}
	}
	slog.Info("memory index hydrated", "entries", offset)
	return nil
}
