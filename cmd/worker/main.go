package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/corridor/internal/adapters/memindex"
	natsadapter "github.com/samirrijal/corridor/internal/adapters/nats"
	"github.com/samirrijal/corridor/internal/adapters/postgres"
	"github.com/samirrijal/corridor/internal/adapters/valkey"
	"github.com/samirrijal/corridor/internal/core/domain"
	"github.com/samirrijal/corridor/internal/core/ports"
	"github.com/samirrijal/corridor/internal/core/usecases"
	"github.com/samirrijal/corridor/internal/pkg/config"
	"github.com/samirrijal/corridor/internal/pkg/logging"
	"github.com/samirrijal/corridor/internal/pkg/metrics"
	"github.com/samirrijal/corridor/internal/workflows"
)

// The worker runs the scheduled route scans and keeps non-postgres index
// backends in sync with the canonical entry store via JetStream events.
func main() {
	cfg, err := config.Load("corridor-worker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns))
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	entryRepo := postgres.NewEntryRepo(db)
	routeRepo := postgres.NewRouteRepo(db)

	// NATS publisher so scan results reach the same subjects as API-triggered
	// analyses
	publisher, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, scan events disabled", "error", err)
	} else {
		defer publisher.Close()
	}

	// Index backend
	var (
		geoIndex    ports.GeoIndex
		indexWriter ports.GeoIndexWriter
	)
	switch cfg.Corridor.IndexBackend {
	case config.IndexBackendValkey:
		vkClient, err := valkey.Connect(cfg.Valkey.Addr)
		if err != nil {
			log.Fatalf("valkey: %v", err)
		}
		defer vkClient.Close()
		vk := valkey.NewGeoIndex(vkClient, cfg.Corridor.GeoKey)
		geoIndex = vk
		indexWriter = vk

	case config.IndexBackendPostgres:
		// Nothing to sync: the entries table is the index.
		geoIndex = entryRepo

	case config.IndexBackendMemory:
		mem := memindex.New()
		if err := hydrateIndex(ctx, entryRepo, mem); err != nil {
			log.Fatalf("hydrate memory index: %v", err)
		}
		geoIndex = mem
		indexWriter = mem
	}

	// Entry events keep the writable backends fresh
	if indexWriter != nil {
		subscriber, err := natsadapter.NewSubscriber(cfg.NATS.URL)
		if err != nil {
			log.Fatalf("nats subscriber: %v", err)
		}
		defer subscriber.Close()

		if err := subscriber.SubscribeEntryEvents(ctx, applyEntryEvent(indexWriter)); err != nil {
			log.Fatalf("subscribe entry events: %v", err)
		}
		slog.Info("index sync consumer started", "backend", cfg.Corridor.IndexBackend)
	}

	var eventSink ports.EventPublisher
	if publisher != nil {
		eventSink = publisher
	}
	analysisSvc, err := usecases.NewAnalysisService(geoIndex, routeRepo, eventSink, cfg.Corridor.MaxConcurrentQueries)
	if err != nil {
		log.Fatalf("analysis service: %v", err)
	}

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.ScanRoutesWorkflow)
	w.RegisterActivity(&workflows.ScanActivities{
		Analysis:      analysisSvc,
		Routes:        routeRepo,
		DefaultWidthM: cfg.Corridor.DefaultBufferWidthM,
	})

	log.Println("corridor worker started")
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

// applyEntryEvent mirrors one entry mutation into the index.
func applyEntryEvent(ix ports.GeoIndexWriter) func(ctx context.Context, event *domain.EntryEvent) error {
	return func(ctx context.Context, event *domain.EntryEvent) error {
		if event.Removed {
			if err := ix.Remove(ctx, event.Key); err != nil {
				return fmt.Errorf("remove %s from index: %w", event.Key, err)
			}
			metrics.IndexSyncOps.WithLabelValues("remove").Inc()
			return nil
		}
		if event.Location == nil {
			return nil
		}
		if err := ix.Add(ctx, event.Key, *event.Location); err != nil {
			return fmt.Errorf("add %s to index: %w", event.Key, err)
		}
		metrics.IndexSyncOps.WithLabelValues("add").Inc()
		return nil
	}
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
