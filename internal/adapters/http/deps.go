package http

import (
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/corridor/internal/adapters/postgres"
	"github.com/samirrijal/corridor/internal/core/ports"
	"github.com/samirrijal/corridor/internal/core/usecases"
	"github.com/samirrijal/corridor/internal/pkg/config"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Analysis *usecases.AnalysisService
	Entries  *usecases.EntryService
	Routes   *usecases.RouteService

	// Index is the writable side of the configured index backend; nil for
	// the postgres backend, where the entries table is the index.
	Index ports.GeoIndexWriter

	// SyncWrites applies entry writes to Index inline. Set for the memory
	// backend, which has no event consumer to keep it fresh.
	SyncWrites bool

	NATS   *nats.Conn
	DB     *postgres.DB
	Cache  ports.CacheService
	Config *config.CorridorConfig
}
