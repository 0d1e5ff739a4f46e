package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"
	"github.com/samirrijal/corridor/internal/pkg/metrics"
)

// apiVersion is advertised on every response.
const apiVersion = "1.0.0"

// crudTimeout bounds CRUD handlers. Analysis routes carry no timeout: a wide
// corridor over a long line fans out thousands of index queries, and the
// caller's context governs cancelation.
const crudTimeout = 15 * time.Second

// SetupRoutes registers middleware and all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	setupMiddleware(app)
	setupREST(app, deps)

	app.Post("/graphql", GraphQLHandler(deps))
	SetupDocs(app)
	setupWebSocket(app, deps)
}

func setupMiddleware(app *fiber.App) {
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Per-IP request budget. Probe and scrape endpoints stay outside the
	// budget so dashboards cannot starve API clients.
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		Next: func(c *fiber.Ctx) bool {
			return quietPaths[c.Path()]
		},
		LimitReached: func(c *fiber.Ctx) error {
			return writeError(c, codeRateLimited, "request budget exhausted, retry later")
		},
	}))

	app.Use(securityHeaders)
	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())
}

func securityHeaders(c *fiber.Ctx) error {
	c.Set("X-Content-Type-Options", "nosniff")
	c.Set("X-Frame-Options", "DENY")
	c.Set("X-XSS-Protection", "1; mode=block")
	c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	c.Set("X-API-Version", apiVersion)
	return c.Next()
}

func setupREST(app *fiber.App, deps *Dependencies) {
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	crud := func(h fiber.Handler) fiber.Handler {
		return timeout.NewWithContext(h, crudTimeout)
	}

	v1 := app.Group("/v1")
	v1.Post("/analysis", AnalyzeHandler(deps))
	v1.Post("/analyze", DeprecationMiddleware("/v1/analysis"), AnalyzeHandler(deps))
	v1.Get("/entries", crud(ListEntriesHandler(deps)))
	v1.Post("/entries", crud(BatchUpsertEntriesHandler(deps)))
	v1.Get("/entries/stats", crud(EntryStatsHandler(deps)))
	v1.Get("/entries/nearby", crud(NearbyEntriesHandler(deps)))
	v1.Get("/entries/:key", crud(GetEntryHandler(deps)))
	v1.Put("/entries/:key", crud(UpsertEntryHandler(deps)))
	v1.Delete("/entries/:key", crud(DeleteEntryHandler(deps)))
	v1.Get("/routes", crud(ListRoutesHandler(deps)))
	v1.Get("/routes/:slug", crud(GetRouteHandler(deps)))
	v1.Put("/routes/:slug", crud(UpsertRouteHandler(deps)))
	v1.Delete("/routes/:slug", crud(DeleteRouteHandler(deps)))
	v1.Post("/routes/:slug/analyze", AnalyzeRouteHandler(deps))
	v1.Get("/index/stats", crud(IndexStatsHandler(deps)))
}

func setupWebSocket(app *fiber.App, deps *Dependencies) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
}
