package http

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/twpayne/go-polyline"

	"github.com/samirrijal/corridor/internal/core/domain"
	"github.com/samirrijal/corridor/internal/core/usecases"
	"github.com/samirrijal/corridor/internal/pkg/metrics"
	"github.com/samirrijal/corridor/internal/pkg/telemetry"
)

// analyzeRequest is the POST /v1/analysis body. Legs carry [lat, lon] pairs;
// polylines are Google-encoded alternatives for the same geometry. Exactly
// one of the two must be set.
type analyzeRequest struct {
	Legs         [][][2]float64 `json:"legs,omitempty"`
	Polylines    []string       `json:"polylines,omitempty"`
	BufferWidthM float64        `json:"buffer_width_m,omitempty"`
}

// analyzeResponse wraps the per-leg results with the run parameters.
type analyzeResponse struct {
	BufferWidthM float64               `json:"buffer_width_m"`
	Legs         int                   `json:"legs"`
	Matches      int                   `json:"matches"`
	Results      domain.AnalysisResult `json:"results"`
}

// AnalyzeHandler runs a corridor analysis over the geometry in the request
// body. No per-request timeout: wide corridors over long lines legitimately
// take a while, and the client canceling the connection cancels the queries.
func AnalyzeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req analyzeRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		legs, err := parseLegs(&req, deps)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		width := req.BufferWidthM
		if width == 0 && deps.Config != nil {
			width = deps.Config.DefaultBufferWidthM
		}

		ctx, span := telemetry.Tracer().Start(c.Context(), "analyze")
		span.SetAttributes(
			telemetry.AttrLegs.Int(len(legs)),
			telemetry.AttrBufferWidthM.Float64(width),
		)
		defer span.End()

		start := time.Now()
		result, err := deps.Analysis.Analyze(ctx, legs, width)
		metrics.ObserveAnalysis("api", time.Since(start), result.MatchCount(), err)
		if err != nil {
			return analysisError(c, err)
		}
		span.SetAttributes(telemetry.AttrMatches.Int(result.MatchCount()))

		return c.JSON(analyzeResponse{
			BufferWidthM: width,
			Legs:         len(result),
			Matches:      result.MatchCount(),
			Results:      result,
		})
	}
}

// AnalyzeRouteHandler runs a corridor analysis over a stored route.
// POST /v1/routes/:slug/analyze?width=50
func AnalyzeRouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		slug := c.Params("slug")
		if slug == "" {
			return errBadRequest(c, "route slug is required")
		}

		width := c.QueryFloat("width", 0)
		if width == 0 && deps.Config != nil {
			width = deps.Config.DefaultBufferWidthM
		}

		ctx, span := telemetry.Tracer().Start(c.Context(), "analyze_route")
		span.SetAttributes(
			telemetry.AttrRoute.String(slug),
			telemetry.AttrBufferWidthM.Float64(width),
		)
		defer span.End()

		start := time.Now()
		result, route, err := deps.Analysis.AnalyzeRoute(ctx, slug, width)
		var matches int
		if err == nil {
			matches = result.MatchCount()
		}
		metrics.ObserveAnalysis("route", time.Since(start), matches, err)
		if err != nil {
			return analysisError(c, err)
		}
		span.SetAttributes(telemetry.AttrMatches.Int(matches))

		return c.JSON(fiber.Map{
			"route": fiber.Map{
				"slug":     route.Slug,
				"name":     route.Name,
				"length_m": route.LengthM,
			},
			"buffer_width_m": width,
			"matches":        matches,
			"results":        result,
		})
	}
}

// parseLegs converts the request geometry into domain legs and enforces the
// configured size limits.
func parseLegs(req *analyzeRequest, deps *Dependencies) ([]domain.Leg, error) {
	if len(req.Legs) > 0 && len(req.Polylines) > 0 {
		return nil, errors.New("provide legs or polylines, not both")
	}

	var legs []domain.Leg
	switch {
	case len(req.Legs) > 0:
		legs = make([]domain.Leg, len(req.Legs))
		for i, rawLeg := range req.Legs {
			leg := make(domain.Leg, len(rawLeg))
			for j, pair := range rawLeg {
				leg[j] = domain.GeoPoint{Lat: pair[0], Lon: pair[1]}
			}
			legs[i] = leg
		}
	case len(req.Polylines) > 0:
		legs = make([]domain.Leg, len(req.Polylines))
		for i, enc := range req.Polylines {
			coords, _, err := polyline.DecodeCoords([]byte(enc))
			if err != nil {
				return nil, fmt.Errorf("polyline %d is not decodable", i)
			}
			leg := make(domain.Leg, len(coords))
			for j, pair := range coords {
				leg[j] = domain.GeoPoint{Lat: pair[0], Lon: pair[1]}
			}
			legs[i] = leg
		}
	default:
		return nil, errors.New("legs or polylines are required")
	}

	if cfg := deps.Config; cfg != nil {
		if len(legs) > cfg.MaxLegs {
			return nil, fmt.Errorf("too many legs: %d (max %d)", len(legs), cfg.MaxLegs)
		}
		for i, leg := range legs {
			if len(leg) > cfg.MaxLegPoints {
				return nil, fmt.Errorf("leg %d has too many points: %d (max %d)", i, len(leg), cfg.MaxLegPoints)
			}
		}
	}
	return legs, nil
}

// analysisError maps service errors to HTTP statuses: validation failures
// are the caller's fault, everything else is ours.
func analysisError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, usecases.ErrWidthTooNarrow),
		errors.Is(err, usecases.ErrWidthNotFinite),
		errors.Is(err, usecases.ErrLegTooShort):
		return errBadRequest(c, err.Error())
	case errors.Is(err, usecases.ErrRouteNotFound):
		return errNotFound(c, err.Error())
	default:
		return errInternal(c, err.Error())
	}
}

// entryRequest is the PUT /v1/entries/:key and batch POST body element.
type entryRequest struct {
	Key      string          `json:"key,omitempty"`
	Location domain.GeoPoint `json:"location"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// UpsertEntryHandler creates or replaces a single entry.
func UpsertEntryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Params("key")
		if key == "" {
			return errBadRequest(c, "entry key is required")
		}

		var req entryRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		entry := &domain.Entry{Key: key, Location: req.Location, Metadata: req.Metadata}
		if err := deps.Entries.Upsert(c.Context(), entry); err != nil {
			if errors.Is(err, usecases.ErrInvalidLocation) {
				return errBadRequest(c, err.Error())
			}
			return errInternal(c, err.Error())
		}

		if deps.SyncWrites && deps.Index != nil {
			_ = deps.Index.Add(c.Context(), entry.Key, entry.Location)
		}
		metrics.EntriesIngested.WithLabelValues("api").Inc()

		return c.Status(fiber.StatusOK).JSON(entry)
	}
}

// BatchUpsertEntriesHandler ingests a batch of entries in one call.
func BatchUpsertEntriesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			Entries []entryRequest `json:"entries"`
		}
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Entries) == 0 {
			return errBadRequest(c, "at least one entry is required")
		}
		if len(req.Entries) > 10000 {
			return errBadRequest(c, "maximum 10000 entries per batch")
		}

		entries := make([]domain.Entry, len(req.Entries))
		for i, e := range req.Entries {
			if e.Key == "" {
				return errBadRequest(c, fmt.Sprintf("entry %d is missing a key", i))
			}
			entries[i] = domain.Entry{Key: e.Key, Location: e.Location, Metadata: e.Metadata}
		}

		if err := deps.Entries.UpsertBatch(c.Context(), entries); err != nil {
			if errors.Is(err, usecases.ErrInvalidLocation) {
				return errBadRequest(c, err.Error())
			}
			return errInternal(c, err.Error())
		}

		if deps.SyncWrites && deps.Index != nil {
			_ = deps.Index.AddBatch(c.Context(), entries)
		}
		metrics.EntriesIngested.WithLabelValues("batch").Add(float64(len(entries)))

		return c.JSON(fiber.Map{"upserted": len(entries)})
	}
}

// GetEntryHandler returns a single entry by key.
func GetEntryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Params("key")
		if key == "" {
			return errBadRequest(c, "entry key is required")
		}
		entry, err := deps.Entries.GetByKey(c.Context(), key)
		if err != nil {
			return errInternal(c, err.Error())
		}
		if entry == nil {
			return errNotFound(c, "entry not found")
		}
		return c.JSON(entry)
	}
}

// ListEntriesHandler returns a page of entries.
func ListEntriesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		offset, limit := ParsePagination(c, 100)

		entries, total, err := deps.Entries.List(c.Context(), limit, offset)
		if err != nil {
			return errInternal(c, err.Error())
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: entries, Pagination: pg})
	}
}

// DeleteEntryHandler removes an entry.
func DeleteEntryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Params("key")
		if key == "" {
			return errBadRequest(c, "entry key is required")
		}
		if err := deps.Entries.Delete(c.Context(), key); err != nil {
			return errInternal(c, err.Error())
		}
		if deps.SyncWrites && deps.Index != nil {
			_ = deps.Index.Remove(c.Context(), key)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// EntryStatsHandler returns counts over the canonical entry store.
func EntryStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stats, err := deps.Entries.Stats(c.Context())
		if err != nil {
			return errInternal(c, err.Error())
		}
		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(stats)
	}
}

// NearbyEntriesHandler answers one circular radius query against the live
// index. GET /v1/entries/nearby?lat=43.263&lon=-2.935&radius_km=1
func NearbyEntriesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lat := c.QueryFloat("lat", math.NaN())
		lon := c.QueryFloat("lon", math.NaN())
		if math.IsNaN(lat) || math.IsNaN(lon) {
			return errBadRequest(c, "lat and lon query parameters are required")
		}
		radiusKm := c.QueryFloat("radius_km", 1)

		matches, err := deps.Analysis.Nearby(c.Context(), domain.GeoPoint{Lat: lat, Lon: lon}, radiusKm)
		if err != nil {
			if errors.Is(err, usecases.ErrInvalidLocation) || errors.Is(err, usecases.ErrRadiusInvalid) {
				return errBadRequest(c, err.Error())
			}
			return errInternal(c, err.Error())
		}

		return c.JSON(fiber.Map{
			"center":    domain.GeoPoint{Lat: lat, Lon: lon},
			"radius_km": radiusKm,
			"count":     len(matches),
			"matches":   matches,
		})
	}
}

// routeRequest is the PUT /v1/routes/:slug body. Coordinates carry
// [lat, lon] pairs, same convention as analysis legs.
type routeRequest struct {
	Name        string       `json:"name"`
	Coordinates [][2]float64 `json:"coordinates"`
}

// UpsertRouteHandler stores a named corridor center-line.
func UpsertRouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		slug := c.Params("slug")
		if slug == "" {
			return errBadRequest(c, "route slug is required")
		}

		var req routeRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		coords := make([]domain.GeoPoint, len(req.Coordinates))
		for i, pair := range req.Coordinates {
			coords[i] = domain.GeoPoint{Lat: pair[0], Lon: pair[1]}
		}

		route := &domain.Route{
			Slug:  slug,
			Name:  req.Name,
			Shape: domain.GeoLineString{Coordinates: coords},
		}
		if err := deps.Routes.Upsert(c.Context(), route); err != nil {
			if errors.Is(err, usecases.ErrShapeTooShort) || errors.Is(err, usecases.ErrSlugRequired) {
				return errBadRequest(c, err.Error())
			}
			return errInternal(c, err.Error())
		}
		return c.JSON(route)
	}
}

// GetRouteHandler returns a stored route by slug.
func GetRouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		slug := c.Params("slug")
		if slug == "" {
			return errBadRequest(c, "route slug is required")
		}
		route, err := deps.Routes.GetBySlug(c.Context(), slug)
		if err != nil {
			return errInternal(c, err.Error())
		}
		if route == nil {
			return errNotFound(c, "route not found")
		}
		return c.JSON(route)
	}
}

// ListRoutesHandler returns a page of stored routes.
func ListRoutesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		offset, limit := ParsePagination(c, 50)

		routes, total, err := deps.Routes.List(c.Context(), limit, offset)
		if err != nil {
			return errInternal(c, err.Error())
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: routes, Pagination: pg})
	}
}

// DeleteRouteHandler removes a stored route.
func DeleteRouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		slug := c.Params("slug")
		if slug == "" {
			return errBadRequest(c, "route slug is required")
		}
		if err := deps.Routes.Delete(c.Context(), slug); err != nil {
			return errInternal(c, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// IndexStats holds operational counts for the index backend.
type IndexStats struct {
	Backend      string `json:"backend"`
	IndexedKeys  int64  `json:"indexed_keys"`
	StoredTotal  int64  `json:"stored_total"`
	LastUpdated  string `json:"last_updated,omitempty"`
	StoredRoutes int    `json:"stored_routes"`
}

// IndexStatsHandler reports whether the index has drifted from the canonical
// store. For the postgres backend the two are the same table.
func IndexStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stats := IndexStats{Backend: "postgres"}
		if deps.Config != nil {
			stats.Backend = deps.Config.IndexBackend
		}

		entryStats, err := deps.Entries.Stats(c.Context())
		if err != nil {
			return errInternal(c, err.Error())
		}
		stats.StoredTotal = entryStats.Total
		if entryStats.LastUpdated != nil {
			stats.LastUpdated = entryStats.LastUpdated.UTC().Format(time.RFC3339)
		}

		if deps.Index != nil {
			n, err := deps.Index.Count(c.Context())
			if err != nil {
				return errInternal(c, err.Error())
			}
			stats.IndexedKeys = n
		} else {
			stats.IndexedKeys = entryStats.Total
		}

		if _, total, err := deps.Routes.List(c.Context(), 1, 0); err == nil {
			stats.StoredRoutes = total
		}

		metrics.IndexEntries.Set(float64(stats.IndexedKeys))

		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(stats)
	}
}
