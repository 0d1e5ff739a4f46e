package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
	"github.com/twpayne/go-polyline"

	"github.com/samirrijal/corridor/internal/core/domain"
	"github.com/samirrijal/corridor/internal/pkg/metrics"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	entryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Entry",
		Fields: graphql.Fields{
			"key":        &graphql.Field{Type: graphql.String},
			"location":   &graphql.Field{Type: geoPointType},
			"updated_at": &graphql.Field{Type: graphql.DateTime},
		},
	})

	routeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Route",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.String},
			"slug":       &graphql.Field{Type: graphql.String},
			"name":       &graphql.Field{Type: graphql.String},
			"length_m":   &graphql.Field{Type: graphql.Float},
			"created_at": &graphql.Field{Type: graphql.DateTime},
		},
	})

	matchType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Match",
		Fields: graphql.Fields{
			"key":      &graphql.Field{Type: graphql.String},
			"location": &graphql.Field{Type: geoPointType},
		},
	})

	legResultType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LegResult",
		Fields: graphql.Fields{
			"start":         &graphql.Field{Type: geoPointType},
			"end":           &graphql.Field{Type: geoPointType},
			"distance":      &graphql.Field{Type: graphql.Float},
			"sample_points": &graphql.Field{Type: graphql.Int},
			"matches":       &graphql.Field{Type: graphql.NewList(matchType)},
		},
	})

	statsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "EntryStats",
		Fields: graphql.Fields{
			"total":        &graphql.Field{Type: graphql.Int},
			"last_updated": &graphql.Field{Type: graphql.DateTime},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"entry": &graphql.Field{
				Type:        entryType,
				Description: "Get an entry by key",
				Args: graphql.FieldConfigArgument{
					"key": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					key := p.Args["key"].(string)
					return deps.Entries.GetByKey(p.Context, key)
				},
			},
			"entries": &graphql.Field{
				Type:        graphql.NewList(entryType),
				Description: "List entries",
				Args: graphql.FieldConfigArgument{
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 100},
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					limit := p.Args["limit"].(int)
					offset := p.Args["offset"].(int)
					entries, _, err := deps.Entries.List(p.Context, limit, offset)
					return entries, err
				},
			},
			"route": &graphql.Field{
				Type:        routeType,
				Description: "Get a stored route by slug",
				Args: graphql.FieldConfigArgument{
					"slug": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					slug := p.Args["slug"].(string)
					return deps.Routes.GetBySlug(p.Context, slug)
				},
			},
			"routes": &graphql.Field{
				Type:        graphql.NewList(routeType),
				Description: "List stored routes",
				Args: graphql.FieldConfigArgument{
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 50},
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					limit := p.Args["limit"].(int)
					offset := p.Args["offset"].(int)
					routes, _, err := deps.Routes.List(p.Context, limit, offset)
					return routes, err
				},
			},
			"stats": &graphql.Field{
				Type:        statsType,
				Description: "Entry store statistics",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Entries.Stats(p.Context)
				},
			},
			"entriesNearby": &graphql.Field{
				Type:        graphql.NewList(matchType),
				Description: "Indexed entries within radiusKm of a point",
				Args: graphql.FieldConfigArgument{
					"lat":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"radiusKm": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 1.0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					center := domain.GeoPoint{
						Lat: p.Args["lat"].(float64),
						Lon: p.Args["lon"].(float64),
					}
					radiusKm := p.Args["radiusKm"].(float64)
					return deps.Analysis.Nearby(p.Context, center, radiusKm)
				},
			},
			"analyze": &graphql.Field{
				Type:        graphql.NewList(legResultType),
				Description: "Run a corridor analysis over an encoded polyline",
				Args: graphql.FieldConfigArgument{
					"polyline": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"width":    &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 0.0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					enc := p.Args["polyline"].(string)
					width := p.Args["width"].(float64)
					if width == 0 && deps.Config != nil {
						width = deps.Config.DefaultBufferWidthM
					}

					coords, _, err := polyline.DecodeCoords([]byte(enc))
					if err != nil {
						return nil, err
					}
					leg := make(domain.Leg, len(coords))
					for i, pair := range coords {
						leg[i] = domain.GeoPoint{Lat: pair[0], Lon: pair[1]}
					}

					start := time.Now()
					result, err := deps.Analysis.Analyze(p.Context, []domain.Leg{leg}, width)
					metrics.ObserveAnalysis("graphql", time.Since(start), result.MatchCount(), err)
					if err != nil {
						return nil, err
					}

					// Flatten the per-leg match maps into GraphQL-friendly lists
					out := make([]map[string]interface{}, len(result))
					for i, lr := range result {
						matches := make([]domain.IndexMatch, 0, len(lr.Matches))
						for _, m := range lr.Matches {
							matches = append(matches, m)
						}
						out[i] = map[string]interface{}{
							"start":         lr.Section.Start,
							"end":           lr.Section.End,
							"distance":      lr.Section.Distance,
							"sample_points": len(lr.Section.QueryPolyline),
							"matches":       matches,
						}
					}
					return out, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.Context(),
		})

		return c.JSON(result)
	}
}
