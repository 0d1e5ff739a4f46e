package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// cacheRules maps path prefixes to the Cache-Control directive their GET
// responses default to, most specific first. Entries churn with every ingest
// run so their listings stay short-lived; stored center-lines change rarely.
var cacheRules = []struct {
	prefix    string
	directive string
}{
	{"/v1/health", "public, max-age=10"},
	{"/v1/ready", "public, max-age=10"},
	{"/metrics", "no-cache"},
	{"/graphql", "private, max-age=0"},
	{"/v1/index/stats", "public, max-age=60"},
	{"/v1/entries/stats", "public, max-age=60"},
	{"/v1/entries", "public, max-age=30"},
	{"/v1/routes", "public, max-age=600"},
	{"/v1/", "public, max-age=300"},
}

// CachingMiddleware fills in a default Cache-Control on GET responses.
// Handlers that set the header themselves win.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != fiber.MethodGet {
			return err
		}
		if c.GetRespHeader(fiber.HeaderCacheControl) != "" {
			return err
		}

		path := c.Path()
		for _, rule := range cacheRules {
			if strings.HasPrefix(path, rule.prefix) {
				c.Set(fiber.HeaderCacheControl, rule.directive)
				break
			}
		}
		return err
	}
}
