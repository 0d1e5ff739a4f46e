package http

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

// analyzeSunset is when the legacy /v1/analyze alias stops being served.
var analyzeSunset = time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)

// DeprecationMiddleware adds Deprecation, Sunset, and Link headers to a
// deprecated route, pointing clients at its successor. Mount it per-route
// ahead of the handler so the headers ride along with the real response.
func DeprecationMiddleware(successor string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// RFC 8594 Deprecation header
		c.Set("Deprecation", "true")

		// RFC 8594 Sunset header (HTTP-Date format)
		c.Set("Sunset", analyzeSunset.UTC().Format(time.RFC1123))

		// RFC 8288 Link header pointing at the replacement
		if successor != "" {
			c.Set("Link", fmt.Sprintf(`<%s>; rel="successor-version"`, successor))
		}

		// Warning header (optional, RFC 7234)
		days := time.Until(analyzeSunset).Hours() / 24
		c.Set("Warning", fmt.Sprintf(`299 - "Deprecated API, will sunset in %.0f days"`, days))

		return c.Next()
	}
}
