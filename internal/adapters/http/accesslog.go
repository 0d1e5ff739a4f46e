package http

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Paths whose requests are scrape/UI noise; logging them at info would
// drown the analysis traffic the log exists for.
var quietPaths = map[string]bool{
	"/metrics":           true,
	"/docs":              true,
	"/docs/openapi.yaml": true,
	"/v1/health":         true,
	"/v1/ready":          true,
}

// AccessLogMiddleware emits one structured slog record per request. The
// level follows the outcome: 2xx/3xx at info, 4xx at warn, 5xx and handler
// errors at error. Scrape endpoints only surface when they fail.
func AccessLogMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if quietPaths[c.Path()] && status < 400 && err == nil {
			return err
		}

		attrs := []slog.Attr{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.Int("bytes_in", len(c.Body())),
			slog.Int("bytes_out", len(c.Response().Body())),
		}
		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			attrs = append(attrs, slog.String("request_id", rid))
		}
		if ip := c.IP(); ip != "" {
			attrs = append(attrs, slog.String("client_ip", ip))
		}

		level := slog.LevelInfo
		switch {
		case err != nil || status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}

		slog.LogAttrs(c.Context(), level, "http request", attrs...)
		return err
	}
}
