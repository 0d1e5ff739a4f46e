package http

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

type loggerKeyType struct{}

var loggerKey loggerKeyType

// RequestIDLogMiddleware binds a request-scoped *slog.Logger carrying the
// request ID to the request context. The value rides the fasthttp context,
// so anything handed c.Context() downstream can recover it through
// LoggerFromCtx and its lines join up with the access log record.
func RequestIDLogMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid, _ := c.Locals("requestid").(string)
		if rid == "" {
			return c.Next()
		}
		c.Context().SetUserValue(loggerKey, slog.Default().With("request_id", rid))
		return c.Next()
	}
}

// LoggerFromCtx returns the request-scoped logger bound by
// RequestIDLogMiddleware, or the process default when ctx carries none.
func LoggerFromCtx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
