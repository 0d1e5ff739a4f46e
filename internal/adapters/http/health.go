package http

import (
	"context"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler reports liveness plus process uptime and build version.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()
	version := "devel"
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" {
		version = bi.Main.Version
	}

	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).String(),
			"version": version,
		})
	}
}

// ReadyHandler reports whether the process can serve analysis traffic: the
// canonical store must be reachable, and the broker, cache, and index
// backend must answer when configured.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
		defer cancel()

		checks := make(map[string]string)
		ready := true
		fail := func(name string, err error) {
			checks[name] = "error: " + err.Error()
			ready = false
		}

		if deps.DB == nil {
			checks["database"] = "not configured"
			ready = false
		} else if err := deps.DB.Pool.Ping(ctx); err != nil {
			fail("database", err)
		} else {
			checks["database"] = "ok"
		}

		if deps.NATS == nil {
			checks["nats"] = "not configured"
		} else if deps.NATS.IsConnected() {
			checks["nats"] = "ok"
		} else {
			checks["nats"] = "disconnected"
			ready = false
		}

		if deps.Cache == nil {
			checks["cache"] = "not configured"
		} else if err := deps.Cache.Set(ctx, "ready:probe", []byte("1"), time.Second); err != nil {
			// A write round-trip proves connectivity; the key expires on its own.
			fail("cache", err)
		} else {
			checks["cache"] = "ok"
		}

		// Nil for the postgres backend, where the entries table is the index
		// and the database ping covers it.
		if deps.Index != nil {
			if n, err := deps.Index.Count(ctx); err != nil {
				fail("index", err)
			} else {
				checks["index"] = "ok (" + strconv.FormatInt(n, 10) + " keys)"
			}
		}

		code := fiber.StatusOK
		status := "ready"
		if !ready {
			code = fiber.StatusServiceUnavailable
			status = "not ready"
		}
		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}
