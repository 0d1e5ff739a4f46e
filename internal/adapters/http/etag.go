package http

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ETagMiddleware attaches a weak validator to successful GET responses and
// short-circuits to 304 when the client already holds the current body.
// Analysis responses over wide corridors run to hundreds of kilobytes, so
// the validator uses FNV-64a rather than a cryptographic digest: a collision
// only costs a stale cache hit, never correctness of stored data.
func ETagMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := c.Next(); err != nil {
			return err
		}

		if c.Method() != fiber.MethodGet || c.Response().StatusCode() != fiber.StatusOK {
			return nil
		}
		body := c.Response().Body()
		if len(body) == 0 {
			return nil
		}

		h := fnv.New64a()
		h.Write(body)
		etag := fmt.Sprintf(`W/"%d-%x"`, len(body), h.Sum64())
		c.Set(fiber.HeaderETag, etag)

		if clientHas(c.Get(fiber.HeaderIfNoneMatch), etag) {
			c.Status(fiber.StatusNotModified)
			c.Response().ResetBody()
		}
		return nil
	}
}

// clientHas reports whether the If-None-Match header names the given
// validator. Handles the `*` wildcard and comma-separated lists.
func clientHas(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	if ifNoneMatch == "*" {
		return true
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		if strings.TrimSpace(candidate) == etag {
			return true
		}
	}
	return false
}
