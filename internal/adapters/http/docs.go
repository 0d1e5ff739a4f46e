package http

import (
	"os"
	"sync"

	"github.com/gofiber/fiber/v2"
)

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Corridor API — Swagger UI</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
  <style>html{box-sizing:border-box}*,*::before,*::after{box-sizing:inherit}body{margin:0;background:#fafafa}</style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: '/docs/openapi.yaml',
      dom_id: '#swagger-ui',
      deepLinking: true,
      presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
      layout: 'BaseLayout',
    });
  </script>
</body>
</html>`

// openapiDoc caches the contract bytes after the first read. The YAML ships
// alongside the binary and does not change while the process runs; a missing
// file therefore stays missing until restart.
var openapiDoc struct {
	once sync.Once
	data []byte
	err  error
}

// SetupDocs serves Swagger UI at /docs and the raw OpenAPI contract at
// /docs/openapi.yaml, the latter from memory after the first request.
func SetupDocs(app *fiber.App) {
	app.Get("/docs", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, "text/html; charset=utf-8")
		return c.SendString(swaggerUIHTML)
	})

	app.Get("/docs/openapi.yaml", func(c *fiber.Ctx) error {
		openapiDoc.once.Do(func() {
			openapiDoc.data, openapiDoc.err = os.ReadFile("api/openapi.yaml")
		})
		if openapiDoc.err != nil {
			return errNotFound(c, "openapi contract not available")
		}
		c.Set(fiber.HeaderContentType, "application/yaml")
		c.Set(fiber.HeaderCacheControl, "public, max-age=3600")
		return c.Send(openapiDoc.data)
	})
}
