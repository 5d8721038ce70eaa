package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"

	"docsearch/internal/http/middleware"
	"docsearch/internal/service"
)

// DefaultDownloadExpiry is how long a presigned download link stays valid.
const DefaultDownloadExpiry = 15 * time.Minute

// Services groups the use cases exposed over HTTP.
type Services struct {
	Upload service.UploadService
	Query  service.QueryService
	Search service.SearchService
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Every /documents route requires the X-User-ID header.
func RegisterRoutes(app *fiber.App, db *sql.DB, svc Services) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	docs := app.Group("/documents", middleware.Owner())
	docs.Get("/", ListDocuments(svc.Query))
	docs.Post("/upload", UploadDocument(svc.Upload))
	docs.Post("/search", SearchDocuments(svc.Search))
	docs.Get("/:id", GetDocument(svc.Query))
	docs.Get("/:id/download", DownloadDocument(svc.Query, DefaultDownloadExpiry))
}

// HealthCheck godoc
// @Summary Readiness probe
// @Description Pings the database.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} errorPayload
// @Router /health [get]
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if db == nil || db.PingContext(ctx) != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe answers 200 while the process is up.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}
