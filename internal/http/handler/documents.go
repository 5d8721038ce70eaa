package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"docsearch/internal/http/middleware"
	"docsearch/internal/service"
)

const defaultSearchLimit = 10

type searchRequest struct {
	Query string `json:"query"`
	Limit *int   `json:"limit"`
}

// UploadDocument godoc
// @Summary Upload a PDF
// @Description Stores the file and queues it for text extraction and embedding.
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param X-User-ID header string true "Owner id (UUID)"
// @Param file formData file true "PDF file, at most 50MB"
// @Success 201 {object} service.DocumentSummary
// @Failure 400 {object} errorPayload
// @Failure 401 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /documents/upload [post]
func UploadDocument(svc service.UploadService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		ct := fh.Header.Get("Content-Type")
		if ct == "" {
			ct = "application/octet-stream"
		}

		res, err := svc.Upload(c.UserContext(), f, fh.Filename, ct, fh.Size, middleware.OwnerFromCtx(c))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}

// ListDocuments godoc
// @Summary List the caller's documents
// @Tags documents
// @Produce json
// @Param X-User-ID header string true "Owner id (UUID)"
// @Success 200 {array} service.DocumentDetails
// @Failure 401 {object} errorPayload
// @Router /documents [get]
func ListDocuments(svc service.QueryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := svc.List(c.UserContext(), middleware.OwnerFromCtx(c))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// GetDocument godoc
// @Summary Get document status and metadata
// @Tags documents
// @Produce json
// @Param X-User-ID header string true "Owner id (UUID)"
// @Param id path string true "Document id"
// @Success 200 {object} service.DocumentDetails
// @Failure 400 {object} errorPayload
// @Failure 403 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /documents/{id} [get]
func GetDocument(svc service.QueryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		res, err := svc.Get(c.UserContext(), id, middleware.OwnerFromCtx(c))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// DownloadDocument godoc
// @Summary Presigned link to the raw PDF
// @Tags documents
// @Produce json
// @Param X-User-ID header string true "Owner id (UUID)"
// @Param id path string true "Document id"
// @Success 200 {object} service.DownloadLink
// @Failure 403 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Router /documents/{id}/download [get]
func DownloadDocument(svc service.QueryService, expiry time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		res, err := svc.DownloadURL(c.UserContext(), id, middleware.OwnerFromCtx(c), expiry)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// SearchDocuments godoc
// @Summary Semantic search over the caller's processed documents
// @Tags documents
// @Accept json
// @Produce json
// @Param X-User-ID header string true "Owner id (UUID)"
// @Param request body searchRequest true "Query and result limit (1-50, default 10)"
// @Success 200 {array} service.SimilarDocument
// @Failure 400 {object} errorPayload
// @Failure 401 {object} errorPayload
// @Router /documents/search [post]
func SearchDocuments(svc service.SearchService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req searchRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "request body must be JSON with query and limit")
		}
		limit := defaultSearchLimit
		if req.Limit != nil {
			limit = *req.Limit
		}

		res, err := svc.Search(c.UserContext(), req.Query, middleware.OwnerFromCtx(c), limit)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}
