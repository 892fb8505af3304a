// Package http is the primary HTTP adapter: a thin Fiber layer translating
// requests into calls against the ingest and ocr core services.
package http

import (
	"io"
	"strconv"

	"ocr-job-service/internal/core/domain"
	"ocr-job-service/internal/core/services"
	"ocr-job-service/internal/ingest"
	pkgerrors "ocr-job-service/pkg/errors"
	"ocr-job-service/pkg/security"

	"github.com/gofiber/fiber/v2"
)

const maxListPageSize = 100

// Handler wires the Ingest and Query/Control APIs onto a Fiber router.
type Handler struct {
	ingest      *ingest.Service
	ocr         *services.Service
	tokenIssuer *security.TokenIssuer
}

func NewHandler(ingestSvc *ingest.Service, ocrSvc *services.Service, tokenIssuer *security.TokenIssuer) *Handler {
	return &Handler{ingest: ingestSvc, ocr: ocrSvc, tokenIssuer: tokenIssuer}
}

// SetupRoutes registers every route this service exposes.
func (h *Handler) SetupRoutes(app *fiber.App) {
	ocrGroup := app.Group("/ocr")
	ocrGroup.Post("/submit", h.Submit)
	ocrGroup.Get("/status/:job_id", h.Status)
	ocrGroup.Get("/result/:job_id", h.Result)
	ocrGroup.Get("/jobs", h.ListJobs)
	ocrGroup.Delete("/jobs/:job_id", h.requireControlToken, h.DeleteJob)

	app.Get("/health", h.Health)
}

// requireControlToken guards the delete endpoint with an optional bearer
// token; when no secret is configured the issuer is disabled and every
// request passes through unchecked.
func (h *Handler) requireControlToken(c *fiber.Ctx) error {
	if h.tokenIssuer == nil || !h.tokenIssuer.Enabled() {
		return c.Next()
	}
	if err := h.tokenIssuer.VerifyHeader(c.Get("Authorization")); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or missing control token"})
	}
	return c.Next()
}

// Submit handles POST /ocr/submit.
func (h *Handler) Submit(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return pkgerrors.NewValidationError("multipart field 'file' is required")
	}

	f, err := fileHeader.Open()
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ValidationError, "FILE_OPEN_FAILED", "failed to read uploaded file")
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ValidationError, "FILE_READ_FAILED", "failed to read uploaded file")
	}

	result, err := h.ingest.Submit(c.Context(), fileHeader, content)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"job_id":      result.JobID,
		"total_pages": result.TotalPages,
		"message":     "job accepted",
	})
}

// Status handles GET /ocr/status/:job_id.
func (h *Handler) Status(c *fiber.Ctx) error {
	status, err := h.ocr.Status(c.Context(), c.Params("job_id"))
	if err != nil {
		return err
	}
	return c.JSON(status)
}

// Result handles GET /ocr/result/:job_id.
func (h *Handler) Result(c *fiber.Ctx) error {
	includeSections := c.Query("sections") == "true"
	result, err := h.ocr.Result(c.Context(), c.Params("job_id"), includeSections)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// ListJobs handles GET /ocr/jobs.
func (h *Handler) ListJobs(c *fiber.Ctx) error {
	page, err := parsePositiveInt(c.Query("page", "1"), 1)
	if err != nil {
		return pkgerrors.NewValidationError("page must be a positive integer")
	}
	pageSize, err := parsePositiveInt(c.Query("page_size", "20"), 20)
	if err != nil || pageSize > maxListPageSize {
		return pkgerrors.NewValidationError("page_size must be a positive integer no greater than 100")
	}

	status := domain.Status(c.Query("status", ""))

	list, err := h.ocr.List(c.Context(), status, page, pageSize)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

// DeleteJob handles DELETE /ocr/jobs/:job_id.
func (h *Handler) DeleteJob(c *fiber.Ctx) error {
	if err := h.ocr.Delete(c.Context(), c.Params("job_id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Health handles GET /health.
func (h *Handler) Health(c *fiber.Ctx) error {
	health := h.ocr.HealthCheck(c.Context())
	status := fiber.StatusOK
	if health.Status != "ok" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(health)
}

func parsePositiveInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, pkgerrors.NewValidationError("expected a positive integer")
	}
	return n, nil
}
