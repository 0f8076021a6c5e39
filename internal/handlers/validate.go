package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/barrelhouse/distro-admin/internal/database"
	"github.com/barrelhouse/distro-admin/internal/models"
)

// ValidateRows classifies a sheet against the existing entity set without
// writing anything. Sheets past the async threshold get a job id to poll
// instead of an inline result.
func (h *Handler) ValidateRows(c *fiber.Ctx) error {
	kind, err := kindFromParam(c.Params("kind"))
	if err != nil {
		return err
	}

	var req models.ValidateRequest
	if err := c.BodyParser(&req); err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.Rows) == 0 {
		return Error(c, fiber.StatusBadRequest, "rows are required")
	}

	if len(req.Rows) > h.cfg.AsyncRowLimit {
		jobID, err := h.validator.StartAsync(c.Context(), kind, req.Rows)
		if err != nil {
			return Error(c, fiber.StatusInternalServerError, "failed to start validation")
		}
		return c.Status(fiber.StatusAccepted).JSON(APIResponse{
			Success: true,
			Data:    fiber.Map{"job_id": jobID, "status": models.ValidationPending},
		})
	}

	resp, err := h.validator.Classify(c.Context(), kind, req.Rows)
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "validation failed")
	}
	return Success(c, resp)
}

// GetValidationJob returns the status or result of an asynchronous
// validation run. Expired jobs read as not found.
func (h *Handler) GetValidationJob(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return Error(c, fiber.StatusBadRequest, "invalid job id")
	}

	job, err := h.db.GetValidationJob(c.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrValidationJobNotFound) {
			return Error(c, fiber.StatusNotFound, "validation job not found or expired")
		}
		return Error(c, fiber.StatusInternalServerError, "failed to load validation job")
	}

	return Success(c, job)
}
