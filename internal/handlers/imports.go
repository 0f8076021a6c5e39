package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/barrelhouse/distro-admin/internal/database"
	"github.com/barrelhouse/distro-admin/internal/models"
	"github.com/barrelhouse/distro-admin/internal/services"
)

// maxImportBatchRows bounds one import POST; larger sheets arrive in
// multiple batches under one import job id
const maxImportBatchRows = 2000

func (h *Handler) runImport(c *fiber.Ctx, importType string, ownerID int) error {
	var req models.ImportRequest
	if err := c.BodyParser(&req); err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.Rows) == 0 {
		return Error(c, fiber.StatusBadRequest, "rows are required")
	}
	if len(req.Rows) > maxImportBatchRows {
		return Error(c, fiber.StatusBadRequest, "too many rows in one batch")
	}

	engine, err := h.reconciler(importType)
	if err != nil {
		return err
	}

	resp, err := engine.Run(c.Context(), ownerID, &req)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrImportJobNotFound):
			return Error(c, fiber.StatusNotFound, "import job not found")
		case errors.Is(err, database.ErrEntityNotFound):
			return Error(c, fiber.StatusNotFound, "owning entity not found")
		}
		return Error(c, fiber.StatusInternalServerError, err.Error())
	}

	return Success(c, resp)
}

// ImportBrands applies one batch of a plain brand import
func (h *Handler) ImportBrands(c *fiber.Ctx) error {
	return h.runImport(c, services.ImportBrands, 0)
}

// ImportSupplierPortfolio applies one batch of a supplier's brand portfolio
func (h *Handler) ImportSupplierPortfolio(c *fiber.Ctx) error {
	supplierID, err := c.ParamsInt("id")
	if err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid supplier id")
	}
	return h.runImport(c, services.ImportSupplierPortfolio, supplierID)
}

// ImportDistributorPortfolio applies one batch of a distributor's supplier
// portfolio, scoped per state
func (h *Handler) ImportDistributorPortfolio(c *fiber.Ctx) error {
	distributorID, err := c.ParamsInt("id")
	if err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid distributor id")
	}
	return h.runImport(c, services.ImportDistributorPortfolio, distributorID)
}

// GetImportJob returns one ledger entry with its accumulated counters
func (h *Handler) GetImportJob(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid job id")
	}

	job, err := h.db.GetImportJob(c.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrImportJobNotFound) {
			return Error(c, fiber.StatusNotFound, "import job not found")
		}
		return Error(c, fiber.StatusInternalServerError, "failed to load import job")
	}

	return Success(c, job)
}

// ListImportJobs returns the ledger, newest first
func (h *Handler) ListImportJobs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	jobs, total, err := h.db.ListImportJobs(c.Context(), limit, offset)
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "failed to list import jobs")
	}

	return SuccessWithMeta(c, jobs, total, limit, offset)
}

// ListImportChanges returns the audit trail for one job
func (h *Handler) ListImportChanges(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid job id")
	}

	limit := c.QueryInt("limit", 100)
	offset := c.QueryInt("offset", 0)
	if limit < 1 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	changes, total, err := h.db.ListChanges(c.Context(), id, limit, offset)
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "failed to list import changes")
	}

	return SuccessWithMeta(c, changes, total, limit, offset)
}
