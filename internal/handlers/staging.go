package handlers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/barrelhouse/distro-admin/internal/database"
	"github.com/barrelhouse/distro-admin/internal/models"
	"github.com/barrelhouse/distro-admin/internal/services"
)

// stagingPageSize is the page size migration walks approved rows with
const stagingPageSize = 500

// StageRows parks a batch of import rows for review instead of applying
// them directly
func (h *Handler) StageRows(c *fiber.Ctx) error {
	var req models.StageRowsRequest
	if err := c.BodyParser(&req); err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.Rows) == 0 {
		return Error(c, fiber.StatusBadRequest, "rows are required")
	}
	switch req.ImportType {
	case services.ImportBrands, services.ImportSupplierPortfolio, services.ImportDistributorPortfolio:
	default:
		return Error(c, fiber.StatusBadRequest, "unknown import type")
	}
	if req.ImportType != services.ImportBrands && (req.OwnerID == nil || *req.OwnerID == 0) {
		return Error(c, fiber.StatusBadRequest, "owner_id is required for portfolio imports")
	}

	created, err := h.db.CreateStagingRows(c.Context(), &req)
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "failed to stage rows")
	}

	return c.Status(fiber.StatusCreated).JSON(APIResponse{
		Success: true,
		Data:    fiber.Map{"staged": created},
	})
}

// ListStagingRows returns staged rows, optionally filtered by approval
func (h *Handler) ListStagingRows(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var approved *bool
	if c.Query("approved") != "" {
		v := c.QueryBool("approved")
		approved = &v
	}

	staged, total, err := h.db.ListStagingRows(c.Context(), approved, limit, offset)
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "failed to list staged rows")
	}

	return SuccessWithMeta(c, staged, total, limit, offset)
}

// SetStagingApproval flips one staged row's approval flag
func (h *Handler) SetStagingApproval(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid staging row id")
	}

	var body struct {
		Approved bool `json:"approved"`
	}
	if err := c.BodyParser(&body); err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	row, err := h.db.SetStagingApproval(c.Context(), id, body.Approved)
	if err != nil {
		if errors.Is(err, database.ErrStagingRowNotFound) {
			return Error(c, fiber.StatusNotFound, "staging row not found")
		}
		return Error(c, fiber.StatusInternalServerError, "failed to update staging row")
	}

	return Success(c, row)
}

// MigrateStagingRows applies every approved staged row through the import
// engine, grouped by import type and owner, then discards the consumed rows
func (h *Handler) MigrateStagingRows(c *fiber.Ctx) error {
	approved := true

	type group struct {
		importType string
		ownerID    int
		rows       []models.ImportRow
		ids        []int
	}
	groups := make(map[string]*group)
	order := []string{}

	for offset := 0; ; offset += stagingPageSize {
		staged, _, err := h.db.ListStagingRows(c.Context(), &approved, stagingPageSize, offset)
		if err != nil {
			return Error(c, fiber.StatusInternalServerError, "failed to load staged rows")
		}
		for _, s := range staged {
			ownerID := 0
			if s.OwnerID != nil {
				ownerID = *s.OwnerID
			}
			key := fmt.Sprintf("%s/%d", s.ImportType, ownerID)
			g, ok := groups[key]
			if !ok {
				g = &group{importType: s.ImportType, ownerID: ownerID}
				groups[key] = g
				order = append(order, key)
			}
			g.rows = append(g.rows, s.Row)
			g.ids = append(g.ids, s.ID)
		}
		if len(staged) < stagingPageSize {
			break
		}
	}

	if len(order) == 0 {
		return Error(c, fiber.StatusBadRequest, "no approved rows to migrate")
	}

	results := make([]*models.ImportResponse, 0, len(order))
	for _, key := range order {
		g := groups[key]
		engine, err := h.reconciler(g.importType)
		if err != nil {
			return err
		}
		resp, err := engine.Run(c.Context(), g.ownerID, &models.ImportRequest{
			Rows:         g.rows,
			FileName:     "staged-rows",
			IsFirstBatch: true,
			IsLastBatch:  true,
		})
		if err != nil {
			return Error(c, fiber.StatusInternalServerError, err.Error())
		}
		results = append(results, resp)

		if err := h.db.DeleteStagingRows(c.Context(), g.ids); err != nil {
			return Error(c, fiber.StatusInternalServerError, "failed to clear migrated rows")
		}
	}

	return Success(c, results)
}

// DeleteStagingRows discards staged rows without applying them
func (h *Handler) DeleteStagingRows(c *fiber.Ctx) error {
	var body struct {
		IDs []int `json:"ids"`
	}
	if err := c.BodyParser(&body); err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if len(body.IDs) == 0 {
		return Error(c, fiber.StatusBadRequest, "ids are required")
	}

	if err := h.db.DeleteStagingRows(c.Context(), body.IDs); err != nil {
		return Error(c, fiber.StatusInternalServerError, "failed to delete staged rows")
	}

	return Success(c, fiber.Map{"deleted": len(body.IDs)})
}
