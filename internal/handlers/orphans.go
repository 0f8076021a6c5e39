package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/barrelhouse/distro-admin/internal/database"
)

func (h *Handler) orphanRepo(c *fiber.Ctx) (*database.RelationshipRepo, error) {
	repo, err := h.db.Relationships(c.Params("kind"))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "unknown relationship kind")
	}
	return repo, nil
}

// ListOrphans returns parked relationships for one family, newest first
func (h *Handler) ListOrphans(c *fiber.Ctx) error {
	repo, err := h.orphanRepo(c)
	if err != nil {
		return err
	}

	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	orphans, total, err := repo.ListOrphans(c.Context(), limit, offset)
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "failed to list orphans")
	}

	return SuccessWithMeta(c, orphans, total, limit, offset)
}

// RestoreOrphan moves a parked relationship back into the active set
func (h *Handler) RestoreOrphan(c *fiber.Ctx) error {
	repo, err := h.orphanRepo(c)
	if err != nil {
		return err
	}

	id, err := c.ParamsInt("id")
	if err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid orphan id")
	}

	if err := repo.RestoreOrphan(c.Context(), id); err != nil {
		if errors.Is(err, database.ErrOrphanNotFound) {
			return Error(c, fiber.StatusNotFound, "orphaned relationship not found")
		}
		if database.IsDuplicateKey(err) {
			return Error(c, fiber.StatusConflict, "an active relationship already exists")
		}
		return Error(c, fiber.StatusInternalServerError, "failed to restore relationship")
	}

	return Success(c, fiber.Map{"restored": id})
}

// DeleteOrphan permanently discards a parked relationship
func (h *Handler) DeleteOrphan(c *fiber.Ctx) error {
	repo, err := h.orphanRepo(c)
	if err != nil {
		return err
	}

	id, err := c.ParamsInt("id")
	if err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid orphan id")
	}

	if err := repo.DeleteOrphan(c.Context(), id); err != nil {
		if errors.Is(err, database.ErrOrphanNotFound) {
			return Error(c, fiber.StatusNotFound, "orphaned relationship not found")
		}
		return Error(c, fiber.StatusInternalServerError, "failed to delete orphan")
	}

	return Success(c, fiber.Map{"deleted": id})
}
