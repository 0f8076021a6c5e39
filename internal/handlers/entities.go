package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/barrelhouse/distro-admin/internal/database"
	"github.com/barrelhouse/distro-admin/internal/models"
)

// kindFromParam maps the plural path segment to an entity kind
func kindFromParam(param string) (models.EntityKind, error) {
	switch strings.ToLower(param) {
	case "brands":
		return models.KindBrand, nil
	case "suppliers":
		return models.KindSupplier, nil
	case "distributors":
		return models.KindDistributor, nil
	}
	return "", fiber.NewError(fiber.StatusBadRequest, "unknown entity kind")
}

func (h *Handler) entityRepo(c *fiber.Ctx) (*database.EntityRepo, error) {
	kind, err := kindFromParam(c.Params("kind"))
	if err != nil {
		return nil, err
	}
	return h.db.Entities(kind)
}

// ListEntities returns a paginated, optionally filtered entity list
func (h *Handler) ListEntities(c *fiber.Ctx) error {
	repo, err := h.entityRepo(c)
	if err != nil {
		return err
	}

	params := &models.EntityListParams{
		Limit:           c.QueryInt("limit", 50),
		Offset:          c.QueryInt("offset", 0),
		Search:          c.Query("search"),
		IncludeOrphaned: c.QueryBool("include_orphaned", false),
	}
	if params.Limit < 1 || params.Limit > 200 {
		params.Limit = 50
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	entities, total, err := repo.List(c.Context(), params)
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "failed to list entities")
	}

	return SuccessWithMeta(c, entities, total, params.Limit, params.Offset)
}

// GetEntity returns a single entity by id
func (h *Handler) GetEntity(c *fiber.Ctx) error {
	repo, err := h.entityRepo(c)
	if err != nil {
		return err
	}

	id, err := c.ParamsInt("id")
	if err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid entity id")
	}

	entity, err := repo.GetByID(c.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrEntityNotFound) {
			return Error(c, fiber.StatusNotFound, "entity not found")
		}
		return Error(c, fiber.StatusInternalServerError, "failed to load entity")
	}

	return Success(c, entity)
}

// CreateEntity creates one entity by hand, outside any import
func (h *Handler) CreateEntity(c *fiber.Ctx) error {
	repo, err := h.entityRepo(c)
	if err != nil {
		return err
	}

	var req models.CreateEntityRequest
	if err := c.BodyParser(&req); err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return Error(c, fiber.StatusBadRequest, "name is required")
	}

	entity, err := repo.Create(c.Context(), &req)
	if err != nil {
		if database.IsDuplicateKey(err) {
			return Error(c, fiber.StatusConflict, "an entity with that name already exists")
		}
		return Error(c, fiber.StatusInternalServerError, "failed to create entity")
	}

	return c.Status(fiber.StatusCreated).JSON(APIResponse{Success: true, Data: entity})
}

// UpdateEntity updates entity fields by hand
func (h *Handler) UpdateEntity(c *fiber.Ctx) error {
	repo, err := h.entityRepo(c)
	if err != nil {
		return err
	}

	id, err := c.ParamsInt("id")
	if err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid entity id")
	}

	var req models.UpdateEntityRequest
	if err := c.BodyParser(&req); err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			return Error(c, fiber.StatusBadRequest, "name cannot be empty")
		}
		req.Name = &trimmed
	}

	entity, err := repo.Update(c.Context(), id, &req)
	if err != nil {
		if errors.Is(err, database.ErrEntityNotFound) {
			return Error(c, fiber.StatusNotFound, "entity not found")
		}
		if database.IsDuplicateKey(err) {
			return Error(c, fiber.StatusConflict, "an entity with that name already exists")
		}
		return Error(c, fiber.StatusInternalServerError, "failed to update entity")
	}

	return Success(c, entity)
}

// DeleteEntity removes an entity and its relationships
func (h *Handler) DeleteEntity(c *fiber.Ctx) error {
	repo, err := h.entityRepo(c)
	if err != nil {
		return err
	}

	id, err := c.ParamsInt("id")
	if err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid entity id")
	}

	if err := repo.Delete(c.Context(), id); err != nil {
		if errors.Is(err, database.ErrEntityNotFound) {
			return Error(c, fiber.StatusNotFound, "entity not found")
		}
		return Error(c, fiber.StatusInternalServerError, "failed to delete entity")
	}

	return Success(c, fiber.Map{"deleted": id})
}

// ListStates returns the state lookup table
func (h *Handler) ListStates(c *fiber.Ctx) error {
	states, err := h.db.ListStates(c.Context())
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "failed to list states")
	}
	return Success(c, states)
}

// GetStats returns dashboard aggregate counts
func (h *Handler) GetStats(c *fiber.Ctx) error {
	stats, err := h.db.GetPortalStats(c.Context())
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "failed to load stats")
	}
	return Success(c, stats)
}
