package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/barrelhouse/distro-admin/internal/database"
)

// maxLogoSizeBytes caps logo uploads
const maxLogoSizeBytes = 5 * 1024 * 1024

func isValidLogoType(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/png", "image/webp", "image/svg+xml":
		return true
	}
	return false
}

// UploadLogo stores an entity's logo and records its URL on the entity
func (h *Handler) UploadLogo(c *fiber.Ctx) error {
	if h.logos == nil {
		return Error(c, fiber.StatusServiceUnavailable, "logo storage is not configured")
	}

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

	file, err := c.FormFile("logo")
	if err != nil {
		return Error(c, fiber.StatusBadRequest, "logo file is required")
	}

	contentType := file.Header.Get("Content-Type")
	if !isValidLogoType(contentType) {
		return Error(c, fiber.StatusBadRequest, "invalid image type. Supported: JPEG, PNG, WebP, SVG")
	}

	if file.Size > maxLogoSizeBytes {
		return Error(c, fiber.StatusBadRequest, "file too large. Maximum size is 5MB")
	}

	src, err := file.Open()
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "failed to read file")
	}
	defer src.Close()

	key, err := h.logos.UploadLogo(c.Context(), repo.Kind(), entity.ID, file.Filename, src, file.Size, contentType)
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "failed to upload logo")
	}

	url, err := h.logos.LogoURL(c.Context(), key)
	if err != nil {
		log.Printf("Warning: failed to presign logo %s: %v", key, err)
		url = key
	}

	if err := repo.SetLogoURL(c.Context(), entity.ID, url); err != nil {
		if deleteErr := h.logos.DeleteLogo(c.Context(), key); deleteErr != nil {
			log.Printf("Warning: failed to clean up logo %s after update failure: %v", key, deleteErr)
		}
		return Error(c, fiber.StatusInternalServerError, "failed to record logo")
	}

	return Success(c, fiber.Map{"logo_url": url})
}
