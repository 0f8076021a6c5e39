package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/barrelhouse/distro-admin/internal/config"
	"github.com/barrelhouse/distro-admin/internal/database"
	"github.com/barrelhouse/distro-admin/internal/models"
	"github.com/barrelhouse/distro-admin/internal/services"
)

// Handler holds all handler dependencies
type Handler struct {
	db        *database.DB
	cfg       *config.Config
	validator *services.Validator
	logos     *services.LogoStorage
}

// New creates a new Handler instance. logos may be nil when S3 credentials
// are not configured; logo upload endpoints then return 503.
func New(db *database.DB, cfg *config.Config, logos *services.LogoStorage) *Handler {
	validator := services.NewValidator(db, cfg.ValidationJobTTL)
	for _, kind := range []models.EntityKind{models.KindBrand, models.KindSupplier, models.KindDistributor} {
		repo, err := db.Entities(kind)
		if err == nil {
			validator.Register(repo)
		}
	}

	return &Handler{
		db:        db,
		cfg:       cfg,
		validator: validator,
		logos:     logos,
	}
}

// reconciler builds the import engine for one import type. Engines are
// cheap; one is built per request.
func (h *Handler) reconciler(importType string) (*services.Reconciler, error) {
	switch importType {
	case services.ImportBrands:
		brands, err := h.db.Entities(models.KindBrand)
		if err != nil {
			return nil, err
		}
		return services.NewReconciler(services.ReconcilerConfig{
			ImportType: services.ImportBrands,
			Entities:   brands,
			Ledger:     h.db,
		}), nil
	case services.ImportSupplierPortfolio:
		brands, err := h.db.Entities(models.KindBrand)
		if err != nil {
			return nil, err
		}
		suppliers, err := h.db.Entities(models.KindSupplier)
		if err != nil {
			return nil, err
		}
		return services.NewReconciler(services.ReconcilerConfig{
			ImportType:    services.ImportSupplierPortfolio,
			Entities:      brands,
			Owners:        suppliers,
			Relationships: h.db.BrandSuppliers(),
			Ledger:        h.db,
		}), nil
	case services.ImportDistributorPortfolio:
		suppliers, err := h.db.Entities(models.KindSupplier)
		if err != nil {
			return nil, err
		}
		distributors, err := h.db.Entities(models.KindDistributor)
		if err != nil {
			return nil, err
		}
		return services.NewReconciler(services.ReconcilerConfig{
			ImportType:    services.ImportDistributorPortfolio,
			Entities:      suppliers,
			Owners:        distributors,
			Relationships: h.db.SupplierDistributors(),
			States:        h.db,
			Ledger:        h.db,
			Scoped:        true,
		}), nil
	}
	return nil, fiber.NewError(fiber.StatusBadRequest, "unknown import type")
}

// ErrorHandler is a custom error handler for Fiber
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
	})
}

// APIResponse is a standard API response structure
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta contains pagination metadata
type Meta struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Success returns a successful response
func Success(c *fiber.Ctx, data interface{}) error {
	return c.JSON(APIResponse{
		Success: true,
		Data:    data,
	})
}

// SuccessWithMeta returns a successful response with pagination
func SuccessWithMeta(c *fiber.Ctx, data interface{}, total, limit, offset int) error {
	return c.JSON(APIResponse{
		Success: true,
		Data:    data,
		Meta: &Meta{
			Total:  total,
			Limit:  limit,
			Offset: offset,
		},
	})
}

// Error returns an error response
func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Error:   message,
	})
}
