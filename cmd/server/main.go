package main

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/barrelhouse/distro-admin/internal/config"
	"github.com/barrelhouse/distro-admin/internal/database"
	"github.com/barrelhouse/distro-admin/internal/handlers"
	"github.com/barrelhouse/distro-admin/internal/middleware"
	"github.com/barrelhouse/distro-admin/internal/services"
)

func main() {
	// Load .env file if it exists
	godotenv.Load()

	cfg := config.Load()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	if err := database.EnsureAdminUser(db, cfg); err != nil {
		log.Printf("Warning: Could not ensure admin user: %v", err)
	}

	// Sweep validation jobs that expired while the server was down
	if purged, err := db.PurgeExpiredValidationJobs(context.Background()); err != nil {
		log.Printf("Warning: Failed to purge expired validation jobs: %v", err)
	} else if purged > 0 {
		log.Printf("Purged %d expired validation job(s)", purged)
	}

	// Logo storage is optional; the rest of the portal works without it
	var logos *services.LogoStorage
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		logos, err = services.NewLogoStorage(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3Region, cfg.S3UseSSL)
		if err != nil {
			log.Printf("Warning: Failed to initialize logo storage: %v", err)
			logos = nil
		} else if err := logos.EnsureBucket(context.Background()); err != nil {
			log.Printf("Warning: Failed to ensure logo bucket exists: %v", err)
		}
	} else {
		log.Println("S3 credentials not configured, logo uploads disabled")
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	h := handlers.New(db, cfg, logos)

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// Auth routes (public)
	auth := api.Group("/auth")
	auth.Post("/login", h.Login)
	auth.Get("/me", middleware.AuthRequired(cfg), h.GetCurrentUser)

	// Everything past authentication
	authed := api.Group("", middleware.AuthRequired(cfg))
	admin := api.Group("", middleware.AuthRequired(cfg), middleware.AdminRequired())

	// Lookup and dashboard routes
	authed.Get("/states", h.ListStates)
	authed.Get("/stats", h.GetStats)

	// Entity routes (read for all users, writes admin-only)
	authed.Get("/entities/:kind", h.ListEntities)
	authed.Get("/entities/:kind/:id", h.GetEntity)
	admin.Post("/entities/:kind", h.CreateEntity)
	admin.Put("/entities/:kind/:id", h.UpdateEntity)
	admin.Delete("/entities/:kind/:id", h.DeleteEntity)
	admin.Post("/entities/:kind/:id/logo", h.UploadLogo)

	// Validation (dry-run classification)
	admin.Post("/validate/:kind", h.ValidateRows)
	admin.Get("/validate/jobs/:id", h.GetValidationJob)

	// Imports
	admin.Post("/import/brands", h.ImportBrands)
	admin.Post("/import/suppliers/:id/portfolio", h.ImportSupplierPortfolio)
	admin.Post("/import/distributors/:id/portfolio", h.ImportDistributorPortfolio)

	// Import job ledger
	authed.Get("/import/jobs", h.ListImportJobs)
	authed.Get("/import/jobs/:id", h.GetImportJob)
	authed.Get("/import/jobs/:id/changes", h.ListImportChanges)

	// Staged rows awaiting review
	admin.Post("/staging", h.StageRows)
	authed.Get("/staging", h.ListStagingRows)
	admin.Put("/staging/:id/approval", h.SetStagingApproval)
	admin.Post("/staging/migrate", h.MigrateStagingRows)
	admin.Delete("/staging", h.DeleteStagingRows)

	// Orphaned relationships
	authed.Get("/orphans/:kind", h.ListOrphans)
	admin.Post("/orphans/:kind/:id/restore", h.RestoreOrphan)
	admin.Delete("/orphans/:kind/:id", h.DeleteOrphan)

	log.Printf("Server starting on port %s", cfg.Port)
	log.Fatal(app.Listen(":" + cfg.Port))
}
