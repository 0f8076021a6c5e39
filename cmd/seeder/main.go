package main

import (
	"context"
	"flag"
	"log"

	"github.com/joho/godotenv"

	"github.com/barrelhouse/distro-admin/internal/config"
	"github.com/barrelhouse/distro-admin/internal/database"
	"github.com/barrelhouse/distro-admin/internal/models"
	"github.com/barrelhouse/distro-admin/internal/services"
)

func str(s string) *string {
	return &s
}

// Sample portfolios, applied through the same import engine the API uses
var supplierPortfolios = map[string][]models.ImportRow{
	"Vintage Imports": {
		{Name: "Acme Spirits", URL: str("https://acmespirits.example"), DataSource: str("seed")},
		{Name: "Global Wine Company", DataSource: str("seed")},
		{Name: "Cascade Brewing", DataSource: str("seed")},
	},
	"Barrel House Trading": {
		{Name: "Acme Spirits", DataSource: str("seed")},
		{Name: "Highline Meadery", DataSource: str("seed")},
	},
}

var distributorPortfolios = map[string][]models.ImportRow{
	"Summit Distribution": {
		{Name: "Vintage Imports", State: str("CA"), DataSource: str("seed")},
		{Name: "Vintage Imports", State: str("OR"), DataSource: str("seed")},
		{Name: "Barrel House Trading", State: str("CA"), DataSource: str("seed")},
	},
	"Frontier Beverage": {
		{Name: "Barrel House Trading", State: str("TX"), DataSource: str("seed")},
	},
}

func main() {
	dryRun := flag.Bool("dry-run", false, "Preview what would be seeded without writing")
	flag.Parse()

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

	if *dryRun {
		log.Printf("Dry run: would seed %d supplier portfolio(s) and %d distributor portfolio(s)",
			len(supplierPortfolios), len(distributorPortfolios))
		return
	}

	ctx := context.Background()

	suppliers, err := db.Entities(models.KindSupplier)
	if err != nil {
		log.Fatalf("Failed to open supplier store: %v", err)
	}
	distributors, err := db.Entities(models.KindDistributor)
	if err != nil {
		log.Fatalf("Failed to open distributor store: %v", err)
	}
	brands, err := db.Entities(models.KindBrand)
	if err != nil {
		log.Fatalf("Failed to open brand store: %v", err)
	}

	supplierIDs := ensureEntities(ctx, suppliers, keys(supplierPortfolios))
	distributorIDs := ensureEntities(ctx, distributors, keys(distributorPortfolios))

	supplierEngine := services.NewReconciler(services.ReconcilerConfig{
		ImportType:    services.ImportSupplierPortfolio,
		Entities:      brands,
		Owners:        suppliers,
		Relationships: db.BrandSuppliers(),
		Ledger:        db,
	})
	for name, rows := range supplierPortfolios {
		runPortfolio(ctx, supplierEngine, name, supplierIDs[name], rows)
	}

	distributorEngine := services.NewReconciler(services.ReconcilerConfig{
		ImportType:    services.ImportDistributorPortfolio,
		Entities:      suppliers,
		Owners:        distributors,
		Relationships: db.SupplierDistributors(),
		States:        db,
		Ledger:        db,
		Scoped:        true,
	})
	for name, rows := range distributorPortfolios {
		runPortfolio(ctx, distributorEngine, name, distributorIDs[name], rows)
	}

	stats, err := db.GetPortalStats(ctx)
	if err != nil {
		log.Fatalf("Failed to load stats: %v", err)
	}
	log.Printf("Seed complete: %d brands, %d suppliers, %d distributors, %d brand links, %d distributor links",
		stats.Brands, stats.Suppliers, stats.Distributors, stats.BrandSuppliers, stats.SupplierDistributors)
}

func keys(m map[string][]models.ImportRow) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func ensureEntities(ctx context.Context, store *database.EntityRepo, names []string) map[string]int {
	ids := make(map[string]int, len(names))
	for _, name := range names {
		if existing, err := store.GetByName(ctx, name); err == nil {
			ids[name] = existing.ID
			continue
		}
		created, err := store.Create(ctx, &models.CreateEntityRequest{Name: name, DataSource: str("seed")})
		if err != nil {
			log.Fatalf("Failed to create %s %q: %v", store.Kind(), name, err)
		}
		ids[name] = created.ID
	}
	return ids
}

func runPortfolio(ctx context.Context, engine *services.Reconciler, owner string, ownerID int, rows []models.ImportRow) {
	resp, err := engine.Run(ctx, ownerID, &models.ImportRequest{
		Rows:         rows,
		FileName:     "seed",
		IsFirstBatch: true,
		IsLastBatch:  true,
	})
	if err != nil {
		log.Fatalf("Failed to seed portfolio for %q: %v", owner, err)
	}
	log.Printf("Seeded %q: created=%d verified=%d orphaned=%d errors=%d",
		owner, resp.Created, resp.Verified, resp.Orphaned, len(resp.Errors))
}
