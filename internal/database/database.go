package database

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/barrelhouse/distro-admin/internal/config"
)

// DB wraps the connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Connect creates a new database connection pool
func Connect(databaseURL string) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}

	// Configure pool
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Println("Database connected successfully")
	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	db.Pool.Close()
}

// RunMigrations runs all database migrations
func RunMigrations(db *DB) error {
	ctx := context.Background()

	// Create migrations table if it doesn't exist
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Later migrations reference earlier tables, so apply in version order
	versions := make([]int, 0, len(migrations))
	for version := range migrations {
		versions = append(versions, version)
	}
	sort.Ints(versions)

	for _, version := range versions {
		migration := migrations[version]
		// Check if migration already applied
		var exists bool
		err := db.Pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", version, err)
		}

		if exists {
			continue
		}

		// Apply migration
		log.Printf("Applying migration %d...", version)
		_, err = db.Pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", version, err)
		}

		// Record migration
		_, err = db.Pool.Exec(ctx,
			"INSERT INTO schema_migrations (version) VALUES ($1)",
			version,
		)
		if err != nil {
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}

		log.Printf("Migration %d applied successfully", version)
	}

	return nil
}

// EnsureAdminUser creates the admin user if it doesn't exist
func EnsureAdminUser(db *DB, cfg *config.Config) error {
	if cfg.AdminPassword == "" {
		log.Println("ADMIN_PASSWORD not set, skipping admin user creation")
		return nil
	}

	ctx := context.Background()

	// Check if admin exists
	var exists bool
	err := db.Pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)",
		cfg.AdminEmail,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check for admin user: %w", err)
	}

	if exists {
		log.Println("Admin user already exists")
		return nil
	}

	// Hash password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	// Create admin user
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO users (email, password_hash, role)
		VALUES ($1, $2, 'admin')
	`, cfg.AdminEmail, string(hashedPassword))
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	log.Printf("Admin user created: %s", cfg.AdminEmail)
	return nil
}

// migrations is an ordered map of migration version to SQL
var migrations = map[int]string{
	1: migration001,
	2: migration002,
	3: migration003,
}

const migration001 = `
-- Users table (admin portal accounts)
CREATE TABLE IF NOT EXISTS users (
    id SERIAL PRIMARY KEY,
    email VARCHAR(255) UNIQUE NOT NULL,
    password_hash VARCHAR(255) NOT NULL,
    role VARCHAR(20) DEFAULT 'user',
    created_at TIMESTAMP DEFAULT NOW(),
    last_login_at TIMESTAMP
);

-- States table
CREATE TABLE IF NOT EXISTS states (
    id SERIAL PRIMARY KEY,
    code VARCHAR(2) UNIQUE NOT NULL,
    name VARCHAR(100) NOT NULL
);

-- Brands table
CREATE TABLE IF NOT EXISTS brands (
    id SERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    url VARCHAR(512),
    logo_url VARCHAR(512),
    data_source VARCHAR(255),
    is_orphaned BOOLEAN DEFAULT FALSE,
    orphaned_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
);

-- Suppliers table
CREATE TABLE IF NOT EXISTS suppliers (
    id SERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    url VARCHAR(512),
    logo_url VARCHAR(512),
    data_source VARCHAR(255),
    is_orphaned BOOLEAN DEFAULT FALSE,
    orphaned_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
);

-- Distributors table
CREATE TABLE IF NOT EXISTS distributors (
    id SERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    url VARCHAR(512),
    logo_url VARCHAR(512),
    data_source VARCHAR(255),
    is_orphaned BOOLEAN DEFAULT FALSE,
    orphaned_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
);

-- The import matcher treats the display name as the natural key; enforce it
CREATE UNIQUE INDEX IF NOT EXISTS idx_brands_name_unique ON brands (LOWER(name));
CREATE UNIQUE INDEX IF NOT EXISTS idx_suppliers_name_unique ON suppliers (LOWER(name));
CREATE UNIQUE INDEX IF NOT EXISTS idx_distributors_name_unique ON distributors (LOWER(name));

-- Brand <-> Supplier relationships (unscoped)
CREATE TABLE IF NOT EXISTS brand_suppliers (
    id SERIAL PRIMARY KEY,
    brand_id INT NOT NULL REFERENCES brands(id) ON DELETE CASCADE,
    supplier_id INT NOT NULL REFERENCES suppliers(id) ON DELETE CASCADE,
    is_verified BOOLEAN DEFAULT FALSE,
    last_verified_at TIMESTAMP,
    relationship_source VARCHAR(255),
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW(),
    CONSTRAINT unique_brand_supplier UNIQUE (brand_id, supplier_id)
);

-- Supplier <-> Distributor relationships, scoped to a state
CREATE TABLE IF NOT EXISTS supplier_distributors (
    id SERIAL PRIMARY KEY,
    supplier_id INT NOT NULL REFERENCES suppliers(id) ON DELETE CASCADE,
    distributor_id INT NOT NULL REFERENCES distributors(id) ON DELETE CASCADE,
    state_id INT NOT NULL REFERENCES states(id),
    is_verified BOOLEAN DEFAULT FALSE,
    last_verified_at TIMESTAMP,
    relationship_source VARCHAR(255),
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW(),
    CONSTRAINT unique_supplier_distributor_state UNIQUE (supplier_id, distributor_id, state_id)
);

CREATE INDEX IF NOT EXISTS idx_brand_suppliers_supplier ON brand_suppliers(supplier_id);
CREATE INDEX IF NOT EXISTS idx_supplier_distributors_distributor ON supplier_distributors(distributor_id);
CREATE INDEX IF NOT EXISTS idx_supplier_distributors_state ON supplier_distributors(state_id);

-- Seed states
INSERT INTO states (code, name) VALUES
    ('AL', 'Alabama'), ('AK', 'Alaska'), ('AZ', 'Arizona'), ('AR', 'Arkansas'),
    ('CA', 'California'), ('CO', 'Colorado'), ('CT', 'Connecticut'), ('DE', 'Delaware'),
    ('FL', 'Florida'), ('GA', 'Georgia'), ('HI', 'Hawaii'), ('ID', 'Idaho'),
    ('IL', 'Illinois'), ('IN', 'Indiana'), ('IA', 'Iowa'), ('KS', 'Kansas'),
    ('KY', 'Kentucky'), ('LA', 'Louisiana'), ('ME', 'Maine'), ('MD', 'Maryland'),
    ('MA', 'Massachusetts'), ('MI', 'Michigan'), ('MN', 'Minnesota'), ('MS', 'Mississippi'),
    ('MO', 'Missouri'), ('MT', 'Montana'), ('NE', 'Nebraska'), ('NV', 'Nevada'),
    ('NH', 'New Hampshire'), ('NJ', 'New Jersey'), ('NM', 'New Mexico'), ('NY', 'New York'),
    ('NC', 'North Carolina'), ('ND', 'North Dakota'), ('OH', 'Ohio'), ('OK', 'Oklahoma'),
    ('OR', 'Oregon'), ('PA', 'Pennsylvania'), ('RI', 'Rhode Island'), ('SC', 'South Carolina'),
    ('SD', 'South Dakota'), ('TN', 'Tennessee'), ('TX', 'Texas'), ('UT', 'Utah'),
    ('VT', 'Vermont'), ('VA', 'Virginia'), ('WA', 'Washington'), ('WV', 'West Virginia'),
    ('WI', 'Wisconsin'), ('WY', 'Wyoming'), ('DC', 'District of Columbia')
ON CONFLICT DO NOTHING;
`

const migration002 = `
-- Migration 002: Orphaned relationship tables and import ledger

-- Orphaned brand <-> supplier relationships (full snapshot, restorable)
CREATE TABLE IF NOT EXISTS orphaned_brand_suppliers (
    id SERIAL PRIMARY KEY,
    brand_id INT NOT NULL REFERENCES brands(id) ON DELETE CASCADE,
    supplier_id INT NOT NULL REFERENCES suppliers(id) ON DELETE CASCADE,
    was_verified BOOLEAN DEFAULT FALSE,
    last_verified_at TIMESTAMP,
    relationship_source VARCHAR(255),
    reason VARCHAR(100) NOT NULL,
    original_created_at TIMESTAMP NOT NULL,
    orphaned_at TIMESTAMP DEFAULT NOW()
);

-- Orphaned supplier <-> distributor relationships
CREATE TABLE IF NOT EXISTS orphaned_supplier_distributors (
    id SERIAL PRIMARY KEY,
    supplier_id INT NOT NULL REFERENCES suppliers(id) ON DELETE CASCADE,
    distributor_id INT NOT NULL REFERENCES distributors(id) ON DELETE CASCADE,
    state_id INT NOT NULL REFERENCES states(id),
    was_verified BOOLEAN DEFAULT FALSE,
    last_verified_at TIMESTAMP,
    relationship_source VARCHAR(255),
    reason VARCHAR(100) NOT NULL,
    original_created_at TIMESTAMP NOT NULL,
    orphaned_at TIMESTAMP DEFAULT NOW()
);

-- Import job ledger
CREATE TABLE IF NOT EXISTS import_jobs (
    id SERIAL PRIMARY KEY,
    import_type VARCHAR(50) NOT NULL,
    file_name VARCHAR(255),
    status VARCHAR(30) DEFAULT 'running',
    created_count INT DEFAULT 0,
    updated_count INT DEFAULT 0,
    verified_count INT DEFAULT 0,
    orphaned_count INT DEFAULT 0,
    skipped_count INT DEFAULT 0,
    errored_count INT DEFAULT 0,
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
);

-- Append-only audit trail, one row per mutation
CREATE TABLE IF NOT EXISTS import_changes (
    id SERIAL PRIMARY KEY,
    import_job_id INT NOT NULL REFERENCES import_jobs(id) ON DELETE CASCADE,
    change_type VARCHAR(20) NOT NULL,
    entity_kind VARCHAR(20),
    entity_id INT,
    owner_id INT,
    state_id INT,
    old_value JSONB,
    new_value JSONB,
    source_row TEXT,
    created_at TIMESTAMP DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_import_changes_job ON import_changes(import_job_id);
CREATE INDEX IF NOT EXISTS idx_orphaned_brand_suppliers_supplier ON orphaned_brand_suppliers(supplier_id);
CREATE INDEX IF NOT EXISTS idx_orphaned_supplier_distributors_distributor ON orphaned_supplier_distributors(distributor_id);
`

const migration003 = `
-- Migration 003: Staging rows and durable validation job status

CREATE TABLE IF NOT EXISTS staging_rows (
    id SERIAL PRIMARY KEY,
    import_job_id INT REFERENCES import_jobs(id) ON DELETE CASCADE,
    import_type VARCHAR(50) NOT NULL,
    owner_id INT,
    raw_row JSONB NOT NULL,
    is_approved BOOLEAN DEFAULT FALSE,
    created_at TIMESTAMP DEFAULT NOW()
);

-- Validation job status lives in the store, not process memory; expiry is
-- a column checked on read
CREATE TABLE IF NOT EXISTS validation_jobs (
    id UUID PRIMARY KEY,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    result JSONB,
    error TEXT,
    expires_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_staging_rows_job ON staging_rows(import_job_id);
CREATE INDEX IF NOT EXISTS idx_staging_rows_approved ON staging_rows(is_approved);
CREATE INDEX IF NOT EXISTS idx_validation_jobs_expires ON validation_jobs(expires_at);
`
