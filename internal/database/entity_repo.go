package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/barrelhouse/distro-admin/internal/models"
)

var (
	ErrEntityNotFound = errors.New("entity not found")
	ErrUnknownKind    = errors.New("unknown entity kind")
)

// entityTables maps a kind to its table. Table names come from this map
// only, never from request input.
var entityTables = map[models.EntityKind]string{
	models.KindBrand:       "brands",
	models.KindSupplier:    "suppliers",
	models.KindDistributor: "distributors",
}

const entityColumns = "id, name, url, logo_url, data_source, is_orphaned, orphaned_at, created_at, updated_at"

// EntityRepo runs entity queries against one of the three entity tables.
// The same query set serves brands, suppliers, and distributors.
type EntityRepo struct {
	db    *DB
	kind  models.EntityKind
	table string
}

// Entities returns the repo for one entity kind
func (db *DB) Entities(kind models.EntityKind) (*EntityRepo, error) {
	table, ok := entityTables[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return &EntityRepo{db: db, kind: kind, table: table}, nil
}

// Kind returns which entity table this repo serves
func (r *EntityRepo) Kind() models.EntityKind {
	return r.kind
}

func scanEntity(row pgx.Row) (*models.Entity, error) {
	e := &models.Entity{}
	err := row.Scan(
		&e.ID, &e.Name, &e.URL, &e.LogoURL, &e.DataSource,
		&e.IsOrphaned, &e.OrphanedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntityNotFound
		}
		return nil, err
	}
	return e, nil
}

// ListPage returns one page of the entity set ordered by id, for index
// building
func (r *EntityRepo) ListPage(ctx context.Context, limit, offset int) ([]models.Entity, error) {
	rows, err := r.db.Pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM %s
		ORDER BY id ASC
		LIMIT $1 OFFSET $2
	`, entityColumns, r.table), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []models.Entity
	for rows.Next() {
		e := models.Entity{}
		if err := rows.Scan(
			&e.ID, &e.Name, &e.URL, &e.LogoURL, &e.DataSource,
			&e.IsOrphaned, &e.OrphanedAt, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}

	return entities, rows.Err()
}

// List returns a filtered, paginated entity list for the CRUD pages
func (r *EntityRepo) List(ctx context.Context, params *models.EntityListParams) ([]*models.Entity, int, error) {
	var whereClauses []string
	var args []interface{}
	argIndex := 1

	if params.Search != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("LOWER(name) LIKE LOWER($%d)", argIndex))
		args = append(args, "%"+params.Search+"%")
		argIndex++
	}
	if !params.IncludeOrphaned {
		whereClauses = append(whereClauses, "is_orphaned = FALSE")
	}

	whereClause := ""
	if len(whereClauses) > 0 {
		whereClause = "WHERE " + strings.Join(whereClauses, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", r.table, whereClause)
	if err := r.db.Pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		%s
		ORDER BY name ASC
		LIMIT $%d OFFSET $%d
	`, entityColumns, r.table, whereClause, argIndex, argIndex+1)
	args = append(args, params.Limit, params.Offset)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entities []*models.Entity
	for rows.Next() {
		e := &models.Entity{}
		if err := rows.Scan(
			&e.ID, &e.Name, &e.URL, &e.LogoURL, &e.DataSource,
			&e.IsOrphaned, &e.OrphanedAt, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		entities = append(entities, e)
	}

	return entities, total, rows.Err()
}

// GetByID retrieves an entity by ID
func (r *EntityRepo) GetByID(ctx context.Context, id int) (*models.Entity, error) {
	return scanEntity(r.db.Pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM %s WHERE id = $1
	`, entityColumns, r.table), id))
}

// GetByName retrieves an entity by case-insensitive name match
func (r *EntityRepo) GetByName(ctx context.Context, name string) (*models.Entity, error) {
	return scanEntity(r.db.Pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM %s WHERE LOWER(name) = LOWER($1)
	`, entityColumns, r.table), name))
}

// Create inserts a new entity. A unique-name collision surfaces as a
// duplicate-key error for the caller to resolve by name.
func (r *EntityRepo) Create(ctx context.Context, req *models.CreateEntityRequest) (*models.Entity, error) {
	return scanEntity(r.db.Pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (name, url, logo_url, data_source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING %s
	`, r.table, entityColumns), req.Name, req.URL, req.LogoURL, req.DataSource))
}

// FillMissing sets only the fields that are currently null. Matched imports
// enrich entities, they never overwrite curated data.
func (r *EntityRepo) FillMissing(ctx context.Context, id int, url, logoURL, dataSource *string) error {
	result, err := r.db.Pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s
		SET url = COALESCE(url, $2),
		    logo_url = COALESCE(logo_url, $3),
		    data_source = COALESCE(data_source, $4),
		    updated_at = NOW()
		WHERE id = $1
	`, r.table), id, url, logoURL, dataSource)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrEntityNotFound
	}
	return nil
}

// Update updates an entity from the CRUD pages
func (r *EntityRepo) Update(ctx context.Context, id int, req *models.UpdateEntityRequest) (*models.Entity, error) {
	return scanEntity(r.db.Pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE %s
		SET name = COALESCE($2, name),
		    url = COALESCE($3, url),
		    logo_url = COALESCE($4, logo_url),
		    data_source = COALESCE($5, data_source),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING %s
	`, r.table, entityColumns), id, req.Name, req.URL, req.LogoURL, req.DataSource))
}

// Delete deletes an entity by ID
func (r *EntityRepo) Delete(ctx context.Context, id int) error {
	result, err := r.db.Pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.table), id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrEntityNotFound
	}
	return nil
}

// SetLogoURL records the stored logo object URL
func (r *EntityRepo) SetLogoURL(ctx context.Context, id int, logoURL string) error {
	result, err := r.db.Pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET logo_url = $2, updated_at = NOW() WHERE id = $1
	`, r.table), id, logoURL)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrEntityNotFound
	}
	return nil
}

// GetStateByCode resolves a two-letter state code
func (db *DB) GetStateByCode(ctx context.Context, code string) (*models.State, error) {
	s := &models.State{}
	err := db.Pool.QueryRow(ctx, `
		SELECT id, code, name FROM states WHERE UPPER(code) = UPPER($1)
	`, code).Scan(&s.ID, &s.Code, &s.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("unknown state code %q", code)
		}
		return nil, err
	}
	return s, nil
}

// ListStates returns all states ordered by code
func (db *DB) ListStates(ctx context.Context) ([]*models.State, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id, code, name FROM states ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []*models.State
	for rows.Next() {
		s := &models.State{}
		if err := rows.Scan(&s.ID, &s.Code, &s.Name); err != nil {
			return nil, err
		}
		states = append(states, s)
	}

	return states, rows.Err()
}

// GetPortalStats returns aggregate counts for the dashboard
func (db *DB) GetPortalStats(ctx context.Context) (*models.PortalStats, error) {
	stats := &models.PortalStats{}

	err := db.Pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM brands),
			(SELECT COUNT(*) FROM suppliers),
			(SELECT COUNT(*) FROM distributors),
			(SELECT COUNT(*) FROM brand_suppliers),
			(SELECT COUNT(*) FROM supplier_distributors),
			(SELECT COUNT(*) FROM orphaned_brand_suppliers) + (SELECT COUNT(*) FROM orphaned_supplier_distributors),
			(SELECT COUNT(*) FROM import_jobs)
	`).Scan(
		&stats.Brands, &stats.Suppliers, &stats.Distributors,
		&stats.BrandSuppliers, &stats.SupplierDistributors,
		&stats.Orphans, &stats.ImportJobs,
	)
	if err != nil {
		return nil, err
	}

	return stats, nil
}
