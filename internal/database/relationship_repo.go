package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/barrelhouse/distro-admin/internal/models"
)

var (
	ErrRelationshipNotFound = errors.New("relationship not found")
	ErrOrphanNotFound       = errors.New("orphaned relationship not found")
	ErrUnknownRelKind       = errors.New("unknown relationship kind")
)

// relSpec pins down one relationship family's tables and columns. All SQL in
// this file is assembled from these fixed specs, never from request input.
type relSpec struct {
	table       string
	orphanTable string
	entityCol   string // partner side resolved from import rows
	ownerCol    string // owning entity of an import batch
	entityTable string
	ownerTable  string
	scoped      bool // carries a state_id column
}

var brandSupplierSpec = relSpec{
	table:       "brand_suppliers",
	orphanTable: "orphaned_brand_suppliers",
	entityCol:   "brand_id",
	ownerCol:    "supplier_id",
	entityTable: "brands",
	ownerTable:  "suppliers",
}

var supplierDistributorSpec = relSpec{
	table:       "supplier_distributors",
	orphanTable: "orphaned_supplier_distributors",
	entityCol:   "supplier_id",
	ownerCol:    "distributor_id",
	entityTable: "suppliers",
	ownerTable:  "distributors",
	scoped:      true,
}

// RelationshipRepo persists one relationship family. Both families go
// through the same code; only the spec differs.
type RelationshipRepo struct {
	db   *DB
	spec relSpec
}

// BrandSuppliers returns the repo for the brand <-> supplier family
func (db *DB) BrandSuppliers() *RelationshipRepo {
	return &RelationshipRepo{db: db, spec: brandSupplierSpec}
}

// SupplierDistributors returns the repo for the state-scoped
// supplier <-> distributor family
func (db *DB) SupplierDistributors() *RelationshipRepo {
	return &RelationshipRepo{db: db, spec: supplierDistributorSpec}
}

// Relationships resolves a URL kind segment to its repo
func (db *DB) Relationships(kind string) (*RelationshipRepo, error) {
	switch kind {
	case "brand-suppliers":
		return db.BrandSuppliers(), nil
	case "supplier-distributors":
		return db.SupplierDistributors(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRelKind, kind)
}

// Scoped reports whether this family carries a state scope
func (r *RelationshipRepo) Scoped() bool {
	return r.spec.scoped
}

// Upsert inserts or re-verifies the relationship for one identity tuple.
// At most one row ever exists per tuple; a concurrent duplicate insert
// lands on the conflict arm and becomes a verify. Returns whether a new
// row was created.
func (r *RelationshipRepo) Upsert(ctx context.Context, key models.RelKey, source *string) (bool, error) {
	var query string
	var args []interface{}

	if r.spec.scoped {
		query = fmt.Sprintf(`
			INSERT INTO %[1]s (%[2]s, %[3]s, state_id, is_verified, last_verified_at, relationship_source, created_at, updated_at)
			VALUES ($1, $2, $3, TRUE, NOW(), $4, NOW(), NOW())
			ON CONFLICT (%[3]s, %[2]s, state_id) DO UPDATE
			SET is_verified = TRUE,
			    last_verified_at = NOW(),
			    relationship_source = COALESCE(EXCLUDED.relationship_source, %[1]s.relationship_source),
			    updated_at = NOW()
			RETURNING (xmax = 0) AS inserted
		`, r.spec.table, r.spec.entityCol, r.spec.ownerCol)
		args = []interface{}{key.EntityID, key.OwnerID, key.StateID, source}
	} else {
		query = fmt.Sprintf(`
			INSERT INTO %[1]s (%[2]s, %[3]s, is_verified, last_verified_at, relationship_source, created_at, updated_at)
			VALUES ($1, $2, TRUE, NOW(), $3, NOW(), NOW())
			ON CONFLICT (%[2]s, %[3]s) DO UPDATE
			SET is_verified = TRUE,
			    last_verified_at = NOW(),
			    relationship_source = COALESCE(EXCLUDED.relationship_source, %[1]s.relationship_source),
			    updated_at = NOW()
			RETURNING (xmax = 0) AS inserted
		`, r.spec.table, r.spec.entityCol, r.spec.ownerCol)
		args = []interface{}{key.EntityID, key.OwnerID, source}
	}

	var created bool
	if err := r.db.Pool.QueryRow(ctx, query, args...).Scan(&created); err != nil {
		return false, err
	}

	// An entity referenced by an active relationship is no longer orphaned
	_, err := r.db.Pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET is_orphaned = FALSE, orphaned_at = NULL
		WHERE id = $1 AND is_orphaned = TRUE
	`, r.spec.entityTable), key.EntityID)
	if err != nil {
		return created, err
	}

	return created, nil
}

// ActiveForOwner returns the full active relationship set for one owning
// entity, fetched fresh for orphan detection
func (r *RelationshipRepo) ActiveForOwner(ctx context.Context, ownerID int) ([]models.RelationshipSnapshot, error) {
	stateCol := "0"
	if r.spec.scoped {
		stateCol = "state_id"
	}

	rows, err := r.db.Pool.Query(ctx, fmt.Sprintf(`
		SELECT %s, %s, %s, is_verified, last_verified_at, relationship_source, created_at
		FROM %s
		WHERE %s = $1
		ORDER BY id ASC
	`, r.spec.entityCol, r.spec.ownerCol, stateCol, r.spec.table, r.spec.ownerCol), ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []models.RelationshipSnapshot
	for rows.Next() {
		var s models.RelationshipSnapshot
		if err := rows.Scan(
			&s.Key.EntityID, &s.Key.OwnerID, &s.Key.StateID,
			&s.IsVerified, &s.LastVerifiedAt, &s.RelationshipSource, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}

	return snaps, rows.Err()
}

// MoveToOrphan copies one relationship into the orphan table and removes it
// from the active set, in a single transaction. If the partner entity loses
// its last active relationship, its orphan flag is set.
func (r *RelationshipRepo) MoveToOrphan(ctx context.Context, key models.RelKey, reason string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	where := fmt.Sprintf("%s = $1 AND %s = $2", r.spec.entityCol, r.spec.ownerCol)
	args := []interface{}{key.EntityID, key.OwnerID}
	if r.spec.scoped {
		where += " AND state_id = $3"
		args = append(args, key.StateID)
	}

	stateInsert, stateSelect := "", ""
	if r.spec.scoped {
		stateInsert = "state_id, "
		stateSelect = "state_id, "
	}

	var orphanID int
	insertArgs := append([]interface{}{}, args...)
	insertArgs = append(insertArgs, reason)
	err = tx.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %swas_verified, last_verified_at, relationship_source, reason, original_created_at)
		SELECT %s, %s, %sis_verified, last_verified_at, relationship_source, $%d, created_at
		FROM %s
		WHERE %s
		RETURNING id
	`, r.spec.orphanTable, r.spec.entityCol, r.spec.ownerCol, stateInsert,
		r.spec.entityCol, r.spec.ownerCol, stateSelect, len(args)+1,
		r.spec.table, where), insertArgs...).Scan(&orphanID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRelationshipNotFound
		}
		return err
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s`, r.spec.table, where), args...); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET is_orphaned = TRUE, orphaned_at = NOW()
		WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM %s WHERE %s = $1)
	`, r.spec.entityTable, r.spec.table, r.spec.entityCol), key.EntityID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *RelationshipRepo) orphanStateCol() string {
	if r.spec.scoped {
		return "o.state_id"
	}
	return "NULL"
}

// ListOrphans returns orphaned relationships with entity names resolved
func (r *RelationshipRepo) ListOrphans(ctx context.Context, limit, offset int) ([]*models.OrphanedRelationship, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.spec.orphanTable)).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Pool.Query(ctx, fmt.Sprintf(`
		SELECT o.id, o.%s, e.name, o.%s, w.name, %s,
		       o.was_verified, o.last_verified_at, o.relationship_source,
		       o.reason, o.original_created_at, o.orphaned_at
		FROM %s o
		JOIN %s e ON e.id = o.%s
		JOIN %s w ON w.id = o.%s
		ORDER BY o.orphaned_at DESC
		LIMIT $1 OFFSET $2
	`, r.spec.entityCol, r.spec.ownerCol, r.orphanStateCol(),
		r.spec.orphanTable,
		r.spec.entityTable, r.spec.entityCol,
		r.spec.ownerTable, r.spec.ownerCol), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orphans []*models.OrphanedRelationship
	for rows.Next() {
		o := &models.OrphanedRelationship{}
		if err := rows.Scan(
			&o.ID, &o.EntityID, &o.EntityName, &o.OwnerID, &o.OwnerName, &o.StateID,
			&o.WasVerified, &o.LastVerifiedAt, &o.RelationshipSource,
			&o.Reason, &o.OriginalCreatedAt, &o.OrphanedAt,
		); err != nil {
			return nil, 0, err
		}
		orphans = append(orphans, o)
	}

	return orphans, total, rows.Err()
}

// GetOrphan retrieves one orphaned relationship by id
func (r *RelationshipRepo) GetOrphan(ctx context.Context, id int) (*models.OrphanedRelationship, error) {
	o := &models.OrphanedRelationship{}
	err := r.db.Pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT o.id, o.%s, o.%s, %s, o.was_verified, o.last_verified_at,
		       o.relationship_source, o.reason, o.original_created_at, o.orphaned_at
		FROM %s o
		WHERE o.id = $1
	`, r.spec.entityCol, r.spec.ownerCol, r.orphanStateCol(), r.spec.orphanTable), id).Scan(
		&o.ID, &o.EntityID, &o.OwnerID, &o.StateID,
		&o.WasVerified, &o.LastVerifiedAt, &o.RelationshipSource,
		&o.Reason, &o.OriginalCreatedAt, &o.OrphanedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrphanNotFound
		}
		return nil, err
	}
	return o, nil
}

// RestoreOrphan moves an orphaned relationship back to the active set as
// verified with a fresh timestamp, and removes the orphan record
func (r *RelationshipRepo) RestoreOrphan(ctx context.Context, id int) error {
	orphan, err := r.GetOrphan(ctx, id)
	if err != nil {
		return err
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if r.spec.scoped {
		stateID := 0
		if orphan.StateID != nil {
			stateID = *orphan.StateID
		}
		_, err = tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %[1]s (%[2]s, %[3]s, state_id, is_verified, last_verified_at, relationship_source, created_at, updated_at)
			VALUES ($1, $2, $3, TRUE, NOW(), $4, $5, NOW())
			ON CONFLICT (%[3]s, %[2]s, state_id) DO UPDATE
			SET is_verified = TRUE, last_verified_at = NOW(), updated_at = NOW()
		`, r.spec.table, r.spec.entityCol, r.spec.ownerCol),
			orphan.EntityID, orphan.OwnerID, stateID, orphan.RelationshipSource, orphan.OriginalCreatedAt)
	} else {
		_, err = tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %[1]s (%[2]s, %[3]s, is_verified, last_verified_at, relationship_source, created_at, updated_at)
			VALUES ($1, $2, TRUE, NOW(), $3, $4, NOW())
			ON CONFLICT (%[2]s, %[3]s) DO UPDATE
			SET is_verified = TRUE, last_verified_at = NOW(), updated_at = NOW()
		`, r.spec.table, r.spec.entityCol, r.spec.ownerCol),
			orphan.EntityID, orphan.OwnerID, orphan.RelationshipSource, orphan.OriginalCreatedAt)
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.spec.orphanTable), id); err != nil {
		return err
	}

	// The entity is active again
	_, err = tx.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET is_orphaned = FALSE, orphaned_at = NULL WHERE id = $1
	`, r.spec.entityTable), orphan.EntityID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// DeleteOrphan permanently removes an orphan record
func (r *RelationshipRepo) DeleteOrphan(ctx context.Context, id int) error {
	result, err := r.db.Pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.spec.orphanTable), id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrOrphanNotFound
	}
	return nil
}
