package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/barrelhouse/distro-admin/internal/models"
)

var ErrImportJobNotFound = errors.New("import job not found")

const importJobColumns = `id, import_type, file_name, status,
	created_count, updated_count, verified_count, orphaned_count, skipped_count, errored_count,
	created_at, updated_at`

func scanImportJob(row pgx.Row) (*models.ImportJob, error) {
	j := &models.ImportJob{}
	err := row.Scan(
		&j.ID, &j.ImportType, &j.FileName, &j.Status,
		&j.Counts.Created, &j.Counts.Updated, &j.Counts.Verified,
		&j.Counts.Orphaned, &j.Counts.Skipped, &j.Counts.Errored,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrImportJobNotFound
		}
		return nil, err
	}
	return j, nil
}

// EnsureJob returns the ledger row id for this run: the existing one when a
// job id is passed in, a fresh row otherwise. Subsequent batches of the
// same job reuse the row.
func (db *DB) EnsureJob(ctx context.Context, existingID *int, importType, fileName string) (int, error) {
	if existingID != nil && *existingID > 0 {
		var id int
		err := db.Pool.QueryRow(ctx,
			"SELECT id FROM import_jobs WHERE id = $1", *existingID,
		).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return 0, ErrImportJobNotFound
			}
			return 0, err
		}
		return id, nil
	}

	var id int
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO import_jobs (import_type, file_name, status, created_at, updated_at)
		VALUES ($1, $2, 'running', NOW(), NOW())
		RETURNING id
	`, importType, fileName).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AddCounts accumulates one batch's counters onto the job row. Increments
// are atomic at the store, so concurrent batches cannot lose updates.
func (db *DB) AddCounts(ctx context.Context, jobID int, counts models.ImportCounts) error {
	result, err := db.Pool.Exec(ctx, `
		UPDATE import_jobs
		SET created_count = created_count + $2,
		    updated_count = updated_count + $3,
		    verified_count = verified_count + $4,
		    orphaned_count = orphaned_count + $5,
		    skipped_count = skipped_count + $6,
		    errored_count = errored_count + $7,
		    updated_at = NOW()
		WHERE id = $1
	`, jobID, counts.Created, counts.Updated, counts.Verified,
		counts.Orphaned, counts.Skipped, counts.Errored)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrImportJobNotFound
	}
	return nil
}

// SetStatus records the job's terminal state
func (db *DB) SetStatus(ctx context.Context, jobID int, status string) error {
	result, err := db.Pool.Exec(ctx, `
		UPDATE import_jobs SET status = $2, updated_at = NOW() WHERE id = $1
	`, jobID, status)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrImportJobNotFound
	}
	return nil
}

// GetImportJob retrieves one ledger row
func (db *DB) GetImportJob(ctx context.Context, id int) (*models.ImportJob, error) {
	return scanImportJob(db.Pool.QueryRow(ctx,
		"SELECT "+importJobColumns+" FROM import_jobs WHERE id = $1", id))
}

// ListImportJobs returns ledger rows, newest first
func (db *DB) ListImportJobs(ctx context.Context, limit, offset int) ([]*models.ImportJob, int, error) {
	var total int
	if err := db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM import_jobs").Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := db.Pool.Query(ctx,
		"SELECT "+importJobColumns+" FROM import_jobs ORDER BY created_at DESC LIMIT $1 OFFSET $2",
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []*models.ImportJob
	for rows.Next() {
		j := &models.ImportJob{}
		if err := rows.Scan(
			&j.ID, &j.ImportType, &j.FileName, &j.Status,
			&j.Counts.Created, &j.Counts.Updated, &j.Counts.Verified,
			&j.Counts.Orphaned, &j.Counts.Skipped, &j.Counts.Errored,
			&j.CreatedAt, &j.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, j)
	}

	return jobs, total, rows.Err()
}

// AppendChange records one immutable audit event for a job
func (db *DB) AppendChange(ctx context.Context, change *models.ImportChange) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO import_changes
			(import_job_id, change_type, entity_kind, entity_id, owner_id, state_id, old_value, new_value, source_row, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`, change.ImportJobID, change.ChangeType, change.EntityKind,
		change.EntityID, change.OwnerID, change.StateID,
		change.OldValue, change.NewValue, change.SourceRow)
	return err
}

// ListChanges returns the audit trail for one job in append order
func (db *DB) ListChanges(ctx context.Context, jobID int, limit, offset int) ([]*models.ImportChange, int, error) {
	var total int
	if err := db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM import_changes WHERE import_job_id = $1", jobID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT id, import_job_id, change_type, entity_kind, entity_id, owner_id, state_id,
		       old_value, new_value, source_row, created_at
		FROM import_changes
		WHERE import_job_id = $1
		ORDER BY id ASC
		LIMIT $2 OFFSET $3
	`, jobID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var changes []*models.ImportChange
	for rows.Next() {
		c := &models.ImportChange{}
		var kind *string
		if err := rows.Scan(
			&c.ID, &c.ImportJobID, &c.ChangeType, &kind, &c.EntityID, &c.OwnerID, &c.StateID,
			&c.OldValue, &c.NewValue, &c.SourceRow, &c.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		if kind != nil {
			c.EntityKind = *kind
		}
		changes = append(changes, c)
	}

	return changes, total, rows.Err()
}

// TouchedKeys returns every relationship identity tuple this job created or
// re-verified, across all its batches. Orphan detection compares the active
// set against these.
func (db *DB) TouchedKeys(ctx context.Context, jobID int) ([]models.RelKey, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT DISTINCT entity_id, owner_id, COALESCE(state_id, 0)
		FROM import_changes
		WHERE import_job_id = $1
		  AND change_type IN ('created', 'verified')
		  AND owner_id IS NOT NULL
		  AND entity_id IS NOT NULL
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []models.RelKey
	for rows.Next() {
		var k models.RelKey
		if err := rows.Scan(&k.EntityID, &k.OwnerID, &k.StateID); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}
