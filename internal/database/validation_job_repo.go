package database

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/barrelhouse/distro-admin/internal/models"
)

var ErrValidationJobNotFound = errors.New("validation job not found")

// CreateValidationJob inserts a pending durable job-status row
func (db *DB) CreateValidationJob(ctx context.Context, job *models.ValidationJob) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO validation_jobs (id, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
	`, job.ID, job.Status, job.ExpiresAt)
	return err
}

// FinishValidationJob records the terminal state of a validation run
func (db *DB) FinishValidationJob(ctx context.Context, id, status string, result []models.RowMatch, errMsg *string) error {
	var raw []byte
	if result != nil {
		var err error
		raw, err = json.Marshal(result)
		if err != nil {
			return err
		}
	}

	cmd, err := db.Pool.Exec(ctx, `
		UPDATE validation_jobs
		SET status = $2, result = $3, error = $4, updated_at = NOW()
		WHERE id = $1
	`, id, status, raw, errMsg)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrValidationJobNotFound
	}
	return nil
}

// GetValidationJob returns one job-status row. Expiry is enforced here:
// an expired row is deleted and reported as not found, so no process timer
// is ever needed.
func (db *DB) GetValidationJob(ctx context.Context, id string) (*models.ValidationJob, error) {
	j := &models.ValidationJob{}
	err := db.Pool.QueryRow(ctx, `
		SELECT id, status, result, error, expires_at, created_at, updated_at
		FROM validation_jobs
		WHERE id = $1 AND expires_at > NOW()
	`, id).Scan(&j.ID, &j.Status, &j.Result, &j.Error, &j.ExpiresAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Drop the row if it only failed the expiry check
			_, _ = db.Pool.Exec(ctx, "DELETE FROM validation_jobs WHERE id = $1 AND expires_at <= NOW()", id)
			return nil, ErrValidationJobNotFound
		}
		return nil, err
	}
	return j, nil
}

// PurgeExpiredValidationJobs removes rows past their expiry, called
// opportunistically at startup
func (db *DB) PurgeExpiredValidationJobs(ctx context.Context) (int, error) {
	cmd, err := db.Pool.Exec(ctx, "DELETE FROM validation_jobs WHERE expires_at <= NOW()")
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}
