package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/barrelhouse/distro-admin/internal/models"
)

var ErrStagingRowNotFound = errors.New("staging row not found")

// CreateStagingRows parks a batch of rows for human approval
func (db *DB) CreateStagingRows(ctx context.Context, req *models.StageRowsRequest) (int, error) {
	created := 0
	for _, row := range req.Rows {
		raw, err := json.Marshal(row)
		if err != nil {
			return created, err
		}
		_, err = db.Pool.Exec(ctx, `
			INSERT INTO staging_rows (import_job_id, import_type, owner_id, raw_row, created_at)
			VALUES ($1, $2, $3, $4, NOW())
		`, req.ImportJobID, req.ImportType, req.OwnerID, raw)
		if err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func scanStagingRow(row pgx.Row) (*models.StagingRow, error) {
	s := &models.StagingRow{}
	var raw []byte
	err := row.Scan(&s.ID, &s.ImportJobID, &s.ImportType, &s.OwnerID, &raw, &s.IsApproved, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStagingRowNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(raw, &s.Row); err != nil {
		return nil, err
	}
	return s, nil
}

// ListStagingRows returns staged rows, optionally filtered by approval state
func (db *DB) ListStagingRows(ctx context.Context, approved *bool, limit, offset int) ([]*models.StagingRow, int, error) {
	where := ""
	args := []interface{}{}
	argIndex := 1
	if approved != nil {
		where = "WHERE is_approved = $1"
		args = append(args, *approved)
		argIndex++
	}

	var total int
	if err := db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM staging_rows "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(
		"SELECT id, import_job_id, import_type, owner_id, raw_row, is_approved, created_at FROM staging_rows %s ORDER BY id ASC LIMIT $%d OFFSET $%d",
		where, argIndex, argIndex+1)
	args = append(args, limit, offset)

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var staged []*models.StagingRow
	for rows.Next() {
		s := &models.StagingRow{}
		var raw []byte
		if err := rows.Scan(&s.ID, &s.ImportJobID, &s.ImportType, &s.OwnerID, &raw, &s.IsApproved, &s.CreatedAt); err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal(raw, &s.Row); err != nil {
			return nil, 0, err
		}
		staged = append(staged, s)
	}

	return staged, total, rows.Err()
}

// SetStagingApproval flips one staged row's approval state
func (db *DB) SetStagingApproval(ctx context.Context, id int, approved bool) (*models.StagingRow, error) {
	return scanStagingRow(db.Pool.QueryRow(ctx, `
		UPDATE staging_rows SET is_approved = $2 WHERE id = $1
		RETURNING id, import_job_id, import_type, owner_id, raw_row, is_approved, created_at
	`, id, approved))
}

// DeleteStagingRows removes staged rows after migration has consumed them
func (db *DB) DeleteStagingRows(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.Pool.Exec(ctx, "DELETE FROM staging_rows WHERE id = ANY($1)", ids)
	return err
}
