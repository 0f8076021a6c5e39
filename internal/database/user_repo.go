package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/barrelhouse/distro-admin/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// GetUserByEmail retrieves a user by email
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx, `
		SELECT id, email, password_hash, role, created_at, last_login_at
		FROM users
		WHERE email = $1
	`, email).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.LastLoginAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID
func (db *DB) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx, `
		SELECT id, email, password_hash, role, created_at, last_login_at
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.LastLoginAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateLastLogin bumps the user's last login timestamp
func (db *DB) UpdateLastLogin(ctx context.Context, id int) error {
	_, err := db.Pool.Exec(ctx, "UPDATE users SET last_login_at = NOW() WHERE id = $1", id)
	return err
}
