// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/model-judge/internal/models"
	"github.com/vinovest/sqlx"
)

// CreateUser creates a new unverified user.
func (r *Repository) CreateUser(ctx context.Context, name, email, passwordHash string) (*models.User, error) {
	return insertUser(ctx, r.db, name, email, passwordHash)
}

// CreateUserWithVerification creates a new unverified user together with its
// email verification token. Neither row is written if either insert fails.
func (r *Repository) CreateUserWithVerification(ctx context.Context, name, email, passwordHash, tokenHash string, expiresAt time.Time) (*models.User, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	user, err := insertUser(ctx, tx, name, email, passwordHash)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(
		`INSERT INTO email_verification_tokens (user_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?)`),
		user.ID, tokenHash, expiresAt.UTC(), time.Now().UTC()); err != nil {
		return nil, wrapError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return user, nil
}

func insertUser(ctx context.Context, q sqlx.ExtContext, name, email, passwordHash string) (*models.User, error) {
	now := time.Now().UTC()
	user := &models.User{
		Name:         name,
		Email:        models.NormalizeEmail(email),
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := sqlx.GetContext(ctx, q, &user.ID, q.Rebind(
		`INSERT INTO users (name, email, password_hash, is_verified, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		user.Name, user.Email, user.PasswordHash, false, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return nil, wrapError(err)
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.db.Rebind(`SELECT * FROM users WHERE id = ?`), id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.db.Rebind(`SELECT * FROM users WHERE email = ?`),
		models.NormalizeEmail(email))
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// EmailExists checks if a user with the given email exists.
func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, r.db.Rebind(`SELECT COUNT(*) FROM users WHERE email = ?`),
		models.NormalizeEmail(email))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkUserVerified flags the user's email as verified.
func (r *Repository) MarkUserVerified(ctx context.Context, userID int64) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE users SET is_verified = ?, verified_at = ?, updated_at = ? WHERE id = ?`),
		true, now, now, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateUserPassword replaces the stored password hash.
func (r *Repository) UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`),
		passwordHash, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteUser deletes a user and, via cascade, their tokens and conversations.
func (r *Repository) DeleteUser(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM users WHERE id = ?`), userID)
	return err
}

// CountUsers returns the total number of users.
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, err
	}
	return count, nil
}
