// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/model-judge/internal/models"
)

// CreatePasswordResetToken stores a new reset token, replacing any earlier ones for the user.
func (r *Repository) CreatePasswordResetToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM password_reset_tokens WHERE user_id = ?`), userID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(
		`INSERT INTO password_reset_tokens (user_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?)`),
		userID, tokenHash, expiresAt.UTC(), time.Now().UTC()); err != nil {
		return wrapError(err)
	}

	return tx.Commit()
}

// GetPasswordResetToken retrieves a reset token by hash.
func (r *Repository) GetPasswordResetToken(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	var token models.PasswordResetToken
	err := r.db.GetContext(ctx, &token, r.db.Rebind(
		`SELECT * FROM password_reset_tokens WHERE token_hash = ?`), tokenHash)
	if err != nil {
		return nil, wrapError(err)
	}
	return &token, nil
}

// ConsumePasswordReset sets the new password hash and removes all of the user's reset tokens.
func (r *Repository) ConsumePasswordReset(ctx context.Context, userID int64, passwordHash string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, tx.Rebind(
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`),
		passwordHash, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM password_reset_tokens WHERE user_id = ?`), userID); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteExpiredPasswordResetTokens deletes expired reset tokens.
func (r *Repository) DeleteExpiredPasswordResetTokens(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM password_reset_tokens WHERE expires_at < ?`), time.Now().UTC())
	return err
}
