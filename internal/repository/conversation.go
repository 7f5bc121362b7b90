// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/oliverandrich/model-judge/internal/models"
	"github.com/vinovest/sqlx"
)

// AppendConversation stores one exchange for the user and returns it.
// A nil rootID starts a new thread whose root is the new record itself.
// A rootID that is no longer a root owned by the user also starts a new
// thread. The root check, insert and root fixup run in a single transaction.
func (r *Repository) AppendConversation(ctx context.Context, userID int64, question, bestAnswer, modelUsed string, rootID *int64) (*models.Conversation, error) {
	conv := &models.Conversation{
		UserID:     userID,
		Question:   question,
		BestAnswer: bestAnswer,
		ModelUsed:  modelUsed,
		CreatedAt:  time.Now().UTC(),
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if rootID != nil {
		ok, err := rootExists(ctx, tx, userID, *rootID)
		if err != nil {
			return nil, fmt.Errorf("check conversation root: %w", err)
		}
		if ok {
			root := *rootID
			conv.RootID = &root
		}
	}

	err = tx.GetContext(ctx, &conv.ID, tx.Rebind(
		`INSERT INTO conversations (user_id, question, best_answer, model_used, root_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		conv.UserID, conv.Question, conv.BestAnswer, conv.ModelUsed, conv.RootID, conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", wrapError(err))
	}

	if conv.RootID == nil {
		if _, err := tx.ExecContext(ctx, tx.Rebind(
			`UPDATE conversations SET root_id = id WHERE id = ?`), conv.ID); err != nil {
			return nil, fmt.Errorf("set conversation root: %w", err)
		}
		id := conv.ID
		conv.RootID = &id
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return conv, nil
}

// RootExists reports whether rootID is a thread root owned by the user.
func (r *Repository) RootExists(ctx context.Context, userID, rootID int64) (bool, error) {
	return rootExists(ctx, r.db, userID, rootID)
}

func rootExists(ctx context.Context, q sqlx.ExtContext, userID, rootID int64) (bool, error) {
	var count int64
	err := sqlx.GetContext(ctx, q, &count, q.Rebind(
		`SELECT COUNT(*) FROM conversations WHERE id = ? AND user_id = ? AND root_id = id`),
		rootID, userID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListRoots returns the user's thread roots, newest first.
func (r *Repository) ListRoots(ctx context.Context, userID int64, limit int) ([]models.Conversation, error) {
	convs := []models.Conversation{}
	err := r.db.SelectContext(ctx, &convs, r.db.Rebind(
		`SELECT * FROM conversations
		 WHERE user_id = ? AND root_id = id
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`),
		userID, limit)
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// ListThread returns every exchange of the user's thread, oldest first.
func (r *Repository) ListThread(ctx context.Context, userID, rootID int64) ([]models.Conversation, error) {
	convs := []models.Conversation{}
	err := r.db.SelectContext(ctx, &convs, r.db.Rebind(
		`SELECT * FROM conversations
		 WHERE user_id = ? AND root_id = ?
		 ORDER BY created_at ASC, id ASC`),
		userID, rootID)
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// DeleteThread removes every exchange of the user's thread.
// The root check and the delete are one statement; ErrNotFound is returned
// when rootID is not a root owned by the user.
func (r *Repository) DeleteThread(ctx context.Context, userID, rootID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(
		`DELETE FROM conversations
		 WHERE user_id = ? AND root_id = ?
		   AND EXISTS (SELECT 1 FROM conversations c WHERE c.id = ? AND c.user_id = ? AND c.root_id = c.id)`),
		userID, rootID, rootID, userID)
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	return n, nil
}

// danglingThread is a group of records whose root_id does not point at a
// root owned by the same user.
type danglingThread struct {
	UserID  int64 `db:"user_id"`
	RootID  int64 `db:"root_id"`
	NewRoot int64 `db:"new_root"`
}

// RepairOrphanRoots turns records without a root into roots of their own.
// Records whose root is gone are regrouped under the oldest remaining
// record of their thread. It returns the number of records fixed.
func (r *Repository) RepairOrphanRoots(ctx context.Context) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE conversations SET root_id = id WHERE root_id IS NULL`)
	if err != nil {
		return 0, err
	}
	fixed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	var dangling []danglingThread
	err = tx.SelectContext(ctx, &dangling,
		`SELECT c.user_id, c.root_id, MIN(c.id) AS new_root
		 FROM conversations c
		 WHERE NOT EXISTS (
		   SELECT 1 FROM conversations r
		   WHERE r.id = c.root_id AND r.user_id = c.user_id AND r.root_id = r.id)
		 GROUP BY c.user_id, c.root_id`)
	if err != nil {
		return 0, err
	}

	for _, d := range dangling {
		res, err := tx.ExecContext(ctx, tx.Rebind(
			`UPDATE conversations SET root_id = ? WHERE user_id = ? AND root_id = ?`),
			d.NewRoot, d.UserID, d.RootID)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		fixed += n
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return fixed, nil
}
