// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// Conversation is one persisted question/answer exchange.
// A root has RootID equal to its own ID; follow-ups carry the root's ID.
type Conversation struct { //nolint:govet // fieldalignment: readability over optimization
	ID         int64     `db:"id" json:"id"`
	UserID     int64     `db:"user_id" json:"-"`
	Question   string    `db:"question" json:"question"`
	BestAnswer string    `db:"best_answer" json:"best_answer"`
	ModelUsed  string    `db:"model_used" json:"model_used"`
	RootID     *int64    `db:"root_id" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ThreadID returns the root this exchange belongs to.
// Rows with a missing root are treated as their own root.
func (c *Conversation) ThreadID() int64 {
	if c.RootID == nil {
		return c.ID
	}
	return *c.RootID
}

// IsRoot reports whether the exchange starts a thread.
func (c *Conversation) IsRoot() bool {
	return c.RootID == nil || *c.RootID == c.ID
}
