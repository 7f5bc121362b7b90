// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package chat answers questions by querying two providers, judging the
// results and storing the winner in the asker's conversation threads.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"codeberg.org/oliverandrich/model-judge/internal/config"
	"codeberg.org/oliverandrich/model-judge/internal/models"
	"codeberg.org/oliverandrich/model-judge/internal/repository"
	"codeberg.org/oliverandrich/model-judge/internal/services/judge"
	"codeberg.org/oliverandrich/model-judge/internal/services/provider"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrEmptyQuestion is returned when the question has no content.
	ErrEmptyQuestion = errors.New("question is required")
	// ErrThreadNotFound is returned for threads the user does not own or that do not exist.
	ErrThreadNotFound = errors.New("thread not found")
)

// Store persists conversation threads.
type Store interface {
	AppendConversation(ctx context.Context, userID int64, question, bestAnswer, modelUsed string, rootID *int64) (*models.Conversation, error)
	RootExists(ctx context.Context, userID, rootID int64) (bool, error)
	ListRoots(ctx context.Context, userID int64, limit int) ([]models.Conversation, error)
	ListThread(ctx context.Context, userID, rootID int64) ([]models.Conversation, error)
	DeleteThread(ctx context.Context, userID, rootID int64) (int64, error)
}

// Result is the response to a submitted question.
type Result struct {
	Question         string            `json:"question"`
	BestAnswer       string            `json:"bestAnswer"`
	ChosenModel      string            `json:"chosenModel"`
	JudgeExplanation string            `json:"judgeExplanation,omitempty"`
	ModelsConsidered []judge.Candidate `json:"modelsConsidered"`
	RootID           int64             `json:"rootConversationId"`
}

// Service orchestrates a single question from fan-out to persistence.
type Service struct {
	store     Store
	primary   provider.Source
	secondary provider.Source
	judge     judge.Judge
	history   config.HistoryConfig
}

// NewService creates a chat service. The primary source wins ties and judge fallbacks.
func NewService(store Store, primary, secondary provider.Source, j judge.Judge, history config.HistoryConfig) *Service {
	if history.DefaultLimit <= 0 {
		history.DefaultLimit = 50
	}
	if history.MaxLimit <= 0 {
		history.MaxLimit = 200
	}
	return &Service{
		store:     store,
		primary:   primary,
		secondary: secondary,
		judge:     j,
		history:   history,
	}
}

// SubmitQuestion answers a question for the user and appends it to a thread.
// A nil or unknown rootID starts a new thread. The question is passed on as
// given; surrounding whitespace only matters for the empty check.
func (s *Service) SubmitQuestion(ctx context.Context, userID int64, question string, rootID *int64) (*Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	root, err := s.resolveRoot(ctx, userID, rootID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	a, b := s.fetch(ctx, question)

	verdict := s.judge.Judge(ctx, question, a, b)

	conv, err := s.store.AppendConversation(ctx, userID, question, verdict.BestAnswer, verdict.Model, root)
	if err != nil {
		return nil, fmt.Errorf("persisting conversation: %w", err)
	}
	if root != nil && conv.ThreadID() != *root {
		slog.Info("chat_root_ignored", "user_id", userID, "root_id", *root, "reason", "deleted")
	}

	slog.Info("chat_answered",
		"user_id", userID,
		"conversation_id", conv.ID,
		"root_id", conv.ThreadID(),
		"chosen_model", verdict.Model,
		"duration", time.Since(start),
	)

	return &Result{
		Question:         question,
		BestAnswer:       verdict.BestAnswer,
		ChosenModel:      verdict.Model,
		JudgeExplanation: verdict.Explanation,
		ModelsConsidered: []judge.Candidate{a, b},
		RootID:           conv.ThreadID(),
	}, nil
}

// fetch queries both sources concurrently and waits for both.
func (s *Service) fetch(ctx context.Context, question string) (judge.Candidate, judge.Candidate) {
	var a, b judge.Candidate
	var g errgroup.Group

	g.Go(func() error {
		a = judge.Candidate{Provider: s.primary.Key(), Model: s.primary.Model(), Answer: s.primary.FetchAnswer(ctx, question)}
		return nil
	})
	g.Go(func() error {
		b = judge.Candidate{Provider: s.secondary.Key(), Model: s.secondary.Model(), Answer: s.secondary.FetchAnswer(ctx, question)}
		return nil
	})

	// Sources never fail; Wait only joins.
	_ = g.Wait()
	return a, b
}

func (s *Service) resolveRoot(ctx context.Context, userID int64, rootID *int64) (*int64, error) {
	if rootID == nil {
		return nil, nil
	}

	ok, err := s.store.RootExists(ctx, userID, *rootID)
	if err != nil {
		return nil, fmt.Errorf("checking thread root: %w", err)
	}
	if !ok {
		slog.Info("chat_root_ignored", "user_id", userID, "root_id", *rootID)
		return nil, nil
	}

	root := *rootID
	return &root, nil
}

// ListThreads returns the user's thread roots, newest first.
func (s *Service) ListThreads(ctx context.Context, userID int64, limit int) ([]models.Conversation, error) {
	roots, err := s.store.ListRoots(ctx, userID, s.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	return roots, nil
}

// GetThread returns every exchange in the user's thread, oldest first.
func (s *Service) GetThread(ctx context.Context, userID, rootID int64) ([]models.Conversation, error) {
	items, err := s.store.ListThread(ctx, userID, rootID)
	if err != nil {
		return nil, fmt.Errorf("loading thread: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrThreadNotFound
	}
	return items, nil
}

// DeleteThread removes the user's thread.
func (s *Service) DeleteThread(ctx context.Context, userID, rootID int64) error {
	n, err := s.store.DeleteThread(ctx, userID, rootID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrThreadNotFound
	}
	if err != nil {
		return fmt.Errorf("deleting thread: %w", err)
	}

	slog.Info("thread_deleted", "user_id", userID, "root_id", rootID, "records", n)
	return nil
}

// ClampLimit applies the default for non-positive limits and caps at the maximum.
func (s *Service) ClampLimit(limit int) int {
	if limit <= 0 {
		return s.history.DefaultLimit
	}
	if limit > s.history.MaxLimit {
		return s.history.MaxLimit
	}
	return limit
}
