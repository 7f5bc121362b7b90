// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"codeberg.org/oliverandrich/model-judge/internal/appcontext"
	"codeberg.org/oliverandrich/model-judge/internal/i18n"
	"codeberg.org/oliverandrich/model-judge/internal/models"
	"codeberg.org/oliverandrich/model-judge/internal/services/chat"
	"github.com/labstack/echo/v4"
)

// ChatHandlers contains handlers for questions and conversation history.
type ChatHandlers struct {
	chat *chat.Service
}

// NewChat creates a new ChatHandlers instance.
func NewChat(svc *chat.Service) *ChatHandlers {
	return &ChatHandlers{chat: svc}
}

// ChatRequest is the request body for asking a question.
// Question stays untyped so non-string values can be rejected with 400.
type ChatRequest struct {
	Question           any    `json:"question"`
	RootConversationID *int64 `json:"rootConversationId"`
}

// ItemsResponse wraps a list of conversation records.
type ItemsResponse struct {
	Items []models.Conversation `json:"items"`
}

// Chat answers a question and stores it in the caller's thread.
func (h *ChatHandlers) Chat(c echo.Context) error {
	user := appcontext.UserFrom(c)
	if user == nil {
		return Unauthorized(c)
	}

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest(c, "error_invalid_request")
	}
	question, ok := req.Question.(string)
	if !ok {
		return BadRequest(c, "error_question_required")
	}

	result, err := h.chat.SubmitQuestion(c.Request().Context(), user.ID, question, req.RootConversationID)
	if errors.Is(err, chat.ErrEmptyQuestion) {
		return BadRequest(c, "error_question_required")
	}
	if err != nil {
		slog.Error("chat_failed", "user_id", user.ID, "error", err)
		return InternalServerError(c)
	}

	return c.JSON(http.StatusOK, result)
}

// History lists the caller's thread roots, newest first.
func (h *ChatHandlers) History(c echo.Context) error {
	user := appcontext.UserFrom(c)
	if user == nil {
		return Unauthorized(c)
	}

	// Unparseable limits fall back to the default
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	items, err := h.chat.ListThreads(c.Request().Context(), user.ID, limit)
	if err != nil {
		slog.Error("history_failed", "user_id", user.ID, "error", err)
		return InternalServerError(c)
	}

	return c.JSON(http.StatusOK, ItemsResponse{Items: nonNil(items)})
}

// Thread returns every exchange of one of the caller's threads, oldest first.
func (h *ChatHandlers) Thread(c echo.Context) error {
	user := appcontext.UserFrom(c)
	if user == nil {
		return Unauthorized(c)
	}

	rootID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return NotFound(c, "error_thread_not_found")
	}

	items, err := h.chat.GetThread(c.Request().Context(), user.ID, rootID)
	if errors.Is(err, chat.ErrThreadNotFound) {
		return NotFound(c, "error_thread_not_found")
	}
	if err != nil {
		slog.Error("thread_failed", "user_id", user.ID, "root_id", rootID, "error", err)
		return InternalServerError(c)
	}

	return c.JSON(http.StatusOK, ItemsResponse{Items: items})
}

// DeleteThread removes one of the caller's threads.
func (h *ChatHandlers) DeleteThread(c echo.Context) error {
	user := appcontext.UserFrom(c)
	if user == nil {
		return Unauthorized(c)
	}

	notFound := func() error {
		return c.JSON(http.StatusNotFound, map[string]any{
			"success": false,
			"error":   i18n.T(c.Request().Context(), "error_thread_not_found"),
		})
	}

	rootID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return notFound()
	}

	err = h.chat.DeleteThread(c.Request().Context(), user.ID, rootID)
	if errors.Is(err, chat.ErrThreadNotFound) {
		return notFound()
	}
	if err != nil {
		slog.Error("thread_delete_failed", "user_id", user.ID, "root_id", rootID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   i18n.T(c.Request().Context(), "error_internal"),
		})
	}

	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func nonNil(items []models.Conversation) []models.Conversation {
	if items == nil {
		return []models.Conversation{}
	}
	return items
}
