// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"codeberg.org/oliverandrich/model-judge/internal/appcontext"
	"codeberg.org/oliverandrich/model-judge/internal/config"
	"codeberg.org/oliverandrich/model-judge/internal/handlers"
	"codeberg.org/oliverandrich/model-judge/internal/models"
	"codeberg.org/oliverandrich/model-judge/internal/repository"
	"codeberg.org/oliverandrich/model-judge/internal/services/chat"
	"codeberg.org/oliverandrich/model-judge/internal/services/judge"
	"codeberg.org/oliverandrich/model-judge/internal/services/provider"
	"codeberg.org/oliverandrich/model-judge/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatFixture struct {
	h    *handlers.ChatHandlers
	repo *repository.Repository
	user *models.User
	e    *echo.Echo
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	gpt := &testutil.StubSource{Name: provider.KeyGPT, Answer: "Paris."}
	gemini := &testutil.StubSource{Name: provider.KeyGemini, Answer: "The capital of France is Paris."}
	svc := chat.NewService(repo, gpt, gemini, judge.NewLengthJudge(provider.DefaultClassifier()),
		config.HistoryConfig{DefaultLimit: 50, MaxLimit: 200})

	return &chatFixture{
		h:    handlers.NewChat(svc),
		repo: repo,
		user: testutil.NewVerifiedUser(t, repo, "asker@example.com"),
		e:    echo.New(),
	}
}

// as wraps the context the way the auth guard does.
func (f *chatFixture) as(user *models.User, method, path, body string, params ...string) (echo.Context, *httptest.ResponseRecorder) {
	var c echo.Context
	var rec *httptest.ResponseRecorder
	if body == "" {
		c, rec = testutil.NewEchoContext(f.e, method, path, nil)
	} else {
		c, rec = testutil.NewEchoContext(f.e, method, path, strings.NewReader(body))
	}
	if len(params) == 2 {
		c.SetParamNames(params[0])
		c.SetParamValues(params[1])
	}
	return &appcontext.Context{Context: c, User: user}, rec
}

func (f *chatFixture) ask(t *testing.T, body string) (int, chat.Result) {
	t.Helper()
	c, rec := f.as(f.user, http.MethodPost, "/api/chat", body)
	require.NoError(t, f.h.Chat(c))

	var res chat.Result
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	}
	return rec.Code, res
}

func TestChat(t *testing.T) {
	f := newChatFixture(t)

	c, rec := f.as(f.user, http.MethodPost, "/api/chat", `{"question":"What is the capital of France?"}`)
	require.NoError(t, f.h.Chat(c))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "What is the capital of France?", body["question"])
	assert.Equal(t, "The capital of France is Paris.", body["bestAnswer"])
	assert.Equal(t, provider.KeyGemini, body["chosenModel"])
	assert.NotZero(t, body["rootConversationId"])

	considered, ok := body["modelsConsidered"].([]any)
	require.True(t, ok)
	require.Len(t, considered, 2)
	assert.Equal(t, map[string]any{"model": "gpt", "answer": "Paris."}, considered[0])
	assert.Equal(t, map[string]any{"model": "gemini", "answer": "The capital of France is Paris."}, considered[1])
}

func TestChat_FollowUp(t *testing.T) {
	f := newChatFixture(t)

	code, first := f.ask(t, `{"question":"First?"}`)
	require.Equal(t, http.StatusOK, code)

	code, second := f.ask(t, `{"question":"Second?","rootConversationId":`+strconv.FormatInt(first.RootID, 10)+`}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, first.RootID, second.RootID)

	thread, err := f.repo.ListThread(context.Background(), f.user.ID, first.RootID)
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Equal(t, "First?", thread[0].Question)
	assert.Equal(t, "Second?", thread[1].Question)
}

func TestChat_UnknownRootStartsNewThread(t *testing.T) {
	f := newChatFixture(t)

	code, res := f.ask(t, `{"question":"Lost?","rootConversationId":9999}`)

	require.Equal(t, http.StatusOK, code)
	assert.NotEqual(t, int64(9999), res.RootID)
}

func TestChat_InvalidQuestion(t *testing.T) {
	f := newChatFixture(t)

	for _, body := range []string{
		`{}`,
		`{"question":""}`,
		`{"question":"   "}`,
		`{"question":42}`,
		`{"question":null}`,
		`{"question":["a"]}`,
		`{"question":`,
	} {
		t.Run(body, func(t *testing.T) {
			code, _ := f.ask(t, body)
			assert.Equal(t, http.StatusBadRequest, code)
		})
	}

	roots, err := f.repo.ListRoots(context.Background(), f.user.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, roots)
}

func TestChat_RequiresUser(t *testing.T) {
	f := newChatFixture(t)

	c, rec := testutil.NewEchoContext(f.e, http.MethodPost, "/api/chat", strings.NewReader(`{"question":"Hi?"}`))
	require.NoError(t, f.h.Chat(c))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHistory(t *testing.T) {
	f := newChatFixture(t)
	_, first := f.ask(t, `{"question":"One?"}`)
	_, second := f.ask(t, `{"question":"Two?"}`)
	f.ask(t, `{"question":"Two, again?","rootConversationId":`+strconv.FormatInt(second.RootID, 10)+`}`)

	c, rec := f.as(f.user, http.MethodGet, "/api/history", "")
	require.NoError(t, f.h.History(c))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Items []map[string]any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 2)
	assert.Equal(t, float64(second.RootID), body.Items[0]["id"])
	assert.Equal(t, float64(first.RootID), body.Items[1]["id"])
	assert.Equal(t, "Two?", body.Items[0]["question"])
	assert.Contains(t, body.Items[0], "best_answer")
	assert.Contains(t, body.Items[0], "model_used")
	assert.Contains(t, body.Items[0], "created_at")
}

func TestHistory_Limit(t *testing.T) {
	f := newChatFixture(t)
	for range 3 {
		f.ask(t, `{"question":"Again?"}`)
	}

	tests := []struct {
		query string
		count int
	}{
		{"?limit=2", 2},
		{"?limit=0", 3},
		{"?limit=-5", 3},
		{"?limit=abc", 3},
		{"?limit=10000", 3},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c, rec := f.as(f.user, http.MethodGet, "/api/history"+tt.query, "")
			require.NoError(t, f.h.History(c))

			var body handlers.ItemsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Len(t, body.Items, tt.count)
		})
	}
}

func TestHistory_Empty(t *testing.T) {
	f := newChatFixture(t)

	c, rec := f.as(f.user, http.MethodGet, "/api/history", "")
	require.NoError(t, f.h.History(c))

	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
}

func TestThread(t *testing.T) {
	f := newChatFixture(t)
	_, first := f.ask(t, `{"question":"Root?"}`)
	f.ask(t, `{"question":"Follow?","rootConversationId":`+strconv.FormatInt(first.RootID, 10)+`}`)
	id := strconv.FormatInt(first.RootID, 10)

	c, rec := f.as(f.user, http.MethodGet, "/api/thread/"+id, "", "id", id)
	require.NoError(t, f.h.Thread(c))

	require.Equal(t, http.StatusOK, rec.Code)
	var body handlers.ItemsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 2)
	assert.Equal(t, "Root?", body.Items[0].Question)
	assert.Equal(t, "Follow?", body.Items[1].Question)
}

func TestThread_NotFound(t *testing.T) {
	f := newChatFixture(t)
	_, res := f.ask(t, `{"question":"Mine?"}`)
	other := testutil.NewVerifiedUser(t, f.repo, "other@example.com")
	id := strconv.FormatInt(res.RootID, 10)

	for name, tc := range map[string]struct {
		user *models.User
		id   string
	}{
		"unknown id":   {f.user, "9999"},
		"not numeric":  {f.user, "abc"},
		"someone else": {other, id},
	} {
		t.Run(name, func(t *testing.T) {
			c, rec := f.as(tc.user, http.MethodGet, "/api/thread/"+tc.id, "", "id", tc.id)
			require.NoError(t, f.h.Thread(c))
			assert.Equal(t, http.StatusNotFound, rec.Code)
		})
	}
}

func TestDeleteThread(t *testing.T) {
	f := newChatFixture(t)
	_, res := f.ask(t, `{"question":"Delete me?"}`)
	f.ask(t, `{"question":"Me too?","rootConversationId":`+strconv.FormatInt(res.RootID, 10)+`}`)
	id := strconv.FormatInt(res.RootID, 10)

	c, rec := f.as(f.user, http.MethodDelete, "/api/thread/"+id, "", "id", id)
	require.NoError(t, f.h.DeleteThread(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	thread, err := f.repo.ListThread(context.Background(), f.user.ID, res.RootID)
	require.NoError(t, err)
	assert.Empty(t, thread)

	// Deleting again reports not found
	c, rec = f.as(f.user, http.MethodDelete, "/api/thread/"+id, "", "id", id)
	require.NoError(t, f.h.DeleteThread(c))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["error"])
}

func TestDeleteThread_OtherUser(t *testing.T) {
	f := newChatFixture(t)
	_, res := f.ask(t, `{"question":"Keep me?"}`)
	other := testutil.NewVerifiedUser(t, f.repo, "other@example.com")
	id := strconv.FormatInt(res.RootID, 10)

	c, rec := f.as(other, http.MethodDelete, "/api/thread/"+id, "", "id", id)
	require.NoError(t, f.h.DeleteThread(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	thread, err := f.repo.ListThread(context.Background(), f.user.ID, res.RootID)
	require.NoError(t, err)
	assert.Len(t, thread, 1)
}
