// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package chat_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/model-judge/internal/config"
	"codeberg.org/oliverandrich/model-judge/internal/models"
	"codeberg.org/oliverandrich/model-judge/internal/repository"
	"codeberg.org/oliverandrich/model-judge/internal/services/chat"
	"codeberg.org/oliverandrich/model-judge/internal/services/judge"
	"codeberg.org/oliverandrich/model-judge/internal/services/provider"
	"codeberg.org/oliverandrich/model-judge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, a, b provider.Source) (*chat.Service, *repository.Repository, *models.User) {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	user := testutil.NewVerifiedUser(t, repo, "asker@example.com")
	svc := chat.NewService(repo, a, b, judge.NewLengthJudge(provider.DefaultClassifier()),
		config.HistoryConfig{DefaultLimit: 50, MaxLimit: 200})
	return svc, repo, user
}

func TestSubmitQuestion_RoundTrip(t *testing.T) {
	gpt := &testutil.StubSource{Name: provider.KeyGPT, Answer: "4"}
	gemini := &testutil.StubSource{Name: provider.KeyGemini, Answer: provider.GeminiNotConfigured}
	svc, _, user := newService(t, gpt, gemini)
	ctx := context.Background()

	res, err := svc.SubmitQuestion(ctx, user.ID, "What is 2+2?", nil)

	require.NoError(t, err)
	assert.Equal(t, "What is 2+2?", res.Question)
	assert.Equal(t, "4", res.BestAnswer)
	assert.Equal(t, provider.KeyGPT, res.ChosenModel)
	assert.NotEmpty(t, res.JudgeExplanation)
	require.Len(t, res.ModelsConsidered, 2)
	assert.Equal(t, provider.KeyGPT, res.ModelsConsidered[0].Provider)
	assert.Equal(t, "4", res.ModelsConsidered[0].Answer)
	assert.Equal(t, provider.KeyGemini, res.ModelsConsidered[1].Provider)
	assert.Equal(t, provider.GeminiNotConfigured, res.ModelsConsidered[1].Answer)
	assert.NotZero(t, res.RootID)

	thread, err := svc.GetThread(ctx, user.ID, res.RootID)
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.Equal(t, res.RootID, thread[0].ID)
	assert.Equal(t, "What is 2+2?", thread[0].Question)
	assert.Equal(t, "4", thread[0].BestAnswer)
	assert.Equal(t, provider.KeyGPT, thread[0].ModelUsed)
}

func TestSubmitQuestion_ReturnsQuestionAsGiven(t *testing.T) {
	svc, _, user := newService(t,
		&testutil.StubSource{Name: provider.KeyGPT, Answer: "a"},
		&testutil.StubSource{Name: provider.KeyGemini, Answer: "b"})
	ctx := context.Background()

	res, err := svc.SubmitQuestion(ctx, user.ID, "  hello\n", nil)

	require.NoError(t, err)
	assert.Equal(t, "  hello\n", res.Question)

	thread, err := svc.GetThread(ctx, user.ID, res.RootID)
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.Equal(t, "  hello\n", thread[0].Question)
}

func TestSubmitQuestion_EmptyQuestion(t *testing.T) {
	gpt := &testutil.StubSource{Name: provider.KeyGPT, Answer: "a"}
	gemini := &testutil.StubSource{Name: provider.KeyGemini, Answer: "b"}
	svc, _, user := newService(t, gpt, gemini)

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := svc.SubmitQuestion(context.Background(), user.ID, q, nil)
		assert.ErrorIs(t, err, chat.ErrEmptyQuestion)
	}

	assert.Zero(t, gpt.Calls())
	assert.Zero(t, gemini.Calls())
}

func TestSubmitQuestion_FollowUpJoinsThread(t *testing.T) {
	svc, _, user := newService(t,
		&testutil.StubSource{Name: provider.KeyGPT, Answer: "short"},
		&testutil.StubSource{Name: provider.KeyGemini, Answer: "a longer answer"})
	ctx := context.Background()

	first, err := svc.SubmitQuestion(ctx, user.ID, "first", nil)
	require.NoError(t, err)
	assert.Equal(t, provider.KeyGemini, first.ChosenModel)

	root := first.RootID
	second, err := svc.SubmitQuestion(ctx, user.ID, "second", &root)
	require.NoError(t, err)
	assert.Equal(t, root, second.RootID)

	thread, err := svc.GetThread(ctx, user.ID, root)
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Equal(t, "first", thread[0].Question)
	assert.Equal(t, "second", thread[1].Question)

	roots, err := svc.ListThreads(ctx, user.ID, 0)
	require.NoError(t, err)
	assert.Len(t, roots, 1)
}

func TestSubmitQuestion_UnknownRootStartsNewThread(t *testing.T) {
	svc, repo, user := newService(t,
		&testutil.StubSource{Name: provider.KeyGPT, Answer: "a"},
		&testutil.StubSource{Name: provider.KeyGemini, Answer: "b"})
	ctx := context.Background()

	other := testutil.NewVerifiedUser(t, repo, "other@example.com")
	foreign, err := svc.SubmitQuestion(ctx, other.ID, "not yours", nil)
	require.NoError(t, err)

	for _, bogus := range []int64{987654, foreign.RootID} {
		res, err := svc.SubmitQuestion(ctx, user.ID, "question", &bogus)
		require.NoError(t, err)
		assert.NotEqual(t, bogus, res.RootID)

		thread, err := svc.GetThread(ctx, user.ID, res.RootID)
		require.NoError(t, err)
		require.Len(t, thread, 1)
		assert.True(t, thread[0].IsRoot())
	}

	// The foreign thread is untouched
	thread, err := svc.GetThread(ctx, other.ID, foreign.RootID)
	require.NoError(t, err)
	assert.Len(t, thread, 1)
}

func TestSubmitQuestion_DeletedRootStartsNewThread(t *testing.T) {
	svc, _, user := newService(t,
		&testutil.StubSource{Name: provider.KeyGPT, Answer: "a"},
		&testutil.StubSource{Name: provider.KeyGemini, Answer: "b"})
	ctx := context.Background()

	first, err := svc.SubmitQuestion(ctx, user.ID, "first", nil)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteThread(ctx, user.ID, first.RootID))

	root := first.RootID
	res, err := svc.SubmitQuestion(ctx, user.ID, "again", &root)

	require.NoError(t, err)
	assert.NotEqual(t, root, res.RootID)
}

// racingStore deletes the thread between the root check and the append.
type racingStore struct {
	*repository.Repository
}

func (r *racingStore) RootExists(ctx context.Context, userID, rootID int64) (bool, error) {
	ok, err := r.Repository.RootExists(ctx, userID, rootID)
	if err != nil || !ok {
		return ok, err
	}
	if _, err := r.Repository.DeleteThread(ctx, userID, rootID); err != nil {
		return false, err
	}
	return true, nil
}

func TestSubmitQuestion_RootDeletedMidRequest(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	user := testutil.NewVerifiedUser(t, repo, "asker@example.com")
	svc := chat.NewService(&racingStore{Repository: repo},
		&testutil.StubSource{Name: provider.KeyGPT, Answer: "a"},
		&testutil.StubSource{Name: provider.KeyGemini, Answer: "b"},
		judge.NewLengthJudge(provider.DefaultClassifier()),
		config.HistoryConfig{})
	ctx := context.Background()

	first, err := svc.SubmitQuestion(ctx, user.ID, "first", nil)
	require.NoError(t, err)

	root := first.RootID
	res, err := svc.SubmitQuestion(ctx, user.ID, "follow-up", &root)
	require.NoError(t, err)
	assert.NotEqual(t, root, res.RootID)

	roots, err := svc.ListThreads(ctx, user.ID, 0)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, res.RootID, roots[0].ID)

	_, err = svc.GetThread(ctx, user.ID, root)
	require.ErrorIs(t, err, chat.ErrThreadNotFound)

	require.NoError(t, svc.DeleteThread(ctx, user.ID, res.RootID))

	fixed, err := repo.RepairOrphanRoots(ctx)
	require.NoError(t, err)
	assert.Zero(t, fixed)
}

// barrierSource blocks until every source sharing the barrier has started.
type barrierSource struct {
	testutil.StubSource
	wg *sync.WaitGroup
}

func (b *barrierSource) FetchAnswer(ctx context.Context, q string) string {
	b.wg.Done()
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return b.StubSource.FetchAnswer(ctx, q)
	case <-time.After(2 * time.Second):
		return "No answer from " + b.Name
	}
}

func TestSubmitQuestion_FetchesConcurrently(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(2)
	gpt := &barrierSource{StubSource: testutil.StubSource{Name: provider.KeyGPT, Answer: "from gpt"}, wg: &wg}
	gemini := &barrierSource{StubSource: testutil.StubSource{Name: provider.KeyGemini, Answer: "from gemini!"}, wg: &wg}
	svc, _, user := newService(t, gpt, gemini)

	res, err := svc.SubmitQuestion(context.Background(), user.ID, "q", nil)

	require.NoError(t, err)
	assert.Equal(t, "from gpt", res.ModelsConsidered[0].Answer)
	assert.Equal(t, "from gemini!", res.ModelsConsidered[1].Answer)
	assert.Equal(t, provider.KeyGemini, res.ChosenModel)
}

type failingStore struct {
	chat.Store
	appendErr error
}

func (f *failingStore) AppendConversation(context.Context, int64, string, string, string, *int64) (*models.Conversation, error) {
	return nil, f.appendErr
}

func (f *failingStore) RootExists(context.Context, int64, int64) (bool, error) {
	return false, errors.New("database is locked")
}

func TestSubmitQuestion_PersistenceFailure(t *testing.T) {
	storeErr := errors.New("disk full")
	svc := chat.NewService(&failingStore{appendErr: storeErr},
		&testutil.StubSource{Name: provider.KeyGPT, Answer: "a"},
		&testutil.StubSource{Name: provider.KeyGemini, Answer: "b"},
		judge.NewLengthJudge(provider.DefaultClassifier()),
		config.HistoryConfig{})

	_, err := svc.SubmitQuestion(context.Background(), 1, "q", nil)
	require.ErrorIs(t, err, storeErr)

	root := int64(5)
	_, err = svc.SubmitQuestion(context.Background(), 1, "q", &root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checking thread root")
}

func TestListThreads_Limit(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	user := testutil.NewVerifiedUser(t, repo, "asker@example.com")
	svc := chat.NewService(repo,
		&testutil.StubSource{Name: provider.KeyGPT, Answer: "a"},
		&testutil.StubSource{Name: provider.KeyGemini, Answer: "b"},
		judge.NewLengthJudge(provider.DefaultClassifier()),
		config.HistoryConfig{DefaultLimit: 2, MaxLimit: 3})
	ctx := context.Background()

	for _, q := range []string{"one", "two", "three", "four"} {
		_, err := svc.SubmitQuestion(ctx, user.ID, q, nil)
		require.NoError(t, err)
	}

	roots, err := svc.ListThreads(ctx, user.ID, 0)
	require.NoError(t, err)
	require.Len(t, roots, 2)
	assert.Equal(t, "four", roots[0].Question)
	assert.Equal(t, "three", roots[1].Question)

	roots, err = svc.ListThreads(ctx, user.ID, 100)
	require.NoError(t, err)
	assert.Len(t, roots, 3)
}

func TestClampLimit(t *testing.T) {
	svc := chat.NewService(nil, nil, nil, nil, config.HistoryConfig{})

	assert.Equal(t, 50, svc.ClampLimit(0))
	assert.Equal(t, 50, svc.ClampLimit(-3))
	assert.Equal(t, 1, svc.ClampLimit(1))
	assert.Equal(t, 120, svc.ClampLimit(120))
	assert.Equal(t, 200, svc.ClampLimit(5000))
}

func TestGetThread_NotFound(t *testing.T) {
	svc, _, user := newService(t,
		&testutil.StubSource{Name: provider.KeyGPT, Answer: "a"},
		&testutil.StubSource{Name: provider.KeyGemini, Answer: "b"})

	_, err := svc.GetThread(context.Background(), user.ID, 31337)

	assert.ErrorIs(t, err, chat.ErrThreadNotFound)
}

func TestDeleteThread(t *testing.T) {
	svc, repo, user := newService(t,
		&testutil.StubSource{Name: provider.KeyGPT, Answer: "a"},
		&testutil.StubSource{Name: provider.KeyGemini, Answer: "b"})
	ctx := context.Background()
	intruder := testutil.NewVerifiedUser(t, repo, "intruder@example.com")

	res, err := svc.SubmitQuestion(ctx, user.ID, "q", nil)
	require.NoError(t, err)

	err = svc.DeleteThread(ctx, intruder.ID, res.RootID)
	require.ErrorIs(t, err, chat.ErrThreadNotFound)

	require.NoError(t, svc.DeleteThread(ctx, user.ID, res.RootID))

	err = svc.DeleteThread(ctx, user.ID, res.RootID)
	assert.ErrorIs(t, err, chat.ErrThreadNotFound)
}
