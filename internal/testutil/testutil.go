// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/oliverandrich/model-judge/internal/database"
	"codeberg.org/oliverandrich/model-judge/internal/models"
	"codeberg.org/oliverandrich/model-judge/internal/repository"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// TestPassword is the plain-text password of users created by NewTestUser.
const TestPassword = "correct-horse-battery"

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// NewTestUser creates an unverified test user with TestPassword.
func NewTestUser(t *testing.T, repo *repository.Repository, email string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	require.NoError(t, err)
	user, err := repo.CreateUser(context.Background(), "Test User", email, string(hash))
	require.NoError(t, err)
	return user
}

// NewVerifiedUser creates a test user whose email is already verified.
func NewVerifiedUser(t *testing.T, repo *repository.Repository, email string) *models.User {
	t.Helper()
	user := NewTestUser(t, repo, email)
	require.NoError(t, repo.MarkUserVerified(context.Background(), user.ID))
	user.IsVerified = true
	return user
}

// StubSource is an answer source returning a fixed answer.
type StubSource struct {
	Name   string
	Answer string
	calls  atomic.Int32
}

// Key returns the provider key.
func (s *StubSource) Key() string { return s.Name }

// Model returns a fake model name.
func (s *StubSource) Model() string { return s.Name + "-test" }

// FetchAnswer returns the configured answer.
func (s *StubSource) FetchAnswer(_ context.Context, _ string) string {
	s.calls.Add(1)
	return s.Answer
}

// Calls returns how often FetchAnswer was invoked.
func (s *StubSource) Calls() int {
	return int(s.calls.Load())
}

// SentMail is a message captured by RecordingMailer.
type SentMail struct {
	Kind  string
	To    string
	Name  string
	Token string
}

// RecordingMailer captures account emails instead of sending them.
type RecordingMailer struct {
	mu   sync.Mutex
	sent []SentMail
}

// SendVerification records a verification email.
func (m *RecordingMailer) SendVerification(_ context.Context, to, name, token string) error {
	m.record(SentMail{Kind: "verification", To: to, Name: name, Token: token})
	return nil
}

// SendPasswordReset records a password reset email.
func (m *RecordingMailer) SendPasswordReset(_ context.Context, to, name, token string, _ time.Duration) error {
	m.record(SentMail{Kind: "reset", To: to, Name: name, Token: token})
	return nil
}

func (m *RecordingMailer) record(mail SentMail) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail)
}

// Sent returns a copy of all recorded emails.
func (m *RecordingMailer) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMail(nil), m.sent...)
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewEchoContextWithHeaders creates an Echo context with custom headers.
func NewEchoContextWithHeaders(e *echo.Echo, method, path string, body io.Reader, headers map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewRequest creates an HTTP request for testing.
func NewRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}
