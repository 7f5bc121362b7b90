// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/oliverandrich/model-judge/internal/config"
	"codeberg.org/oliverandrich/model-judge/internal/i18n"
	"codeberg.org/oliverandrich/model-judge/internal/services/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func validSMTPConfig() *config.SMTPConfig {
	return &config.SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "testuser",
		Password: "testpass",
		From:     "noreply@example.com",
		FromName: "Test App",
		TLS:      true,
	}
}

var links = email.Links{
	BaseURL:     "https://api.example.com/",
	FrontendURL: "https://app.example.com",
}

func TestNewService(t *testing.T) {
	svc, err := email.NewService(validSMTPConfig(), links)

	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestNewService_MissingHost(t *testing.T) {
	cfg := validSMTPConfig()
	cfg.Host = ""

	_, err := email.NewService(cfg, links)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP host is required")
}

func TestNewService_MissingFrom(t *testing.T) {
	cfg := validSMTPConfig()
	cfg.From = ""

	_, err := email.NewService(cfg, links)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP from address is required")
}

func TestLinks(t *testing.T) {
	assert.Equal(t, "https://api.example.com/auth/verify-email?token=abc", links.VerifyURL("abc"))
	assert.Equal(t, "https://app.example.com/reset-password.html?token=abc", links.ResetURL("abc"))
}

func TestGenerateToken(t *testing.T) {
	plaintext, hash, expiresAt, err := email.GenerateToken(time.Hour)

	require.NoError(t, err)

	// Plaintext should be 64 hex chars (32 bytes)
	assert.Len(t, plaintext, 64)

	// Hash should be 64 hex chars (SHA256 = 32 bytes)
	assert.Len(t, hash, 64)

	assert.NotEqual(t, plaintext, hash)
	assert.Equal(t, email.HashToken(plaintext), hash)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)
}

func TestGenerateToken_Unique(t *testing.T) {
	tokens := make(map[string]bool)
	hashes := make(map[string]bool)

	for range 10 {
		plaintext, hash, _, err := email.GenerateToken(time.Hour)
		require.NoError(t, err)

		assert.False(t, tokens[plaintext], "duplicate token generated")
		assert.False(t, hashes[hash], "duplicate hash generated")

		tokens[plaintext] = true
		hashes[hash] = true
	}
}

func TestHashToken(t *testing.T) {
	token := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

	hash := email.HashToken(token)

	// SHA256 produces 32 bytes = 64 hex chars
	assert.Len(t, hash, 64)
	assert.Equal(t, hash, email.HashToken(token))
	assert.NotEqual(t, hash, email.HashToken("token2"))
	assert.Len(t, email.HashToken(""), 64)
}

func TestVerificationMessage(t *testing.T) {
	require.NoError(t, i18n.Init())
	ctx := i18n.WithLocale(context.Background(), language.English)

	msg := email.VerificationMessage(ctx, links, "alice@example.com", "Alice", "tok123")

	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, "Verify your email for AI Model Judge", msg.Subject)
	assert.Contains(t, msg.Body, "Hi Alice,")
	assert.Contains(t, msg.Body, "https://api.example.com/auth/verify-email?token=tok123")
}

func TestResetMessage_German(t *testing.T) {
	require.NoError(t, i18n.Init())
	ctx := i18n.WithLocale(context.Background(), language.German)

	msg := email.ResetMessage(ctx, links, "bob@example.com", "Bob", "tok456", time.Hour)

	assert.Equal(t, "Setze dein AI Model Judge-Passwort zurück", msg.Subject)
	assert.Contains(t, msg.Body, "Hallo Bob,")
	assert.Contains(t, msg.Body, "https://app.example.com/reset-password.html?token=tok456")
	assert.Contains(t, msg.Body, "1h0m0s")
}

func TestLogMailer(t *testing.T) {
	require.NoError(t, i18n.Init())
	m := email.NewLogMailer(links)

	assert.NoError(t, m.SendVerification(context.Background(), "a@example.com", "A", "t"))
	assert.NoError(t, m.SendPasswordReset(context.Background(), "a@example.com", "A", "t", time.Hour))
}
