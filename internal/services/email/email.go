// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"codeberg.org/oliverandrich/model-judge/internal/config"
	"codeberg.org/oliverandrich/model-judge/internal/i18n"
	"github.com/wneessen/go-mail"
)

// TokenLength is the number of random bytes for emailed tokens.
const TokenLength = 32

// Links builds the URLs placed into account emails.
type Links struct {
	// BaseURL serves the verification endpoint.
	BaseURL string
	// FrontendURL serves the password reset page.
	FrontendURL string
}

// VerifyURL returns the verification link for a token.
func (l Links) VerifyURL(token string) string {
	return fmt.Sprintf("%s/auth/verify-email?token=%s", strings.TrimSuffix(l.BaseURL, "/"), url.QueryEscape(token))
}

// ResetURL returns the password reset link for a token.
func (l Links) ResetURL(token string) string {
	return fmt.Sprintf("%s/reset-password.html?token=%s", strings.TrimSuffix(l.FrontendURL, "/"), url.QueryEscape(token))
}

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// GenerateToken generates a new emailed token valid for ttl.
// Returns (plaintext token, SHA256 hash for storage, expiry time, error).
func GenerateToken(ttl time.Duration) (string, string, time.Time, error) {
	bytes := make([]byte, TokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", time.Time{}, fmt.Errorf("failed to generate random bytes: %w", err)
	}

	plaintext := hex.EncodeToString(bytes)
	hash := HashToken(plaintext)
	expiresAt := time.Now().Add(ttl)

	return plaintext, hash, expiresAt, nil
}

// HashToken computes the SHA256 hash of a token.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// VerificationMessage renders the verification email in the context's locale.
func VerificationMessage(ctx context.Context, links Links, toEmail, name, token string) Message {
	data := map[string]any{
		"AppName":   i18n.T(ctx, "app_name"),
		"Name":      name,
		"VerifyURL": links.VerifyURL(token),
	}
	return Message{
		To:      toEmail,
		Subject: i18n.TData(ctx, "email_verification_subject", data),
		Body:    i18n.TData(ctx, "email_verification_body", data),
	}
}

// ResetMessage renders the password reset email in the context's locale.
func ResetMessage(ctx context.Context, links Links, toEmail, name, token string, expiry time.Duration) Message {
	data := map[string]any{
		"AppName":  i18n.T(ctx, "app_name"),
		"Name":     name,
		"ResetURL": links.ResetURL(token),
		"Expiry":   expiry.String(),
	}
	return Message{
		To:      toEmail,
		Subject: i18n.TData(ctx, "email_reset_subject", data),
		Body:    i18n.TData(ctx, "email_reset_body", data),
	}
}

// Service sends account emails over SMTP.
type Service struct {
	cfg   *config.SMTPConfig
	links Links
}

// NewService creates a new email service.
func NewService(cfg *config.SMTPConfig, links Links) (*Service, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}

	return &Service{cfg: cfg, links: links}, nil
}

// SendVerification sends a verification email with the given token.
func (s *Service) SendVerification(ctx context.Context, toEmail, name, token string) error {
	return s.send(ctx, VerificationMessage(ctx, s.links, toEmail, name, token))
}

// SendPasswordReset sends a password reset email with the given token.
func (s *Service) SendPasswordReset(ctx context.Context, toEmail, name, token string, expiry time.Duration) error {
	return s.send(ctx, ResetMessage(ctx, s.links, toEmail, name, token, expiry))
}

// buildMsg converts a rendered message into a go-mail message.
func (s *Service) buildMsg(m Message) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(m.To); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextPlain, m.Body)

	return msg, nil
}

// clientOptions derives go-mail options from the SMTP config.
func (s *Service) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	// Configure TLS based on config and port
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// Use implicit TLS (SSL) for port 465, STARTTLS for others
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	// Add authentication if credentials are provided
	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	return opts
}

// send delivers a message via SMTP using go-mail.
func (s *Service) send(ctx context.Context, m Message) error {
	msg, err := s.buildMsg(m)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	slog.Info("email_sent", "to", m.To, "subject", m.Subject)
	return nil
}

// LogMailer writes account emails to the log instead of sending them.
// It is used when no SMTP server is configured.
type LogMailer struct {
	links Links
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(links Links) *LogMailer {
	return &LogMailer{links: links}
}

// SendVerification logs the verification email.
func (l *LogMailer) SendVerification(ctx context.Context, toEmail, name, token string) error {
	m := VerificationMessage(ctx, l.links, toEmail, name, token)
	slog.Info("email_logged", "to", m.To, "subject", m.Subject, "url", l.links.VerifyURL(token))
	return nil
}

// SendPasswordReset logs the password reset email.
func (l *LogMailer) SendPasswordReset(ctx context.Context, toEmail, name, token string, expiry time.Duration) error {
	m := ResetMessage(ctx, l.links, toEmail, name, token, expiry)
	slog.Info("email_logged", "to", m.To, "subject", m.Subject, "url", l.links.ResetURL(token))
	return nil
}
