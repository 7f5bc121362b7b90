// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"codeberg.org/oliverandrich/model-judge/internal/config"
	"codeberg.org/oliverandrich/model-judge/internal/models"
	"codeberg.org/oliverandrich/model-judge/internal/repository"
	"codeberg.org/oliverandrich/model-judge/internal/services/email"
	"codeberg.org/oliverandrich/model-judge/internal/services/session"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingFields      = errors.New("name, email and password are required")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUnauthorized       = errors.New("unauthorized")
)

// dummyHash is used for constant-time login to prevent timing attacks
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

// Mailer delivers account emails.
type Mailer interface {
	SendVerification(ctx context.Context, toEmail, name, token string) error
	SendPasswordReset(ctx context.Context, toEmail, name, token string, expiry time.Duration) error
}

// Service implements signup, email verification, login and password resets.
type Service struct {
	repo              *repository.Repository
	config            *config.AuthConfig
	sessions          *session.Manager
	mailer            Mailer
	passwordValidator *PasswordValidator
	background        sync.WaitGroup
}

func NewService(repo *repository.Repository, cfg *config.AuthConfig, sessions *session.Manager, mailer Mailer) *Service {
	return &Service{
		repo:              repo,
		config:            cfg,
		sessions:          sessions,
		mailer:            mailer,
		passwordValidator: DefaultPasswordValidator(),
	}
}

// RegisterParams holds the parameters for user registration
type RegisterParams struct {
	Name     string
	Email    string
	Password string
}

// LoginResult is returned after a successful login.
type LoginResult struct {
	Token string
	User  *models.User
}

// Register creates an unverified account and emails a verification link.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*models.User, error) {
	name := strings.TrimSpace(params.Name)
	addr := models.NormalizeEmail(params.Email)
	if name == "" || addr == "" || params.Password == "" {
		return nil, ErrMissingFields
	}

	if parsed, err := mail.ParseAddress(addr); err != nil || parsed.Address != addr {
		return nil, ErrInvalidEmail
	}

	if verr := s.passwordValidator.Validate(params.Password, name, addr); verr != nil {
		return nil, verr
	}

	exists, err := s.repo.EmailExists(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if exists {
		return nil, ErrUserExists
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	token, hash, expiresAt, err := email.GenerateToken(s.config.VerificationTTL)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.CreateUserWithVerification(ctx, name, addr, string(passwordHash), hash, expiresAt)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.dispatch(ctx, "verification", user, func(ctx context.Context) error {
		return s.mailer.SendVerification(ctx, user.Email, user.Name, token)
	})

	slog.Info("signup_success", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// VerifyEmail consumes a verification token and marks its user as verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	stored, err := s.repo.GetEmailVerificationToken(ctx, email.HashToken(token))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load verification token: %w", err)
	}

	if stored.Expired(time.Now()) {
		_ = s.repo.DeleteEmailVerificationToken(ctx, stored.ID)
		slog.Warn("verify_failed", "user_id", stored.UserID, "reason", "expired")
		return nil, ErrInvalidToken
	}

	if err := s.repo.MarkUserVerified(ctx, stored.UserID); err != nil {
		return nil, fmt.Errorf("failed to verify user: %w", err)
	}
	if err := s.repo.DeleteUserEmailVerificationTokens(ctx, stored.UserID); err != nil {
		return nil, fmt.Errorf("failed to delete verification tokens: %w", err)
	}

	user, err := s.repo.GetUserByID(ctx, stored.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	slog.Info("verify_success", "user_id", user.ID)
	return user, nil
}

// Login authenticates a verified user and issues a bearer token.
func (s *Service) Login(ctx context.Context, emailAddr, password string) (*LoginResult, error) {
	addr := models.NormalizeEmail(emailAddr)

	user, err := s.repo.GetUserByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Constant-time: always perform bcrypt comparison to prevent timing attacks
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			slog.Warn("login_failed", "email", addr, "reason", "user_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Warn("login_failed", "email", addr, "reason", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	if !user.IsVerified {
		slog.Warn("login_failed", "email", addr, "reason", "not_verified")
		return nil, ErrEmailNotVerified
	}

	token, err := s.sessions.Issue(user.ID)
	if err != nil {
		return nil, err
	}

	slog.Info("login_success", "user_id", user.ID, "email", addr)
	return &LoginResult{Token: token, User: user}, nil
}

// ForgotPassword emails a reset link if the address belongs to an account.
// Unknown addresses are not reported to the caller.
func (s *Service) ForgotPassword(ctx context.Context, emailAddr string) error {
	addr := models.NormalizeEmail(emailAddr)

	user, err := s.repo.GetUserByEmail(ctx, addr)
	if errors.Is(err, repository.ErrNotFound) {
		slog.Info("password_reset_requested", "email", addr, "known", false)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	token, hash, expiresAt, err := email.GenerateToken(s.config.ResetTTL)
	if err != nil {
		return err
	}
	if err := s.repo.CreatePasswordResetToken(ctx, user.ID, hash, expiresAt); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	ttl := s.config.ResetTTL
	s.dispatch(ctx, "password_reset", user, func(ctx context.Context) error {
		return s.mailer.SendPasswordReset(ctx, user.Email, user.Name, token, ttl)
	})

	slog.Info("password_reset_requested", "user_id", user.ID, "known", true)
	return nil
}

// ResetPassword sets a new password using a reset token.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if token == "" {
		return ErrInvalidToken
	}

	stored, err := s.repo.GetPasswordResetToken(ctx, email.HashToken(token))
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return fmt.Errorf("failed to load reset token: %w", err)
	}
	if stored.Expired(time.Now()) {
		return ErrInvalidToken
	}

	user, err := s.repo.GetUserByID(ctx, stored.UserID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	if verr := s.passwordValidator.Validate(password, user.Name, user.Email); verr != nil {
		return verr
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.repo.ConsumePasswordReset(ctx, user.ID, string(passwordHash)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	slog.Info("password_reset_success", "user_id", user.ID)
	return nil
}

// Authenticate resolves a bearer token to a verified user.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	userID, err := s.sessions.Verify(token)
	if err != nil {
		return nil, ErrUnauthorized
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !user.IsVerified {
		return nil, ErrUnauthorized
	}

	return user, nil
}

// Wait blocks until all background email deliveries have finished.
func (s *Service) Wait() {
	s.background.Wait()
}

// dispatch sends an email in the background. Failures are only logged.
func (s *Service) dispatch(ctx context.Context, kind string, user *models.User, send func(context.Context) error) {
	// Keep locale values but outlive the request
	ctx = context.WithoutCancel(ctx)

	s.background.Add(1)
	go func() {
		defer s.background.Done()

		ctx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		if err := send(ctx); err != nil {
			slog.Error("email_failed", "kind", kind, "user_id", user.ID, "error", err)
		}
	}()
}
