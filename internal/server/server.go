// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/oliverandrich/model-judge/internal/config"
	"codeberg.org/oliverandrich/model-judge/internal/database"
	"codeberg.org/oliverandrich/model-judge/internal/handlers"
	"codeberg.org/oliverandrich/model-judge/internal/i18n"
	"codeberg.org/oliverandrich/model-judge/internal/repository"
	"codeberg.org/oliverandrich/model-judge/internal/services/auth"
	"codeberg.org/oliverandrich/model-judge/internal/services/chat"
	"codeberg.org/oliverandrich/model-judge/internal/services/email"
	"codeberg.org/oliverandrich/model-judge/internal/services/judge"
	"codeberg.org/oliverandrich/model-judge/internal/services/provider"
	"codeberg.org/oliverandrich/model-judge/internal/services/session"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
)

// Services bundles the application services behind the HTTP layer.
type Services struct {
	Auth *auth.Service
	Chat *chat.Service
}

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
		"judge_strategy", cfg.Judge.Strategy,
	)

	// Database
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	// i18n
	if initErr := i18n.Init(); initErr != nil {
		return fmt.Errorf("failed to init i18n: %w", initErr)
	}

	// Repository
	repo := repository.New(db)
	if err := repairRoots(ctx, repo); err != nil {
		return err
	}

	svc, err := NewServices(cfg, repo)
	if err != nil {
		return err
	}

	e := NewEcho(cfg, db, svc)

	// Start server
	err = startWithGracefulShutdown(ctx, e, cfg)
	svc.Auth.Wait()
	return err
}

// RepairRoots fixes records stored without a thread root and exits.
func RepairRoots(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	return repairRoots(ctx, repository.New(db))
}

func repairRoots(ctx context.Context, repo *repository.Repository) error {
	n, err := repo.RepairOrphanRoots(ctx)
	if err != nil {
		return fmt.Errorf("failed to repair thread roots: %w", err)
	}
	if n > 0 {
		slog.Warn("orphan_roots_repaired", "records", n)
	} else {
		slog.Debug("orphan_roots_repaired", "records", 0)
	}
	return nil
}

// NewServices wires the answer sources, judge, mailer and session manager.
func NewServices(cfg *config.Config, repo *repository.Repository) (*Services, error) {
	secret := []byte(cfg.Auth.TokenSecret)
	if len(secret) == 0 {
		random, err := session.RandomSecret()
		if err != nil {
			return nil, err
		}
		secret = random
		slog.Warn("no token secret configured, using a random one; tokens will not survive a restart")
	}
	sessions, err := session.NewManager(secret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	links := email.Links{BaseURL: cfg.Server.BaseURL, FrontendURL: cfg.Server.FrontendURL}
	var mailer auth.Mailer
	if cfg.SMTP.Enabled() {
		smtp, err := email.NewService(&cfg.SMTP, links)
		if err != nil {
			return nil, fmt.Errorf("failed to create email service: %w", err)
		}
		mailer = smtp
	} else {
		slog.Warn("smtp not configured, emails are only logged")
		mailer = email.NewLogMailer(links)
	}

	p := cfg.Providers
	gpt := provider.NewOpenAI(p.OpenAIAPIKey, p.OpenAIModel, p.OpenAIBaseURL, p.Timeout)
	gemini := provider.NewGemini(p.GeminiAPIKey, p.GeminiModel, p.GeminiBaseURL, p.Timeout)
	if !gpt.Configured() {
		slog.Warn("openai api key not configured")
	}
	if !gemini.Configured() {
		slog.Warn("gemini api key not configured")
	}

	j, err := judge.New(cfg.Judge.Strategy, gpt.WithModel(cfg.Judge.Model), provider.DefaultClassifier())
	if err != nil {
		return nil, fmt.Errorf("failed to create judge: %w", err)
	}

	return &Services{
		Auth: auth.NewService(repo, &cfg.Auth, sessions, mailer),
		Chat: chat.NewService(repo, gpt, gemini, j, cfg.History),
	}, nil
}

// NewEcho creates the Echo instance with middleware and routes.
func NewEcho(cfg *config.Config, db *sqlx.DB, svc *Services) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler

	setupMiddleware(e, cfg)
	setupRoutes(e, cfg, db, svc)
	return e
}

func setupRoutes(e *echo.Echo, cfg *config.Config, db *sqlx.DB, svc *Services) {
	h := handlers.New(db)
	authHandlers := handlers.NewAuth(svc.Auth, cfg.Server.FrontendURL)
	chatHandlers := handlers.NewChat(svc.Chat)

	e.GET("/health", h.Health)

	// Accounts
	a := e.Group("/auth")
	a.POST("/signup", authHandlers.Signup)
	a.GET("/verify-email", authHandlers.VerifyEmail)
	a.POST("/login", authHandlers.Login)
	a.POST("/forgot-password", authHandlers.ForgotPassword)
	a.POST("/reset-password", authHandlers.ResetPassword)

	// Chat, bearer token required
	api := e.Group("/api", requireUser(svc.Auth))
	api.POST("/chat", chatHandlers.Chat)
	api.GET("/history", chatHandlers.History)
	api.GET("/thread/:id", chatHandlers.Thread)
	api.DELETE("/thread/:id", chatHandlers.DeleteThread)
}

func startWithGracefulShutdown(ctx context.Context, e *echo.Echo, cfg *config.Config) error {
	// Channel for server errors
	errChan := make(chan error, 1)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		slog.Info("Server running", "url", cfg.Server.BaseURL)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for interrupt signal, cancellation or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		slog.Info("shutting down server")
	case <-ctx.Done():
		slog.Info("shutting down server", "reason", ctx.Err())
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
