// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	SMTP      SMTPConfig
	Providers ProvidersConfig
	Judge     JudgeConfig
	History   HistoryConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	FrontendURL string   // Where verification and reset links land
	MaxBodySize int      // in MB
	CORSOrigins []string // Allowed origins, "*" when empty
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

type AuthConfig struct { //nolint:govet // fieldalignment not critical
	TokenSecret     string        // HMAC secret for bearer tokens
	TokenTTL        time.Duration // Bearer token lifetime
	VerificationTTL time.Duration // Email verification link lifetime
	ResetTTL        time.Duration // Password reset link lifetime
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

// Enabled reports whether enough SMTP settings are present to send mail.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

type ProvidersConfig struct { //nolint:govet // fieldalignment not critical
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	Timeout       time.Duration
}

type JudgeConfig struct {
	Strategy string // length, llm
	Model    string // Judge model for the llm strategy
}

type HistoryConfig struct {
	DefaultLimit int
	MaxLimit     int
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			FrontendURL: cmd.String("frontend-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
			CORSOrigins: cmd.StringSlice("cors-origins"),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		Auth: AuthConfig{
			TokenSecret:     cmd.String("token-secret"),
			TokenTTL:        cmd.Duration("token-ttl"),
			VerificationTTL: cmd.Duration("verification-ttl"),
			ResetTTL:        cmd.Duration("reset-ttl"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		Providers: ProvidersConfig{
			OpenAIAPIKey:  cmd.String("openai-api-key"),
			OpenAIModel:   cmd.String("openai-model"),
			OpenAIBaseURL: cmd.String("openai-base-url"),
			GeminiAPIKey:  cmd.String("gemini-api-key"),
			GeminiModel:   cmd.String("gemini-model"),
			GeminiBaseURL: cmd.String("gemini-base-url"),
			Timeout:       cmd.Duration("provider-timeout"),
		},
		Judge: JudgeConfig{
			Strategy: cmd.String("judge-strategy"),
			Model:    cmd.String("judge-model"),
		},
		History: HistoryConfig{
			DefaultLimit: int(cmd.Int("history-default-limit")),
			MaxLimit:     int(cmd.Int("history-max-limit")),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	applyDefaults(cfg)

	return cfg
}

// applyDefaults fills settings derived from other settings.
func applyDefaults(cfg *Config) {
	if cfg.Server.FrontendURL == "" {
		cfg.Server.FrontendURL = cfg.Server.BaseURL
	}
	cfg.Server.FrontendURL = strings.TrimSuffix(cfg.Server.FrontendURL, "/")

	if cfg.Judge.Model == "" {
		cfg.Judge.Model = cfg.Providers.OpenAIModel
	}
	cfg.Judge.Strategy = strings.ToLower(cfg.Judge.Strategy)

	if cfg.History.MaxLimit <= 0 {
		cfg.History.MaxLimit = 200
	}
	if cfg.History.DefaultLimit <= 0 || cfg.History.DefaultLimit > cfg.History.MaxLimit {
		cfg.History.DefaultLimit = min(50, cfg.History.MaxLimit)
	}
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	if host == "" {
		host = "localhost"
	}
	if cfg.Server.Port == 80 {
		return fmt.Sprintf("http://%s", host)
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func source(env, key string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(cli.EnvVar(env), toml.TOML(key, configFile))
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: source("HOST", "server.host"),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   3000,
			Usage:   "Port to listen on",
			Sources: source("PORT", "server.port"),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Public base URL of the API",
			Sources: source("BASE_URL", "server.base_url"),
		},
		&cli.StringFlag{
			Name:    "frontend-url",
			Usage:   "Base URL of the web frontend (defaults to base-url)",
			Sources: source("FRONTEND_URL", "server.frontend_url"),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: source("MAX_BODY_SIZE", "server.max_body_size"),
		},
		&cli.StringSliceFlag{
			Name:    "cors-origins",
			Usage:   "Allowed CORS origins (all when empty)",
			Sources: source("CORS_ORIGINS", "server.cors_origins"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: source("LOG_LEVEL", "log.level"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: source("LOG_FORMAT", "log.format"),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/app.db",
			Usage:   "Database DSN (SQLite path or postgres:// URL)",
			Sources: source("DATABASE_DSN", "database.dsn"),
		},
		// Auth flags
		&cli.StringFlag{
			Name:    "token-secret",
			Usage:   "Secret for signing bearer tokens (random per process if empty)",
			Sources: source("TOKEN_SECRET", "auth.token_secret"),
		},
		&cli.DurationFlag{
			Name:    "token-ttl",
			Value:   24 * time.Hour,
			Usage:   "Bearer token lifetime",
			Sources: source("TOKEN_TTL", "auth.token_ttl"),
		},
		&cli.DurationFlag{
			Name:    "verification-ttl",
			Value:   24 * time.Hour,
			Usage:   "Email verification link lifetime",
			Sources: source("VERIFICATION_TTL", "auth.verification_ttl"),
		},
		&cli.DurationFlag{
			Name:    "reset-ttl",
			Value:   time.Hour,
			Usage:   "Password reset link lifetime",
			Sources: source("RESET_TTL", "auth.reset_ttl"),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host (mails are only logged when empty)",
			Sources: source("SMTP_HOST", "smtp.host"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   465,
			Usage:   "SMTP server port",
			Sources: source("SMTP_PORT", "smtp.port"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: source("SMTP_USERNAME", "smtp.username"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: source("SMTP_PASSWORD", "smtp.password"),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address",
			Sources: source("SMTP_FROM", "smtp.from"),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "AI Model Judge",
			Usage:   "Sender display name",
			Sources: source("SMTP_FROM_NAME", "smtp.from_name"),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: source("SMTP_TLS", "smtp.tls"),
		},
		// Provider flags
		&cli.StringFlag{
			Name:    "openai-api-key",
			Usage:   "OpenAI API key",
			Sources: source("OPENAI_API_KEY", "providers.openai_api_key"),
		},
		&cli.StringFlag{
			Name:    "openai-model",
			Value:   "gpt-4o-mini",
			Usage:   "OpenAI model",
			Sources: source("OPENAI_MODEL", "providers.openai_model"),
		},
		&cli.StringFlag{
			Name:    "openai-base-url",
			Value:   "https://api.openai.com/v1",
			Usage:   "OpenAI API base URL",
			Sources: source("OPENAI_BASE_URL", "providers.openai_base_url"),
		},
		&cli.StringFlag{
			Name:    "gemini-api-key",
			Usage:   "Gemini API key",
			Sources: source("GEMINI_API_KEY", "providers.gemini_api_key"),
		},
		&cli.StringFlag{
			Name:    "gemini-model",
			Value:   "gemini-2.5-flash",
			Usage:   "Gemini model",
			Sources: source("GEMINI_MODEL", "providers.gemini_model"),
		},
		&cli.StringFlag{
			Name:    "gemini-base-url",
			Value:   "https://generativelanguage.googleapis.com/",
			Usage:   "Gemini API base URL",
			Sources: source("GEMINI_BASE_URL", "providers.gemini_base_url"),
		},
		&cli.DurationFlag{
			Name:    "provider-timeout",
			Value:   30 * time.Second,
			Usage:   "Deadline for a single provider call",
			Sources: source("PROVIDER_TIMEOUT", "providers.timeout"),
		},
		// Judge flags
		&cli.StringFlag{
			Name:    "judge-strategy",
			Value:   "length",
			Usage:   "Answer selection strategy (length, llm)",
			Sources: source("JUDGE_STRATEGY", "judge.strategy"),
		},
		&cli.StringFlag{
			Name:    "judge-model",
			Usage:   "Model used by the llm judge (defaults to openai-model)",
			Sources: source("JUDGE_MODEL", "judge.model"),
		},
		// History flags
		&cli.IntFlag{
			Name:    "history-default-limit",
			Value:   50,
			Usage:   "Threads returned by the history endpoint without a limit",
			Sources: source("HISTORY_DEFAULT_LIMIT", "history.default_limit"),
		},
		&cli.IntFlag{
			Name:    "history-max-limit",
			Value:   200,
			Usage:   "Upper bound for the history limit parameter",
			Sources: source("HISTORY_MAX_LIMIT", "history.max_limit"),
		},
	}
}
