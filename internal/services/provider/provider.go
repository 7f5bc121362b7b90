// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package provider implements the answer sources queried for every question.
package provider

import (
	"context"
	"net/http"
	"time"
)

// Provider keys as reported to clients and stored with each exchange.
const (
	KeyGPT    = "gpt"
	KeyGemini = "gemini"
	KeyNone   = "none"
)

// Sentinel answers returned instead of errors.
const (
	OpenAINotConfigured = "OpenAI API key not configured yet."
	OpenAINoAnswer      = "No answer from GPT."
	GeminiNotConfigured = "Gemini API key not configured yet."
	GeminiNoAnswer      = "No answer from Gemini."
)

// SystemPrompt frames every question sent to an answer source.
const SystemPrompt = "You are a helpful assistant. Answer the user's question clearly and accurately. " +
	"Use Markdown for structure and fenced code blocks for code."

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 30 * time.Second

// Source answers a question. FetchAnswer never fails; transport and
// configuration problems come back as sentinel strings.
type Source interface {
	Key() string
	Model() string
	FetchAnswer(ctx context.Context, question string) string
}

func callTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return DefaultTimeout
	}
	return timeout
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: callTimeout(timeout)}
}
