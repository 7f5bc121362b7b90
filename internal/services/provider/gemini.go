// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	// DefaultGeminiModel is used when no model is configured.
	DefaultGeminiModel = "gemini-2.5-flash"
	// DefaultGeminiBaseURL is the public Generative Language API endpoint.
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/"
	// GeminiAPIVersion is the API version path segment.
	GeminiAPIVersion = "v1beta"
)

// Gemini queries the generateContent API.
type Gemini struct {
	apiKey  string
	model   string
	client  *genai.Client
	initErr error
}

// NewGemini creates a Gemini answer source. Empty model and base URL use the defaults.
// No client is built without an API key.
func NewGemini(apiKey, model, baseURL string, timeout time.Duration) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	g := &Gemini{apiKey: apiKey, model: model}
	if apiKey == "" {
		return g
	}

	g.client, g.initErr = genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: newHTTPClient(timeout),
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    baseURL,
			APIVersion: GeminiAPIVersion,
		},
	})
	if g.initErr != nil {
		slog.Error("provider_init_failed", "provider", KeyGemini, "error", g.initErr)
	}
	return g
}

// Key returns the provider key.
func (g *Gemini) Key() string { return KeyGemini }

// Model returns the configured model name.
func (g *Gemini) Model() string { return g.model }

// Configured reports whether an API key is set.
func (g *Gemini) Configured() bool { return g.apiKey != "" }

// FetchAnswer asks the model the question and returns the text of the first candidate.
func (g *Gemini) FetchAnswer(ctx context.Context, question string) string {
	if !g.Configured() {
		return GeminiNotConfigured
	}

	answer, err := g.generate(ctx, question)
	if err != nil {
		slog.Warn("provider_request_failed", "provider", KeyGemini, "model", g.model, "error", err)
		return GeminiNoAnswer
	}
	return answer
}

func (g *Gemini) generate(ctx context.Context, question string) (string, error) {
	if g.initErr != nil {
		return "", fmt.Errorf("creating client: %w", g.initErr)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(question), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemPrompt, genai.RoleUser),
	})
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("response contained no text")
	}
	return text, nil
}
