// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package provider

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const (
	// DefaultOpenAIModel is used when no model is configured.
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the public OpenAI API endpoint.
	DefaultOpenAIBaseURL = "https://api.openai.com/v1/"
)

// ErrNotConfigured is returned by Complete when no API key is set.
var ErrNotConfigured = errors.New("provider not configured")

// OpenAI queries the chat completions API.
type OpenAI struct {
	apiKey string
	model  string
	client openai.Client
}

// NewOpenAI creates an OpenAI answer source. Empty model and base URL use the defaults.
func NewOpenAI(apiKey, model, baseURL string, timeout time.Duration) *OpenAI {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &OpenAI{
		apiKey: apiKey,
		model:  model,
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
			option.WithHTTPClient(newHTTPClient(timeout)),
			option.WithRequestTimeout(callTimeout(timeout)),
			option.WithMaxRetries(0),
		),
	}
}

// Key returns the provider key.
func (o *OpenAI) Key() string { return KeyGPT }

// Model returns the configured model name.
func (o *OpenAI) Model() string { return o.model }

// Configured reports whether an API key is set.
func (o *OpenAI) Configured() bool { return o.apiKey != "" }

// WithModel returns a copy of the client that talks to a different model.
func (o *OpenAI) WithModel(model string) *OpenAI {
	clone := *o
	if model != "" {
		clone.model = model
	}
	return &clone
}

// FetchAnswer asks the model the question and returns the first completion.
func (o *OpenAI) FetchAnswer(ctx context.Context, question string) string {
	if !o.Configured() {
		return OpenAINotConfigured
	}

	answer, err := o.complete(ctx, SystemPrompt, question, false)
	if err != nil {
		slog.Warn("provider_request_failed", "provider", KeyGPT, "model", o.model, "error", err)
		return OpenAINoAnswer
	}
	return answer
}

// Complete sends a system and user prompt and requests a JSON object reply.
func (o *OpenAI) Complete(ctx context.Context, system, user string) (string, error) {
	if !o.Configured() {
		return "", ErrNotConfigured
	}
	return o.complete(ctx, system, user, true)
}

func (o *OpenAI) complete(ctx context.Context, system, user string, jsonReply bool) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	}
	if jsonReply {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("response contained no choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("response contained empty content")
	}
	return content, nil
}
