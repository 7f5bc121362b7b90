// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"codeberg.org/oliverandrich/model-judge/internal/services/provider"
)

const judgeSystemPrompt = `You are an impartial judge comparing two answers to the same question.
Pick the answer that is more correct, complete and helpful.
Reply with a JSON object only: {"chosen_model": "gpt" | "gemini", "reason": "<one or two sentences>"}.`

// ErrInvalidVerdict is returned when the judge model's reply cannot be used.
var ErrInvalidVerdict = errors.New("invalid judge reply")

// LLMJudge delegates the comparison of two real answers to a language model.
type LLMJudge struct {
	completer  Completer
	classifier provider.Classifier
}

// NewLLMJudge creates an LLMJudge.
func NewLLMJudge(completer Completer, classifier provider.Classifier) *LLMJudge {
	return &LLMJudge{completer: completer, classifier: classifier}
}

type llmReply struct {
	ChosenModel string `json:"chosen_model"`
	Reason      string `json:"reason"`
}

// Judge asks the judge model when both answers are real and falls back to a on any failure.
func (j *LLMJudge) Judge(ctx context.Context, question string, a, b Candidate) Verdict {
	if v, done := preJudge(j.classifier, a, b); done {
		return v
	}

	raw, err := j.completer.Complete(ctx, judgeSystemPrompt, buildJudgePrompt(question, a, b))
	if errors.Is(err, provider.ErrNotConfigured) {
		slog.Warn("judge_fallback", "reason", "not_configured")
		return fallback(a, "no judge API key is configured")
	}
	if err != nil {
		slog.Warn("judge_fallback", "reason", "request_failed", "error", err)
		return fallback(a, "the judge model could not be reached")
	}

	reply, err := parseReply(raw, a.Provider, b.Provider)
	if err != nil {
		slog.Warn("judge_fallback", "reason", "parse_failed", "error", err)
		return fallback(a, "the judge reply could not be parsed")
	}

	winner := a
	if reply.ChosenModel == b.Provider {
		winner = b
	}
	return Verdict{
		BestAnswer:  winner.Answer,
		Model:       winner.Provider,
		Explanation: reply.Reason,
	}
}

func buildJudgePrompt(question string, a, b Candidate) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question:\n%s\n\n", question)
	fmt.Fprintf(&sb, "Answer from %s:\n%s\n\n", a.Provider, a.Answer)
	fmt.Fprintf(&sb, "Answer from %s:\n%s\n", b.Provider, b.Answer)
	return sb.String()
}

// parseReply decodes the judge's JSON, tolerating a surrounding code fence.
func parseReply(raw string, allowed ...string) (llmReply, error) {
	var reply llmReply
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &reply); err != nil {
		return reply, fmt.Errorf("%w: %w", ErrInvalidVerdict, err)
	}

	reply.ChosenModel = strings.ToLower(strings.TrimSpace(reply.ChosenModel))
	for _, key := range allowed {
		if reply.ChosenModel == key {
			return reply, nil
		}
	}
	return reply, fmt.Errorf("%w: unexpected chosen_model %q", ErrInvalidVerdict, reply.ChosenModel)
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop an info string such as "json"
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.HasPrefix(strings.TrimSpace(s[:i]), "{") {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func fallback(a Candidate, cause string) Verdict {
	return Verdict{
		BestAnswer:  a.Answer,
		Model:       a.Provider,
		Explanation: fmt.Sprintf("Defaulted to %s because %s.", a.Provider, cause),
	}
}
