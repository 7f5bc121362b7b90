// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package judge picks the best of two candidate answers.
package judge

import (
	"context"
	"fmt"
	"strings"

	"codeberg.org/oliverandrich/model-judge/internal/services/provider"
)

// Strategy names accepted by New.
const (
	StrategyLength = "length"
	StrategyLLM    = "llm"
)

// NoAnswer is the verdict text when no candidate has any content.
const NoAnswer = "No models returned an answer."

// Candidate is one provider's answer.
type Candidate struct {
	Provider string `json:"model"`
	Model    string `json:"-"`
	Answer   string `json:"answer"`
}

// Verdict is the outcome of judging two candidates.
type Verdict struct {
	BestAnswer  string
	Model       string
	Explanation string
}

// Judge decides which candidate answer wins. Candidate a is the primary
// provider and wins ties and fallbacks.
type Judge interface {
	Judge(ctx context.Context, question string, a, b Candidate) Verdict
}

// Completer runs one prompt against a language model.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// New returns the judge for the named strategy.
func New(strategy string, completer Completer, classifier provider.Classifier) (Judge, error) {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case "", StrategyLength:
		return NewLengthJudge(classifier), nil
	case StrategyLLM:
		if completer == nil {
			return nil, fmt.Errorf("judge strategy %q requires a completer", StrategyLLM)
		}
		return NewLLMJudge(completer, classifier), nil
	default:
		return nil, fmt.Errorf("unknown judge strategy %q", strategy)
	}
}

// preJudge settles the cases that need no comparison. It returns false
// when both candidates are real answers.
func preJudge(classifier provider.Classifier, a, b Candidate) (Verdict, bool) {
	realA := classifier.IsRealAnswer(a.Answer)
	realB := classifier.IsRealAnswer(b.Answer)

	switch {
	case !realA && !realB:
		return Verdict{
			BestAnswer:  firstNonEmpty(a.Answer, b.Answer),
			Model:       provider.KeyNone,
			Explanation: "Neither model returned a usable answer.",
		}, true
	case realA && !realB:
		return Verdict{
			BestAnswer:  a.Answer,
			Model:       a.Provider,
			Explanation: fmt.Sprintf("Only %s returned a usable answer.", a.Provider),
		}, true
	case !realA && realB:
		return Verdict{
			BestAnswer:  b.Answer,
			Model:       b.Provider,
			Explanation: fmt.Sprintf("Only %s returned a usable answer.", b.Provider),
		}, true
	}
	return Verdict{}, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return NoAnswer
}
