// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package judge

import (
	"context"
	"fmt"
	"unicode/utf8"

	"codeberg.org/oliverandrich/model-judge/internal/services/provider"
)

// LengthJudge prefers the longer of two real answers.
type LengthJudge struct {
	classifier provider.Classifier
}

// NewLengthJudge creates a LengthJudge.
func NewLengthJudge(classifier provider.Classifier) *LengthJudge {
	return &LengthJudge{classifier: classifier}
}

// Judge picks a verdict without any network call.
func (j *LengthJudge) Judge(_ context.Context, _ string, a, b Candidate) Verdict {
	if v, done := preJudge(j.classifier, a, b); done {
		return v
	}

	lenA := utf8.RuneCountInString(a.Answer)
	lenB := utf8.RuneCountInString(b.Answer)

	if lenB > lenA {
		return Verdict{
			BestAnswer:  b.Answer,
			Model:       b.Provider,
			Explanation: fmt.Sprintf("Both answered; %s gave the longer answer (%d vs %d characters).", b.Provider, lenB, lenA),
		}
	}
	return Verdict{
		BestAnswer:  a.Answer,
		Model:       a.Provider,
		Explanation: fmt.Sprintf("Both answered; %s gave the longer or equal answer (%d vs %d characters).", a.Provider, lenA, lenB),
	}
}
