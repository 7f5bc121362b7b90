// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package provider

import "strings"

// Classifier decides whether an answer is real content or a failure sentinel.
type Classifier struct {
	// NoAnswerPrefixes are matched against the start of the trimmed, lower-cased text.
	NoAnswerPrefixes []string
	// NotConfiguredMarkers are matched anywhere in the lower-cased text.
	NotConfiguredMarkers []string
}

// DefaultClassifier recognizes the sentinels produced by this package.
func DefaultClassifier() Classifier {
	return Classifier{
		NoAnswerPrefixes:     []string{"no answer from"},
		NotConfiguredMarkers: []string{"not configured"},
	}
}

// IsRealAnswer reports whether text counts as an actual answer.
func (c Classifier) IsRealAnswer(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return false
	}

	for _, prefix := range c.NoAnswerPrefixes {
		if strings.HasPrefix(normalized, strings.ToLower(prefix)) {
			return false
		}
	}

	for _, marker := range c.NotConfiguredMarkers {
		if strings.Contains(normalized, strings.ToLower(marker)) {
			return false
		}
	}

	return true
}

// IsRealAnswer classifies text with the default rules.
func IsRealAnswer(text string) bool {
	return DefaultClassifier().IsRealAnswer(text)
}
