// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"bufio"
	"embed"
	"strings"
	"unicode"
	"unicode/utf8"
)

//go:embed common_passwords.txt
var commonPasswordsFS embed.FS

var commonPasswords map[string]struct{}

func init() {
	commonPasswords = make(map[string]struct{})
	file, err := commonPasswordsFS.Open("common_passwords.txt")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		password := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if password != "" && !strings.HasPrefix(password, "#") {
			commonPasswords[password] = struct{}{}
		}
	}
}

// Password validation codes. Each maps to the translation "error_password_<code>".
const (
	CodeTooShort = "too_short"
	CodeTooLong  = "too_long"
	CodeNumeric  = "numeric"
	CodeCommon   = "common"
	CodeSimilar  = "similar"
)

// PasswordValidator validates passwords against various criteria
type PasswordValidator struct {
	MinLength            int
	MaxLength            int
	CheckCommonPasswords bool
	CheckUserSimilarity  bool
}

// DefaultPasswordValidator returns the validator used for signups and resets.
// bcrypt ignores input past 72 bytes, which bounds MaxLength.
func DefaultPasswordValidator() *PasswordValidator {
	return &PasswordValidator{
		MinLength:            8,
		MaxLength:            72,
		CheckCommonPasswords: true,
		CheckUserSimilarity:  true,
	}
}

// ValidationError represents a single password validation failure
type ValidationError struct {
	Code string
	Data map[string]any
}

func (e ValidationError) Error() string {
	return "password " + strings.ReplaceAll(e.Code, "_", " ")
}

// PasswordValidationError wraps every failure of one validation run
type PasswordValidationError struct {
	Errors []ValidationError
}

func (e *PasswordValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "password validation failed"
	}
	return e.Errors[0].Error()
}

// First returns the first failure.
func (e *PasswordValidationError) First() ValidationError {
	if len(e.Errors) == 0 {
		return ValidationError{Code: CodeTooShort, Data: map[string]any{"Min": 0}}
	}
	return e.Errors[0]
}

// Validate checks a password and returns nil when it is acceptable.
func (v *PasswordValidator) Validate(password string, userAttributes ...string) *PasswordValidationError {
	var errs []ValidationError

	if utf8.RuneCountInString(password) < v.MinLength {
		errs = append(errs, ValidationError{Code: CodeTooShort, Data: map[string]any{"Min": v.MinLength}})
	}

	if v.MaxLength > 0 && len(password) > v.MaxLength {
		errs = append(errs, ValidationError{Code: CodeTooLong, Data: map[string]any{"Max": v.MaxLength}})
	}

	if isEntirelyNumeric(password) {
		errs = append(errs, ValidationError{Code: CodeNumeric})
	}

	if v.CheckCommonPasswords && isCommonPassword(password) {
		errs = append(errs, ValidationError{Code: CodeCommon})
	}

	if v.CheckUserSimilarity && isSimilarToUserAttributes(password, expandAttributes(userAttributes)) {
		errs = append(errs, ValidationError{Code: CodeSimilar})
	}

	if len(errs) == 0 {
		return nil
	}
	return &PasswordValidationError{Errors: errs}
}

// expandAttributes adds the local part of email addresses.
func expandAttributes(attrs []string) []string {
	out := make([]string, 0, len(attrs)*2)
	for _, attr := range attrs {
		attr = strings.TrimSpace(attr)
		if attr == "" {
			continue
		}
		out = append(out, attr)
		if local, _, ok := strings.Cut(attr, "@"); ok && local != "" {
			out = append(out, local)
		}
	}
	return out
}

func isEntirelyNumeric(password string) bool {
	for _, r := range password {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(password) > 0
}

func isCommonPassword(password string) bool {
	_, exists := commonPasswords[strings.ToLower(password)]
	return exists
}

func isSimilarToUserAttributes(password string, attributes []string) bool {
	passwordLower := strings.ToLower(password)

	for _, attr := range attributes {
		attrLower := strings.ToLower(attr)

		// Short attributes like initials would match almost anything
		if len(attrLower) >= 3 && strings.Contains(passwordLower, attrLower) {
			return true
		}

		if similarity(passwordLower, attrLower) > 0.7 {
			return true
		}
	}

	return false
}

func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	lcs := longestCommonSubsequence(a, b)
	maxLen := max(len(a), len(b))

	return float64(lcs) / float64(maxLen)
}

func longestCommonSubsequence(a, b string) int {
	m, n := len(a), len(b)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else {
				dp[i][j] = max(dp[i-1][j], dp[i][j-1])
			}
		}
	}

	return dp[m][n]
}
