package service

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// PasswordPolicy is the strength rule applied to every new password.
type PasswordPolicy struct {
	MinLength       int
	RequireDigit    bool
	RequireLower    bool
	RequireUpper    bool
	RequireNonAlnum bool
}

// DefaultPasswordPolicy requires eight characters mixing digit, lower case,
// upper case and a symbol.
var DefaultPasswordPolicy = PasswordPolicy{
	MinLength:       8,
	RequireDigit:    true,
	RequireLower:    true,
	RequireUpper:    true,
	RequireNonAlnum: true,
}

// Check returns every rule the password breaks, in a stable order.
func (p PasswordPolicy) Check(password string) []string {
	var (
		hasDigit, hasLower, hasUpper, hasNonAlnum bool
		problems                                  []string
	)
	for _, r := range password {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			hasNonAlnum = true
		}
	}

	if utf8.RuneCountInString(password) < p.MinLength {
		problems = append(problems, fmt.Sprintf("Passwords must be at least %d characters.", p.MinLength))
	}
	if p.RequireNonAlnum && !hasNonAlnum {
		problems = append(problems, "Passwords must have at least one non alphanumeric character.")
	}
	if p.RequireDigit && !hasDigit {
		problems = append(problems, "Passwords must have at least one digit ('0'-'9').")
	}
	if p.RequireLower && !hasLower {
		problems = append(problems, "Passwords must have at least one lowercase ('a'-'z').")
	}
	if p.RequireUpper && !hasUpper {
		problems = append(problems, "Passwords must have at least one uppercase ('A'-'Z').")
	}
	return problems
}

// rule is one field check. It returns "" when the check passes.
type rule func() string

// firstFailure runs rules in order and returns the first failure.
func firstFailure(rules ...rule) error {
	for _, r := range rules {
		if msg := r(); msg != "" {
			return &ValidationError{Message: msg}
		}
	}
	return nil
}

func notEmpty(field, value string) rule {
	return func() string {
		if strings.TrimSpace(value) == "" {
			return fmt.Sprintf("'%s' must not be empty.", field)
		}
		return ""
	}
}

func minLength(field, value string, n int) rule {
	return func() string {
		if got := utf8.RuneCountInString(value); got < n {
			return fmt.Sprintf("The length of '%s' must be at least %d characters. You entered %d characters.", field, n, got)
		}
		return ""
	}
}

func emailAddress(field, value string) rule {
	return func() string {
		if !isEmailAddress(value) {
			return fmt.Sprintf("'%s' is not a valid email address.", field)
		}
		return ""
	}
}

func equalTo(value, other, message string) rule {
	return func() string {
		if value != other {
			return message
		}
		return ""
	}
}

func sixDigitCode(code string) rule {
	return func() string {
		if !isSixDigits(normalizeCode(code)) {
			return MsgCodeMustBeSixDigits
		}
		return ""
	}
}

// isEmailAddress accepts a single '@' with something on both sides. Proof of
// ownership comes from the confirmation link, not from syntax.
func isEmailAddress(s string) bool {
	at := strings.IndexByte(s, '@')
	return at > 0 && at < len(s)-1 && at == strings.LastIndexByte(s, '@')
}

// normalizeCode strips the spaces and dashes people type into codes.
func normalizeCode(code string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(code)
}

func isSixDigits(s string) bool {
	if len(s) != 6 {
		return false
	}
	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// usernameFromEmail is the local part of the address.
func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
