package utils

import (
	"strings"
	"unicode"
)

// NormalizeString trims surrounding whitespace.
func NormalizeString(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeName trims and collapses inner runs of whitespace to one space.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeSlug lowercases and trims a catalog slug.
func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

// NormalizePhone keeps digits and a leading +.
func NormalizePhone(phone string) string {
	cleaned := strings.TrimSpace(phone)
	if cleaned == "" {
		return ""
	}

	var result strings.Builder
	for i, r := range cleaned {
		if i == 0 && r == '+' {
			result.WriteRune(r)
		} else if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}
