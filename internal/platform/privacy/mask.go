// Package privacy provides utilities for keeping personally identifiable information
// (PII) such as national identifiers and contact details out of logs and events.
package privacy

import (
	"strings"
	"unicode/utf8"
)

// NationalIDSuffix returns the last three characters of a national identifier,
// the only part of it allowed in logs. Identifiers of three characters or fewer
// are fully masked.
//
// Returns "unknown" for empty strings.
func NationalIDSuffix(nationalID string) string {
	id := strings.TrimSpace(nationalID)
	if id == "" {
		return "unknown"
	}
	n := utf8.RuneCountInString(id)
	if n <= 3 {
		return strings.Repeat("*", n)
	}
	runes := []rune(id)
	return string(runes[n-3:])
}

// MaskNationalID replaces every character but the last three with '*'
// (e.g., "30111222" -> "*****222").
func MaskNationalID(nationalID string) string {
	id := strings.TrimSpace(nationalID)
	n := utf8.RuneCountInString(id)
	if n <= 3 {
		return strings.Repeat("*", n)
	}
	return strings.Repeat("*", n-3) + NationalIDSuffix(id)
}

// MaskEmail keeps the first character of the local part and the domain
// (e.g., "ana.perez@school.edu" -> "a***@school.edu").
//
// Returns "invalid" when the value has no '@'.
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "invalid"
	}
	first, _ := utf8.DecodeRuneInString(email)
	return string(first) + "***" + email[at:]
}
