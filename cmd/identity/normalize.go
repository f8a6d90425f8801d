package identity

import "strings"

// NormalizeEmail performs case-insensitive canonicalization.
// Email uniqueness and login lookup both use the normalized form.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeUsername trims surrounding whitespace only.
// Usernames are matched exactly (case-sensitive); the comparison policy is
// shared by uniqueness enforcement and login lookup so the two never disagree.
func NormalizeUsername(s string) string {
	return strings.TrimSpace(s)
}
