package config

import (
	"regexp"
	"strings"
)

var (
	validConnectorIDRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)
	invalidIDChars     = regexp.MustCompile(`[^a-z0-9_-]+`)
	edgeDashes         = regexp.MustCompile(`^-+|-+$`)
)

// NormalizeConnectorID converts user input (CLI argument, config entry)
// into a canonical connector id:
//   - lowercase, max 64 chars
//   - only [a-z0-9_-] allowed
//   - invalid chars collapsed to "-"
//   - leading/trailing dashes stripped
//
// Returns "" when nothing usable remains; callers treat that as unknown.
func NormalizeConnectorID(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}

	lower := strings.ToLower(trimmed)
	if validConnectorIDRe.MatchString(lower) {
		return lower
	}

	result := invalidIDChars.ReplaceAllString(lower, "-")
	result = edgeDashes.ReplaceAllString(result, "")
	if len(result) > 64 {
		result = result[:64]
	}
	return result
}
