package wire

import (
	"regexp"
	"strings"
)

const (
	minMudNameLen = 3
	maxMudNameLen = 32
)

var validMudName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidMudName reports whether name satisfies the shape constraints in
// spec §3: 3-32 characters, [A-Za-z0-9_-], no spaces or punctuation.
func ValidMudName(name string) bool {
	if len(name) < minMudNameLen || len(name) > maxMudNameLen {
		return false
	}
	return validMudName.MatchString(name)
}

// SuggestMudName normalizes an invalid name into a valid one: whitespace
// collapses to a single hyphen, remaining invalid characters are stripped,
// and the result is clamped to maxMudNameLen. It is never applied silently
// to an authenticating connection — it only populates the suggestedName
// field of an auth error reply (spec §3, §6 scenario S1).
func SuggestMudName(raw string) string {
	collapsed := strings.Join(strings.Fields(raw), "-")

	var b strings.Builder
	for _, r := range collapsed {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	suggestion := b.String()

	if len(suggestion) > maxMudNameLen {
		suggestion = suggestion[:maxMudNameLen]
	}
	for len(suggestion) < minMudNameLen {
		suggestion += "-"
	}
	return suggestion
}
