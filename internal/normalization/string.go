package normalization

import (
	"strings"
)

// NormalizeKey lowercases and trims a level name so "Beginner " and
// "beginner" land in the same bucket.
func NormalizeKey(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

// NormalizeTopic trims surrounding whitespace. The rest of the topic is kept
// as the user typed it.
func NormalizeTopic(input string) string {
	return strings.TrimSpace(input)
}
