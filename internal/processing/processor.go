package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"regexp"
	"strings"
	"time"
)

var whitespace = regexp.MustCompile(`\s+`)

// CleanContent strips HTML entities and squeezes whitespace. Platform
// payloads arrive with inconsistent escaping; matching runs on the
// cleaned form while the original content is persisted untouched.
func CleanContent(input string) string {
	if input == "" {
		return ""
	}
	decoded := html.UnescapeString(input)
	decoded = whitespace.ReplaceAllString(decoded, " ")
	return strings.TrimSpace(decoded)
}

// MatchesFilters applies a group's include/exclude refinement terms to a
// piece of content. With include terms set, at least one must appear; any
// exclude term appearing rejects the content. Matching is case-insensitive.
func MatchesFilters(content string, include, exclude []string) bool {
	lowered := strings.ToLower(CleanContent(content))

	for _, term := range exclude {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && strings.Contains(lowered, term) {
			return false
		}
	}

	if len(include) == 0 {
		return true
	}
	for _, term := range include {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}

// BuildPostID hashes the stable identity of a content item. Two fetches of
// the same item across overlapping windows produce the same ID, which the
// store's create-only insert rejects as a duplicate.
func BuildPostID(platform, sourceURL string) string {
	platform = strings.ToLower(strings.TrimSpace(platform))
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return ""
	}
	s := sha1.Sum([]byte(platform + "|" + sourceURL))
	return hex.EncodeToString(s[:])
}

// ParseTimestamp accepts the timestamp formats platforms are known to emit.
// A zero time means unparseable.
func ParseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}

	for _, f := range formats {
		if ts, err := time.Parse(f, raw); err == nil {
			return ts
		}
	}

	return time.Time{}
}
