package pipeline

import (
	"html"
	"regexp"
	"strings"
)

// Text normalizer for extracted field values. Strategies hand raw page text
// through here before shaping a candidate, so downstream comparison and
// dedup work on clean strings.

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	markdownLink      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
)

// Candidate values that are never a real city/venue/organizer, regardless of
// where they were read from.
var valueBlacklist = map[string]bool{
	"n/a": true, "na": true, "tbd": true, "tba": true, "unknown": true,
	"null": true, "undefined": true, "none": true, "-": true,
	"home": true, "contact": true, "about": true, "register": true,
	"cookie policy": true, "privacy policy": true, "terms": true,
	"click here": true, "read more": true, "learn more": true, "more info": true,
	"404": true, "not found": true, "error": true,
}

// Generic titles that carry no signal; candidates with these are dropped by
// the engine's quality gate.
var genericTitles = map[string]bool{
	"event":          true,
	"events":         true,
	"untitled event": true,
	"untitled":       true,
	"conference":     true,
	"home":           true,
}

// CleanText strips tags, markdown link syntax and entities and collapses
// whitespace.
func CleanText(s string) string {
	s = markdownLink.ReplaceAllString(s, "$1")
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeName cleans a city/venue/organizer string and rejects known-bad
// values. Returns "" when the value carries no signal.
func NormalizeName(s string) string {
	cleaned := CleanText(s)
	cleaned = strings.Trim(cleaned, ".,;:|")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return ""
	}
	if len(cleaned) > 120 {
		// a city or venue name this long is a scraped paragraph, not a name
		return ""
	}
	if valueBlacklist[strings.ToLower(cleaned)] {
		return ""
	}
	return cleaned
}

// NormalizeTitle cleans an event title, stripping common site suffixes
// ("Conference Name | Hosting Site", "Name - Tickets").
func NormalizeTitle(s string) string {
	cleaned := CleanText(s)
	for _, sep := range []string{" | ", " – ", " — "} {
		if idx := strings.Index(cleaned, sep); idx > 10 {
			cleaned = cleaned[:idx]
		}
	}
	suffixes := []string{" - Tickets", " - Registration", " - Home"}
	for _, suffix := range suffixes {
		cleaned = strings.TrimSuffix(cleaned, suffix)
	}
	return strings.TrimSpace(cleaned)
}

// IsGenericTitle reports whether a title carries no identifying signal.
func IsGenericTitle(title string) bool {
	return genericTitles[strings.ToLower(strings.TrimSpace(title))]
}

// IsErrorTitle reports whether a title indicates a broken or placeholder
// page rather than event content.
func IsErrorTitle(title string) bool {
	lower := strings.ToLower(title)
	markers := []string{
		"404", "not found", "page not found", "error", "forbidden",
		"access denied", "under construction", "coming soon",
		"this site can", "untitled",
	}
	for _, marker := range markers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
