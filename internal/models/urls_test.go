package models

import (
	"testing"
	"time"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "strips www and trailing slash",
			input:    "https://www.example.com/events/",
			expected: "https://example.com/events",
		},
		{
			name:     "strips tracking params and sorts the rest",
			input:    "https://example.com/e?utm_source=news&b=2&a=1&fbclid=xyz",
			expected: "https://example.com/e?a=1&b=2",
		},
		{
			name:     "strips fragment and default port",
			input:    "https://Example.com:443/page#agenda",
			expected: "https://example.com/page",
		},
		{
			name:     "adds scheme to bare host",
			input:    "example.de/messe",
			expected: "https://example.de/messe",
		},
		{
			name:     "empty input",
			input:    "  ",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeURL(tt.input)
			if got != tt.expected {
				t.Errorf("NormalizeURL(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeURLIdempotent(t *testing.T) {
	inputs := []string{
		"https://www.example.com/events/?utm_source=x&b=2&a=1#top",
		"HTTP://WWW.MESSE-FRANKFURT.DE:80/Termine/",
		"example.fr/salon?ref=partner",
	}
	for _, input := range inputs {
		once := NormalizeURL(input)
		twice := NormalizeURL(once)
		if once != twice {
			t.Errorf("NormalizeURL not idempotent for %q: first %q, second %q", input, once, twice)
		}
	}
}

func TestCanonicalKeyCollapsesVariants(t *testing.T) {
	a := CanonicalKey("https://www.example.com/conf/?utm_source=x", "Compliance Summit  2026")
	b := CanonicalKey("https://example.com/conf", "compliance summit 2026")
	if a != b {
		t.Errorf("Expected identical keys for URL/title variants, got %q vs %q", a, b)
	}
}

func TestCountryFromTLD(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://messe.de/events", "DE"},
		{"https://salon.fr", "FR"},
		{"https://conference.co.uk", "GB"},
		{"https://summit.eu", "EU"},
		{"https://example.com", ""},
		{"https://startup.io", ""}, // generic-use ccTLD
		{"https://tools.ai", ""},
	}
	for _, tt := range tests {
		if got := CountryFromTLD(tt.url); got != tt.expected {
			t.Errorf("CountryFromTLD(%q) = %q, expected %q", tt.url, got, tt.expected)
		}
	}
}

func TestGenerateEventIDStable(t *testing.T) {
	a := GenerateEventID("Compliance Summit", "2026-03-14", "https://www.example.com/conf/")
	b := GenerateEventID("compliance summit", "2026-03-14", "https://example.com/conf")
	if a != b {
		t.Errorf("Expected stable event ID across case/URL variants, got %q vs %q", a, b)
	}
	c := GenerateEventID("Other Event", "2026-03-14", "https://example.com/conf")
	if a == c {
		t.Error("Different titles should produce different event IDs")
	}
}

func TestGenerateRunIDPrefix(t *testing.T) {
	id := GenerateRunID(time.Now())
	if len(id) != 12 || id[:4] != "run_" {
		t.Errorf("Unexpected run ID format: %q", id)
	}
}

func TestDuplicateSimilarity(t *testing.T) {
	base := EventCandidate{
		Title:    "Compliance Summit Europe",
		City:     "Berlin",
		Country:  "DE",
		StartsAt: "2026-03-14",
	}

	identical := base
	identical.SourceURL = "https://other-listing.com/summit"
	if score := DuplicateSimilarity(base, identical); score != 1.0 {
		t.Errorf("Identical events should score 1.0, got %.2f", score)
	}

	unrelated := EventCandidate{
		Title:    "Marine Robotics Expo",
		City:     "Lisbon",
		Country:  "PT",
		StartsAt: "2026-09-01",
	}
	if score := DuplicateSimilarity(base, unrelated); score > 0.25 {
		t.Errorf("Unrelated events should score low, got %.2f", score)
	}

	partial := EventCandidate{
		Title:    "Compliance Summit Europe 2026 - Registration",
		City:     "Berlin",
		StartsAt: "2026-03-14",
	}
	score := DuplicateSimilarity(base, partial)
	if score < 0.7 {
		t.Errorf("Same event with decorated title should still score as duplicate, got %.2f", score)
	}
}

func TestEvidenceHelpers(t *testing.T) {
	var c EventCandidate
	if c.HasEvidenceFor("city") {
		t.Error("Fresh candidate should have no evidence")
	}
	c.AddEvidence("city", "jsonld", "addressLocality: Berlin", 0.95)
	if !c.HasEvidenceFor("city") {
		t.Error("Expected evidence for city after AddEvidence")
	}
	if c.HasEvidenceFor("country") {
		t.Error("Evidence for city must not count for country")
	}
}

func TestIsRich(t *testing.T) {
	tests := []struct {
		name      string
		candidate EventCandidate
		rich      bool
	}{
		{"start date only", EventCandidate{Title: "X", StartsAt: "2026-03-14"}, true},
		{"city only", EventCandidate{Title: "X", City: "Berlin"}, true},
		{"country only", EventCandidate{Title: "X", Country: "DE"}, true},
		{"title only", EventCandidate{Title: "X"}, false},
	}
	for _, tt := range tests {
		if got := tt.candidate.IsRich(); got != tt.rich {
			t.Errorf("%s: IsRich() = %v, expected %v", tt.name, got, tt.rich)
		}
	}
}
