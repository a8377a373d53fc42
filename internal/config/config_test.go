package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Search.MaxQueryLength != 256 {
		t.Errorf("Expected query ceiling 256, got %d", cfg.Search.MaxQueryLength)
	}
	if cfg.Extraction.MaxConcurrency != 12 {
		t.Errorf("Expected concurrency 12, got %d", cfg.Extraction.MaxConcurrency)
	}
	if cfg.Extraction.CacheTTL != 14*24*time.Hour {
		t.Errorf("Expected 14 day cache TTL, got %v", cfg.Extraction.CacheTTL)
	}
	if cfg.Admission.DateToleranceDays != 7 {
		t.Errorf("Expected 7 day tolerance, got %d", cfg.Admission.DateToleranceDays)
	}
	if len(cfg.Search.EventTerms) == 0 || len(cfg.Search.CuratedDomains) == 0 {
		t.Error("Default term groups must not be empty")
	}
}

func TestLoadOverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
search:
  base_query: "fintech events"
  max_query_length: 200
admission:
  date_tolerance_days: 3
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Search.BaseQuery != "fintech events" {
		t.Errorf("Expected overlaid base query, got %q", cfg.Search.BaseQuery)
	}
	if cfg.Search.MaxQueryLength != 200 {
		t.Errorf("Expected overlaid ceiling 200, got %d", cfg.Search.MaxQueryLength)
	}
	if cfg.Admission.DateToleranceDays != 3 {
		t.Errorf("Expected overlaid tolerance 3, got %d", cfg.Admission.DateToleranceDays)
	}
	// untouched sections keep defaults
	if cfg.Extraction.BatchThreshold != 10 {
		t.Errorf("Expected default batch threshold to survive overlay, got %d", cfg.Extraction.BatchThreshold)
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if cfg.Extraction.MinConfidence != 0.3 {
		t.Errorf("Expected default min confidence, got %.2f", cfg.Extraction.MinConfidence)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestCountryLocales(t *testing.T) {
	loc, ok := LocaleFor("de")
	if !ok {
		t.Fatal("Expected locale for DE")
	}
	if loc.Name != "Germany" {
		t.Errorf("Expected Germany, got %q", loc.Name)
	}

	if iso2, ok := KnownCity("berlin"); !ok || iso2 != "DE" {
		t.Errorf("Expected berlin -> DE, got %q (ok=%v)", iso2, ok)
	}
	if iso2, ok := KnownCity("München"); !ok || iso2 != "DE" {
		t.Errorf("Expected München -> DE, got %q (ok=%v)", iso2, ok)
	}
	if _, ok := KnownCity("atlantis"); ok {
		t.Error("Unknown city must not resolve")
	}
}

func TestCountryToken(t *testing.T) {
	tests := []struct {
		iso2     string
		expected string
	}{
		{"DE", "Germany"},
		{"de", "Germany"},
		{"EU", "Europe"},
		{"XX", "XX"},
	}
	for _, tt := range tests {
		if got := CountryToken(tt.iso2); got != tt.expected {
			t.Errorf("CountryToken(%q) = %q, expected %q", tt.iso2, got, tt.expected)
		}
	}
}

func TestCountryCode(t *testing.T) {
	tests := []struct {
		value    string
		expected string
	}{
		{"DE", "DE"},
		{"de", "DE"},
		{"Germany", "DE"},
		{"germany", "DE"},
		{"Deutschland", "DE"},
		{"United Kingdom", "GB"},
		{"uk", "GB"},
		{"EU", "EU"},
		{"", ""},
		{"Atlantis", "ATLANTIS"},
	}
	for _, tt := range tests {
		if got := CountryCode(tt.value); got != tt.expected {
			t.Errorf("CountryCode(%q) = %q, expected %q", tt.value, got, tt.expected)
		}
	}
}

func TestEUMembers(t *testing.T) {
	if !EUMembers["DE"] || !EUMembers["FR"] {
		t.Error("Core members missing from EU set")
	}
	if EUMembers["GB"] || EUMembers["CH"] || EUMembers["US"] {
		t.Error("Non-members present in EU set")
	}
}
