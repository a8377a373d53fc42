package pipeline

import (
	"testing"
)

func TestParseDatesFormats(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		expectedStart string
		expectedEnd   string
	}{
		{"iso", "Registration opens 2026-03-14 at the venue", "2026-03-14", ""},
		{"european numeric", "Termin: 14.03.2026 in Berlin", "2026-03-14", ""},
		{"slash numeric day-first", "Le salon aura lieu le 14/03/2026", "2026-03-14", ""},
		{"month day year", "Join us March 14, 2026 in Munich", "2026-03-14", ""},
		{"day month year", "14 March 2026, Hamburg", "2026-03-14", ""},
		{"german month", "14. März 2026, Frankfurt", "2026-03-14", ""},
		{"french month", "14 mars 2026 à Paris", "2026-03-14", ""},
		{"month range", "March 14-16, 2026 at the Expo Center", "2026-03-14", "2026-03-16"},
		{"day range month", "14-16 March 2026", "2026-03-14", "2026-03-16"},
		{"numeric range", "Messe vom 14.-16.03.2026", "2026-03-14", "2026-03-16"},
		{"two single dates paired", "From 2026-03-14 to 2026-03-16", "2026-03-14", "2026-03-16"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := ParseDates(tt.text, testNow)
			if !ok {
				t.Fatalf("ParseDates(%q) found nothing", tt.text)
			}
			if r.Start != tt.expectedStart {
				t.Errorf("Start = %q, expected %q", r.Start, tt.expectedStart)
			}
			if r.End != tt.expectedEnd {
				t.Errorf("End = %q, expected %q", r.End, tt.expectedEnd)
			}
		})
	}
}

func TestParseDatesRejectsImplausible(t *testing.T) {
	tests := []string{
		"Archived agenda from 2019-05-01",
		"See you in 2031-01-01",
		"Last updated 14.03.1999",
	}
	for _, text := range tests {
		if r, ok := ParseDates(text, testNow); ok {
			t.Errorf("ParseDates(%q) accepted implausible date %q", text, r.Start)
		}
	}
}

func TestParseDatesRejectsRollover(t *testing.T) {
	if r, ok := ParseDates("Scheduled 31.02.2026", testNow); ok {
		t.Errorf("Feb 31 must not parse, got %q", r.Start)
	}
}

func TestParseDatesDistantPairNotRange(t *testing.T) {
	r, ok := ParseDates("Kickoff 2026-03-14, follow-up 2026-06-20", testNow)
	if !ok {
		t.Fatal("Expected a start date")
	}
	if r.Start != "2026-03-14" {
		t.Errorf("Start = %q", r.Start)
	}
	if r.End != "" {
		t.Errorf("Dates three months apart must not pair into a range, got end %q", r.End)
	}
}

func TestParseDatesEmpty(t *testing.T) {
	if _, ok := ParseDates("", testNow); ok {
		t.Error("Empty text must not yield dates")
	}
	if _, ok := ParseDates("no dates in this text at all", testNow); ok {
		t.Error("Dateless text must not yield dates")
	}
}

func TestValidateISODate(t *testing.T) {
	if iso, err := ValidateISODate(" 2026-03-14 "); err != nil || iso != "2026-03-14" {
		t.Errorf("Expected normalized ISO date, got %q (%v)", iso, err)
	}
	if _, err := ValidateISODate("14.03.2026"); err == nil {
		t.Error("Non-ISO input must error")
	}
	if _, err := ValidateISODate(""); err == nil {
		t.Error("Empty input must error")
	}
}
