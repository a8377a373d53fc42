package pipeline

import (
	"testing"

	"industry-event-discovery/internal/config"
	"industry-event-discovery/internal/models"
)

func admissionFilter() *AdmissionFilter {
	return NewAdmissionFilter(config.Default().Admission)
}

func windowRequest(country string) *models.RunRequest {
	return &models.RunRequest{
		Query:    "compliance",
		Country:  country,
		DateFrom: "2026-03-10",
		DateTo:   "2026-03-20",
	}
}

func TestAdmitCountryExactMatch(t *testing.T) {
	f := admissionFilter()
	events := []models.EventCandidate{
		{SourceURL: "https://a.de/1", Title: "Summit A", Country: "DE", StartsAt: "2026-03-14", Confidence: 0.7},
		{SourceURL: "https://b.fr/2", Title: "Summit B", Country: "FR", StartsAt: "2026-03-14", Confidence: 0.7},
	}

	admitted := f.Filter(events, windowRequest("DE"))
	if len(admitted) != 1 {
		t.Fatalf("Expected 1 admitted event, got %d", len(admitted))
	}
	if admitted[0].Title != "Summit A" {
		t.Errorf("Wrong event admitted: %q", admitted[0].Title)
	}
	if !admitted[0].CountryGateAccepted {
		t.Error("Admitted event must carry the gate flag")
	}
}

func TestAdmitCountryCityMention(t *testing.T) {
	f := admissionFilter()
	events := []models.EventCandidate{
		{SourceURL: "https://a.com/1", Title: "Automation Forum Berlin", StartsAt: "2026-03-14", Confidence: 0.6},
		{SourceURL: "https://b.com/2", Title: "Automation Forum Lyon", StartsAt: "2026-03-14", Confidence: 0.6},
	}

	admitted := f.Filter(events, windowRequest("DE"))
	if len(admitted) != 1 || admitted[0].Title != "Automation Forum Berlin" {
		t.Fatalf("Expected only the Berlin event, got %+v", admitted)
	}
}

func TestAdmitCountryEU(t *testing.T) {
	f := admissionFilter()
	events := []models.EventCandidate{
		{SourceURL: "https://a.at/1", Title: "Vienna Summit", Country: "AT", StartsAt: "2026-03-14", Confidence: 0.7},
		{SourceURL: "https://b.ch/2", Title: "Zurich Forum", Country: "CH", StartsAt: "2026-03-14", Confidence: 0.7},
		{SourceURL: "https://c.com/3", Title: "European Compliance Days", StartsAt: "2026-03-14", Confidence: 0.7},
	}

	admitted := f.Filter(events, windowRequest("EU"))
	if len(admitted) != 2 {
		t.Fatalf("Expected AT member and Europe-keyword events, got %d: %+v", len(admitted), admitted)
	}
	for _, ev := range admitted {
		if ev.Country == "CH" {
			t.Error("Non-member without Europe mention must not pass the EU gate")
		}
	}
}

func TestAdmitCountryConfidenceOverride(t *testing.T) {
	f := admissionFilter()
	base := models.EventCandidate{
		SourceURL:   "https://global-events.com/hh",
		Title:       "Logistics Congress",
		Description: "Held in Hamburg, Germany, for European supply chain leaders.",
		Country:     "US", // provider mislabeled the event
		StartsAt:    "2026-03-14",
	}

	confident := base
	confident.Confidence = 0.8
	if admitted := f.Filter([]models.EventCandidate{confident}, windowRequest("DE")); len(admitted) != 1 {
		t.Error("High-confidence textual mention must override a contradicting country field")
	}

	doubtful := base
	doubtful.Confidence = 0.5
	if admitted := f.Filter([]models.EventCandidate{doubtful}, windowRequest("DE")); len(admitted) != 0 {
		t.Error("Low-confidence contradiction must not be overridden")
	}
}

func TestAdmitCountryTLDFallback(t *testing.T) {
	f := admissionFilter()
	events := []models.EventCandidate{
		{SourceURL: "https://fachmesse.de/expo", Title: "Spring Expo", StartsAt: "2026-03-14", Confidence: 0.4},
	}
	if admitted := f.Filter(events, windowRequest("DE")); len(admitted) != 1 {
		t.Error("Countryless event from a .de host must pass the DE gate")
	}
	if admitted := f.Filter(events, windowRequest("FR")); len(admitted) != 0 {
		t.Error(".de host must not pass the FR gate without a mention")
	}
}

func TestAdmitCountryFullName(t *testing.T) {
	f := admissionFilter()

	tests := []struct {
		name     string
		country  string
		target   string
		admitted bool
	}{
		{"english name", "Germany", "DE", true},
		{"localized name", "Deutschland", "DE", true},
		{"iso2 unchanged", "DE", "DE", true},
		{"wrong country name", "France", "DE", false},
		{"name against eu target", "Sverige", "EU", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := []models.EventCandidate{{
				SourceURL:  "https://example.com/e",
				Title:      "Compliance Summit",
				Country:    tt.country,
				StartsAt:   "2026-03-14",
				Confidence: 0.7,
			}}
			admitted := f.Filter(events, windowRequest(tt.target))
			if got := len(admitted) == 1; got != tt.admitted {
				t.Errorf("country=%q target=%s: admitted=%v, expected %v",
					tt.country, tt.target, got, tt.admitted)
			}
		})
	}
}

func TestAdmitDatesEndOnly(t *testing.T) {
	f := admissionFilter()
	req := windowRequest("DE")

	inWindow := []models.EventCandidate{{
		SourceURL:  "https://a.de/1",
		Title:      "End-Dated Summit",
		Country:    "DE",
		EndsAt:     "2026-03-14",
		Confidence: 0.7,
	}}
	if admitted := f.Filter(inWindow, req); len(admitted) != 1 {
		t.Fatalf("Expected end-date-only event inside the window to be admitted, got %d", len(admitted))
	}

	// out of window it must be dropped outright, not parked as undated
	outOfWindow := []models.EventCandidate{{
		SourceURL:  "https://a.de/2",
		Title:      "Late Congress",
		Country:    "DE",
		EndsAt:     "2026-05-14",
		Confidence: 0.7,
	}}
	if admitted := f.Filter(outOfWindow, req); len(admitted) != 0 {
		t.Fatalf("Expected out-of-window end-date-only event to be dropped, got %d admitted", len(admitted))
	}
}

func TestAdmitDatesTolerance(t *testing.T) {
	f := admissionFilter()
	req := windowRequest("DE") // window 2026-03-10 .. 2026-03-20, tolerance 7d

	tests := []struct {
		name     string
		startsAt string
		endsAt   string
		admitted bool
	}{
		{"inside window", "2026-03-14", "", true},
		{"6 days before start", "2026-03-04", "", true},
		{"8 days before start", "2026-03-02", "", false},
		{"6 days after end", "2026-03-26", "", true},
		{"8 days after end", "2026-03-28", "", false},
		{"interval overlaps start", "2026-02-25", "2026-03-12", true},
		{"interval entirely before", "2026-02-01", "2026-02-10", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := []models.EventCandidate{{
				SourceURL:  "https://a.de/e",
				Title:      "Window Summit",
				Country:    "DE",
				StartsAt:   tt.startsAt,
				EndsAt:     tt.endsAt,
				Confidence: 0.7,
			}}
			admitted := f.Filter(events, req)
			if got := len(admitted) == 1; got != tt.admitted {
				t.Errorf("startsAt=%s endsAt=%s: admitted=%v, expected %v",
					tt.startsAt, tt.endsAt, got, tt.admitted)
			}
		})
	}
}

func TestUndatedFallback(t *testing.T) {
	f := admissionFilter()
	var events []models.EventCandidate
	for i := 0; i < 8; i++ {
		events = append(events, models.EventCandidate{
			SourceURL:  "https://a.de/" + string(rune('a'+i)),
			Title:      "Undated Lead " + string(rune('A'+i)),
			Country:    "DE",
			Confidence: 0.5,
		})
	}

	admitted := f.Filter(events, windowRequest("DE"))
	if len(admitted) != 5 {
		t.Errorf("Expected undated fallback capped at 5, got %d", len(admitted))
	}
}

func TestUndatedDroppedWhenDatedExist(t *testing.T) {
	f := admissionFilter()
	events := []models.EventCandidate{
		{SourceURL: "https://a.de/1", Title: "Dated Summit", Country: "DE", StartsAt: "2026-03-14", Confidence: 0.7},
		{SourceURL: "https://b.de/2", Title: "Undated Lead", Country: "DE", Confidence: 0.5},
	}

	admitted := f.Filter(events, windowRequest("DE"))
	if len(admitted) != 1 || admitted[0].Title != "Dated Summit" {
		t.Errorf("Undated events must be dropped when dated ones exist, got %+v", admitted)
	}
}

func TestAllowUndatedKeepsAll(t *testing.T) {
	f := admissionFilter()
	req := windowRequest("DE")
	req.AllowUndated = true
	events := []models.EventCandidate{
		{SourceURL: "https://a.de/1", Title: "Dated Summit", Country: "DE", StartsAt: "2026-03-14", Confidence: 0.7},
		{SourceURL: "https://b.de/2", Title: "Undated Lead", Country: "DE", Confidence: 0.5},
	}

	admitted := f.Filter(events, req)
	if len(admitted) != 2 {
		t.Errorf("AllowUndated must keep undated events, got %d", len(admitted))
	}
}

func TestPruneDuplicates(t *testing.T) {
	f := admissionFilter()
	events := []models.EventCandidate{
		{SourceURL: "https://a.de/1", Title: "Compliance Summit", City: "Berlin", Country: "DE", StartsAt: "2026-03-14", Confidence: 0.8},
		{SourceURL: "https://aggregator.com/x", Title: "Compliance Summit", City: "Berlin", Country: "DE", StartsAt: "2026-03-14", Confidence: 0.6},
		{SourceURL: "https://b.de/2", Title: "Different Congress", City: "Munich", Country: "DE", StartsAt: "2026-03-15", Confidence: 0.7},
	}

	admitted := f.Filter(events, windowRequest("DE"))
	if len(admitted) != 2 {
		t.Fatalf("Expected duplicate pruned, got %d events", len(admitted))
	}
	for _, ev := range admitted {
		if ev.SourceURL == "https://aggregator.com/x" {
			t.Error("Lower-ranked duplicate should have been pruned")
		}
	}
}
