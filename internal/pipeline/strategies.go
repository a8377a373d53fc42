package pipeline

import (
	"strings"
	"time"

	"industry-event-discovery/internal/models"
	"industry-event-discovery/internal/services"
)

// Each extraction tier produces its own typed result; StrategyResult is the
// union the engine maps into a normalized candidate. Tiers are evaluated in
// order and the first result rich enough to keep wins.
type StrategyResult interface {
	Step() string
	Shape(sourceURL string, now time.Time) models.EventCandidate
}

// AIExtractResult is the typed outcome of the AI schema-extraction tier,
// shaped from either a provider extract job or an OpenAI pass over scraped
// markdown.
type AIExtractResult struct {
	Candidate models.EventCandidate
}

// Step names the trace step for this strategy.
func (r *AIExtractResult) Step() string { return models.StepAIExtract }

// Shape returns the already-normalized candidate; AI outputs arrive with
// their evidence attached.
func (r *AIExtractResult) Shape(sourceURL string, now time.Time) models.EventCandidate {
	c := r.Candidate
	if c.SourceURL == "" {
		c.SourceURL = sourceURL
	}
	c.Strategy = models.StepAIExtract
	if c.ExtractedAt.IsZero() {
		c.ExtractedAt = now
	}
	return c
}

// CandidateFromExtractPayload maps one extract-job payload into the typed
// AI result, attaching the job's evidence tags.
func CandidateFromExtractPayload(payload services.ExtractedEventPayload, fallbackURL string) *AIExtractResult {
	sourceURL := payload.SourceURL
	if sourceURL == "" {
		sourceURL = fallbackURL
	}
	c := models.EventCandidate{
		SourceURL: sourceURL,
		Title:     NormalizeTitle(payload.Title),
		City:      NormalizeName(payload.City),
		Country:   NormalizeName(payload.Country),
		Venue:     NormalizeName(payload.Venue),
		Organizer: NormalizeName(payload.Organizer),
		Topics:    payload.Topics,
		Speakers:  payload.Speakers,
		Sponsors:  payload.Sponsors,

		ParticipatingOrganizations: payload.Orgs,

		ExtractedAt: time.Now().UTC(),
	}
	if iso, err := ValidateISODate(payload.StartDate); err == nil {
		c.StartsAt = iso
	}
	if iso, err := ValidateISODate(payload.EndDate); err == nil {
		c.EndsAt = iso
	}
	for _, tag := range payload.Evidence {
		c.AddEvidence(tag.Field, nonEmpty(tag.SourceSection, "aiExtract"), tag.Snippet, 0.85)
	}
	return &AIExtractResult{Candidate: c}
}

// StubResult is the last-resort tier: a minimal candidate whose only
// geography signal is the URL's top-level domain. Keeps the engine's
// "never empty-handed" contract.
type StubResult struct {
	GuessedCountry string
	PageTitle      string
}

// Step names the trace step for this strategy.
func (r *StubResult) Step() string { return models.StepStub }

// Shape builds the minimal candidate. The TLD country guess gets a
// low-confidence evidence tag so the validator keeps it.
func (r *StubResult) Shape(sourceURL string, now time.Time) models.EventCandidate {
	title := NormalizeTitle(r.PageTitle)
	if title == "" {
		title = "Untitled Event"
	}
	c := models.EventCandidate{
		SourceURL:   sourceURL,
		Title:       title,
		Strategy:    models.StepStub,
		ExtractedAt: now,
	}
	if r.PageTitle != "" {
		c.AddEvidence("title", "stub", snippet(r.PageTitle), 0.3)
	}
	if r.GuessedCountry != "" {
		c.Country = r.GuessedCountry
		c.AddEvidence("country", "tld", "guessed from domain "+models.HostOf(sourceURL), 0.3)
	}
	return c
}

// NewStub builds the stub result for a URL.
func NewStub(sourceURL, pageTitle string) *StubResult {
	return &StubResult{
		GuessedCountry: models.CountryFromTLD(sourceURL),
		PageTitle:      pageTitle,
	}
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) != "" {
		return s
	}
	return fallback
}
