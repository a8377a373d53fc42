package models

import "time"

// EventCandidate represents a single industry event (conference, summit,
// trade fair) extracted from one source URL. A candidate is shaped once by
// whichever extraction strategy produced it; only the confidence fields are
// recomputed afterwards by the validator.
type EventCandidate struct {
	SourceURL string `json:"sourceUrl"`
	Title     string `json:"title"`

	// ISO dates (YYYY-MM-DD), empty when unknown.
	StartsAt string `json:"startsAt,omitempty"`
	EndsAt   string `json:"endsAt,omitempty"`

	City      string `json:"city,omitempty"`
	Country   string `json:"country,omitempty"` // ISO2 code or full name
	Venue     string `json:"venue,omitempty"`
	Organizer string `json:"organizer,omitempty"`

	Topics                     []string `json:"topics,omitempty"`
	Speakers                   []string `json:"speakers,omitempty"`
	Sponsors                   []string `json:"sponsors,omitempty"`
	ParticipatingOrganizations []string `json:"participatingOrganizations,omitempty"`
	Partners                   []string `json:"partners,omitempty"`
	Competitors                []string `json:"competitors,omitempty"`

	Description string `json:"description,omitempty"`

	Confidence       float64       `json:"confidence"`
	ConfidenceReason string        `json:"confidenceReason,omitempty"`
	Evidence         []EvidenceTag `json:"evidence,omitempty"`

	// CountryGateAccepted is set upstream when a country gate already vetted
	// this candidate; the admission filter trusts it only in the absence of a
	// contradicting country.
	CountryGateAccepted bool `json:"countryGateAccepted,omitempty"`

	// Strategy names which extraction tier produced this candidate:
	// cache|jsonld|aiExtract|regex|stub.
	Strategy    string    `json:"strategy,omitempty"`
	ExtractedAt time.Time `json:"extractedAt,omitempty"`
}

// EvidenceTag is a provenance record proving that a specific field was read
// from source text rather than inferred. The validator nulls out any field
// that has no matching tag.
type EvidenceTag struct {
	Field         string    `json:"field"`
	SourceSection string    `json:"sourceSection,omitempty"`
	Snippet       string    `json:"snippet,omitempty"`
	Confidence    float64   `json:"confidence"`
	ExtractedAt   time.Time `json:"extractedAt,omitempty"`
}

// Extraction trace step names.
const (
	StepCache     = "cache"
	StepJSONLD    = "jsonld"
	StepAIExtract = "aiExtract"
	StepRegex     = "regex"
	StepStub      = "stub"
	StepException = "exception"
)

// TraceEntry is one diagnostic record in an extraction trace. Traces are
// returned to the caller for observability and never persisted.
type TraceEntry struct {
	URL  string `json:"url"`
	Step string `json:"step"` // cache|jsonld|aiExtract|regex|stub|exception
	Rich bool   `json:"rich"`
	Note string `json:"note,omitempty"`
}

// SearchResultItem is a single hit from any search provider. Items are
// ephemeral; the orchestrator consumes them straight into the extraction
// engine's URL set.
type SearchResultItem struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`

	// Provider tags where the item came from: database|firecrawl|cse.
	Provider string `json:"provider,omitempty"`

	// Confidence carried by provider items that have no extracted detail
	// (secondary search-engine hits are tagged 0.6).
	Confidence float64 `json:"confidence,omitempty"`
}

// CacheEntry is the durable persisted form of one extraction result, keyed by
// normalized URL. Writes are upserts; concurrent writers race and
// last-write-wins is accepted.
type CacheEntry struct {
	URLNormalized string         `json:"urlNormalized" dynamodbav:"url_normalized"`
	Payload       EventCandidate `json:"payload" dynamodbav:"payload"`
	Confidence    float64        `json:"confidence" dynamodbav:"confidence"`
	SchemaVersion int            `json:"schemaVersion" dynamodbav:"schema_version"`
	StoredAt      time.Time      `json:"storedAt" dynamodbav:"stored_at"`
}

// CurrentSchemaVersion is bumped whenever the shape of the cached payload
// changes; entries with an older version are treated as cache misses.
const CurrentSchemaVersion = 2

// IsRich reports whether the candidate carries at least one of the signals
// that make a result worth keeping without falling to the next extraction
// tier: a start date, a city, or a country.
func (e *EventCandidate) IsRich() bool {
	return e.StartsAt != "" || e.City != "" || e.Country != ""
}

// HasEvidenceFor reports whether an evidence tag exists for the named field.
func (e *EventCandidate) HasEvidenceFor(field string) bool {
	for _, tag := range e.Evidence {
		if tag.Field == field {
			return true
		}
	}
	return false
}

// AddEvidence appends a tag for a field read from source text.
func (e *EventCandidate) AddEvidence(field, section, snippet string, confidence float64) {
	e.Evidence = append(e.Evidence, EvidenceTag{
		Field:         field,
		SourceSection: section,
		Snippet:       snippet,
		Confidence:    confidence,
		ExtractedAt:   time.Now().UTC(),
	})
}
