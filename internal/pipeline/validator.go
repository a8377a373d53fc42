package pipeline

import (
	"fmt"
	"strings"
	"time"

	"industry-event-discovery/internal/models"
)

// Validator scores shaped candidates and enforces the evidence invariant:
// a field with no matching evidence tag is forced back to empty, so the
// pipeline cannot surface values an extraction strategy invented. Validate
// is pure and deterministic for identical inputs.
type Validator struct {
	now time.Time
}

// NewValidator creates a validator pinned to a reference time, which keeps
// date-plausibility scoring deterministic.
func NewValidator(now time.Time) *Validator {
	return &Validator{now: now.UTC()}
}

// Error-page confidence floor.
const errorTitleConfidence = 0.1

// Validate enforces the evidence invariant on a copy of the candidate and
// recomputes its confidence. The input is not mutated.
func (v *Validator) Validate(candidate models.EventCandidate) models.EventCandidate {
	out := candidate
	var reasons []string

	// Evidence invariant: no evidence => empty. Title from stub/regex tiers
	// is tagged by its strategy; anything untagged was inferred.
	if out.StartsAt != "" && !out.HasEvidenceFor("startsAt") {
		out.StartsAt = ""
		reasons = append(reasons, "startsAt dropped (no evidence)")
	}
	if out.EndsAt != "" && !out.HasEvidenceFor("endsAt") {
		out.EndsAt = ""
		reasons = append(reasons, "endsAt dropped (no evidence)")
	}
	if out.City != "" && !out.HasEvidenceFor("city") {
		out.City = ""
		reasons = append(reasons, "city dropped (no evidence)")
	}
	if out.Country != "" && !out.HasEvidenceFor("country") {
		out.Country = ""
		reasons = append(reasons, "country dropped (no evidence)")
	}
	if out.Venue != "" && !out.HasEvidenceFor("venue") {
		out.Venue = ""
		reasons = append(reasons, "venue dropped (no evidence)")
	}
	if out.Organizer != "" && !out.HasEvidenceFor("organizer") {
		out.Organizer = ""
		reasons = append(reasons, "organizer dropped (no evidence)")
	}
	if len(out.Topics) > 0 && !out.HasEvidenceFor("topics") {
		out.Topics = nil
		reasons = append(reasons, "topics dropped (no evidence)")
	}
	if len(out.Speakers) > 0 && !out.HasEvidenceFor("speakers") {
		out.Speakers = nil
		reasons = append(reasons, "speakers dropped (no evidence)")
	}
	if len(out.Sponsors) > 0 && !out.HasEvidenceFor("sponsors") {
		out.Sponsors = nil
		reasons = append(reasons, "sponsors dropped (no evidence)")
	}

	confidence, scoreReasons := v.score(&out)
	out.Confidence = clamp01(confidence)
	out.ConfidenceReason = strings.Join(append(scoreReasons, reasons...), "; ")
	return out
}

// score computes the weighted confidence of a candidate.
func (v *Validator) score(c *models.EventCandidate) (float64, []string) {
	var reasons []string

	// Error/placeholder pages are floored regardless of everything else.
	if IsErrorTitle(c.Title) {
		return errorTitleConfidence, []string{"error/placeholder title"}
	}

	score := 0.0

	// Title quality: up to 0.25.
	titleLen := len(strings.TrimSpace(c.Title))
	switch {
	case titleLen == 0 || IsGenericTitle(c.Title):
		reasons = append(reasons, "generic or missing title")
	case titleLen < 10:
		score += 0.10
		reasons = append(reasons, "short title")
	case titleLen <= 120:
		score += 0.25
	default:
		score += 0.15
		reasons = append(reasons, "overlong title")
	}

	// Core fields: date 0.25, city 0.15, country 0.10, venue 0.08,
	// organizer 0.07.
	if c.StartsAt != "" {
		if v.datePlausible(c.StartsAt) {
			score += 0.25
		} else {
			reasons = append(reasons, "implausible start date")
		}
	} else {
		reasons = append(reasons, "no start date")
	}
	if c.City != "" {
		score += 0.15
	}
	if c.Country != "" {
		score += 0.10
	}
	if c.Venue != "" {
		score += 0.08
	}
	if c.Organizer != "" {
		score += 0.07
	}

	// Enrichment: topics 0.05, speakers 0.05.
	if len(c.Topics) > 0 {
		score += 0.05
	}
	if len(c.Speakers) > 0 {
		score += 0.05
	}

	// Reject events whose only signal is a long-gone or far-future date.
	if c.StartsAt != "" && !v.datePlausible(c.StartsAt) && c.City == "" && c.Country == "" {
		return errorTitleConfidence, append(reasons, "only signal is an implausible date")
	}

	if len(reasons) == 0 {
		reasons = append(reasons, fmt.Sprintf("complete record (%d evidence tags)", len(c.Evidence)))
	}
	return score, reasons
}

// datePlausible bounds an ISO date to >1y past / <2y future around the
// validator's reference time.
func (v *Validator) datePlausible(iso string) bool {
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return false
	}
	return plausible(t, v.now)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
