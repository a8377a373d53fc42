package pipeline

import (
	"log"
	"strings"
	"time"

	"industry-event-discovery/internal/config"
	"industry-event-discovery/internal/models"
	"industry-event-discovery/internal/services"
)

// duplicateThreshold is the similarity score at which two candidates are
// treated as the same event.
const duplicateThreshold = 0.75

// AdmissionFilter is the final gate between extracted candidates and the
// response: country match, date-window match with tolerance, duplicate
// pruning. Extraction is deliberately permissive; this filter is where
// off-target results die.
type AdmissionFilter struct {
	cfg     config.Admission
	metrics *services.PipelineMetrics
	now     func() time.Time
}

func NewAdmissionFilter(cfg config.Admission) *AdmissionFilter {
	if cfg.DateToleranceDays <= 0 {
		cfg.DateToleranceDays = 7
	}
	if cfg.OverrideConfidence <= 0 {
		cfg.OverrideConfidence = 0.75
	}
	if cfg.MaxUndatedFallback <= 0 {
		cfg.MaxUndatedFallback = 5
	}
	return &AdmissionFilter{
		cfg:     cfg,
		metrics: services.GetPipelineMetrics(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Filter applies the country gate then the date gate, prunes duplicates,
// and records the admitted/dropped split.
func (f *AdmissionFilter) Filter(candidates []models.EventCandidate, req *models.RunRequest) []models.EventCandidate {
	var dated, undated []models.EventCandidate
	dropped := 0

	for _, c := range candidates {
		if !f.admitCountry(&c, req.Country) {
			log.Printf("[VALIDATION] Dropping %q: country %q does not match target %s", c.Title, c.Country, req.Country)
			dropped++
			continue
		}
		if c.StartsAt == "" && c.EndsAt == "" {
			undated = append(undated, c)
			continue
		}
		if !f.admitDates(c, req.DateFrom, req.DateTo) {
			log.Printf("[VALIDATION] Dropping %q: dates [%s, %s] outside window [%s, %s]",
				c.Title, c.StartsAt, c.EndsAt, req.DateFrom, req.DateTo)
			dropped++
			continue
		}
		dated = append(dated, c)
	}

	admitted := dated
	if req.AllowUndated {
		admitted = append(admitted, undated...)
	} else if len(dated) == 0 && len(undated) > 0 {
		// degraded fallback: better a few undated leads than an empty answer
		n := len(undated)
		if n > f.cfg.MaxUndatedFallback {
			n = f.cfg.MaxUndatedFallback
		}
		log.Printf("[VALIDATION] No dated events admitted; falling back to %d undated candidates", n)
		admitted = append(admitted, undated[:n]...)
		dropped += len(undated) - n
	} else {
		dropped += len(undated)
	}

	admitted = f.pruneDuplicates(admitted)
	f.metrics.RecordAdmission(len(admitted), dropped)
	return admitted
}

// admitCountry decides the country gate for one candidate, mutating it to
// record which tier admitted it. Tiers, in order: exact field match, EU
// membership, textual mention of the target geography, source TLD; plus a
// confidence override for high-certainty extractions whose text names the
// target even though the country field disagrees or is empty.
func (f *AdmissionFilter) admitCountry(c *models.EventCandidate, target string) bool {
	target = strings.ToUpper(strings.TrimSpace(target))
	if target == "" {
		return true
	}
	// the extraction schema allows "the country name as written", so the
	// field has to be resolved to a code before tier 1
	country := config.CountryCode(c.Country)

	if country == target {
		c.CountryGateAccepted = true
		return true
	}
	if target == "EU" {
		if config.EUMembers[country] {
			c.CountryGateAccepted = true
			return true
		}
		if f.mentionsEurope(c) {
			c.CountryGateAccepted = true
			return true
		}
	}
	if f.mentionsTarget(c, target) {
		if country == "" || c.Confidence >= f.cfg.OverrideConfidence {
			c.CountryGateAccepted = true
			return true
		}
		// textual mention but a confidently contradicting country field
		return false
	}
	if country == "" {
		if tld := models.CountryFromTLD(c.SourceURL); tld == target || (target == "EU" && (tld == "EU" || config.EUMembers[tld])) {
			c.CountryGateAccepted = true
			return true
		}
	}
	return false
}

// mentionsTarget scans the candidate's text for the target country's name,
// localized names, or any known city of it.
func (f *AdmissionFilter) mentionsTarget(c *models.EventCandidate, target string) bool {
	if target == "EU" {
		return f.mentionsEurope(c)
	}
	text := f.searchText(c)
	loc, ok := config.LocaleFor(target)
	if !ok {
		// no locale data: fall back to a whole-word scan of the code itself
		return indexOfWord(text, strings.ToLower(target)) >= 0
	}
	if strings.Contains(text, strings.ToLower(loc.Name)) {
		return true
	}
	for _, localized := range loc.Localized {
		if strings.Contains(text, localized) {
			return true
		}
	}
	if c.City != "" {
		if iso2, known := config.KnownCity(c.City); known && iso2 == target {
			return true
		}
	}
	for _, city := range loc.Cities {
		if strings.Contains(text, strings.ToLower(city)) {
			return true
		}
	}
	return false
}

func (f *AdmissionFilter) mentionsEurope(c *models.EventCandidate) bool {
	text := f.searchText(c)
	for _, kw := range config.EuropeKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func (f *AdmissionFilter) searchText(c *models.EventCandidate) string {
	return strings.ToLower(strings.Join([]string{c.Title, c.Description, c.Venue, c.City, c.Country, c.Organizer}, " "))
}

// admitDates checks overlap between the event interval and the requested
// window widened by the tolerance on both sides. Either bound alone is
// enough to place the event; unparseable dates fail closed.
func (f *AdmissionFilter) admitDates(c models.EventCandidate, dateFrom, dateTo string) bool {
	from, err := time.Parse("2006-01-02", dateFrom)
	if err != nil {
		return false
	}
	to, err := time.Parse("2006-01-02", dateTo)
	if err != nil {
		return false
	}
	tolerance := time.Duration(f.cfg.DateToleranceDays) * 24 * time.Hour
	from = from.Add(-tolerance)
	to = to.Add(tolerance).Add(24*time.Hour - time.Second) // inclusive end day

	start, serr := time.Parse("2006-01-02", firstDatePart(c.StartsAt))
	end, eerr := time.Parse("2006-01-02", firstDatePart(c.EndsAt))
	if serr != nil && eerr != nil {
		return false
	}
	if serr != nil {
		start = end
	}
	if eerr != nil || end.Before(start) {
		end = start
	}
	return !end.Before(from) && !start.After(to)
}

// pruneDuplicates keeps the first (highest-ranked) of any pair scoring at
// or above the duplicate threshold.
func (f *AdmissionFilter) pruneDuplicates(events []models.EventCandidate) []models.EventCandidate {
	var kept []models.EventCandidate
	for _, candidate := range events {
		duplicate := false
		for _, existing := range kept {
			if models.DuplicateSimilarity(existing, candidate) >= duplicateThreshold {
				log.Printf("[DEDUP] Dropping %q as duplicate of %q", candidate.Title, existing.Title)
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, candidate)
		}
	}
	return kept
}
