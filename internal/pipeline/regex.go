package pipeline

import (
	"regexp"
	"strings"
	"time"

	"industry-event-discovery/internal/config"
	"industry-event-discovery/internal/models"
)

// RegexResult is the typed outcome of the heuristic fallback tier: fields
// scraped out of raw markup with locale-aware patterns and a city
// allow-list. Lower confidence than structured or AI extraction.
type RegexResult struct {
	Title       string
	Dates       DateRange
	City        string
	CityCountry string
	Venue       string
	Organizer   string

	// raw matches kept for evidence snippets
	titleRaw     string
	dateSnippet  string
	citySnippet  string
	venueSnippet string
	orgSnippet   string
}

// Step names the trace step for this strategy.
func (r *RegexResult) Step() string { return models.StepRegex }

// Shape maps the result into a candidate with regex-tier evidence tags.
func (r *RegexResult) Shape(sourceURL string, now time.Time) models.EventCandidate {
	c := models.EventCandidate{
		SourceURL:   sourceURL,
		Title:       NormalizeTitle(r.Title),
		Strategy:    models.StepRegex,
		ExtractedAt: now,
	}
	section := "regex"
	if c.Title != "" {
		c.AddEvidence("title", section, snippet(r.titleRaw), 0.6)
	}
	if r.Dates.Start != "" {
		c.StartsAt = r.Dates.Start
		c.AddEvidence("startsAt", section, snippet(r.dateSnippet), 0.55)
	}
	if r.Dates.End != "" {
		c.EndsAt = r.Dates.End
		c.AddEvidence("endsAt", section, snippet(r.dateSnippet), 0.55)
	}
	if city := NormalizeName(r.City); city != "" {
		c.City = city
		c.AddEvidence("city", section, snippet(r.citySnippet), 0.6)
		if r.CityCountry != "" {
			c.Country = r.CityCountry
			c.AddEvidence("country", section, "city implies "+r.CityCountry, 0.5)
		}
	}
	if venue := NormalizeName(r.Venue); venue != "" {
		c.Venue = venue
		c.AddEvidence("venue", section, snippet(r.venueSnippet), 0.5)
	}
	if organizer := NormalizeName(r.Organizer); organizer != "" {
		c.Organizer = organizer
		c.AddEvidence("organizer", section, snippet(r.orgSnippet), 0.5)
	}
	return c
}

var (
	titleTagPattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	h1Pattern       = regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`)
	venuePattern    = regexp.MustCompile(`(?i)(?:venue|location|takes place at|held at|veranstaltungsort|lieu)\s*[:\-]?\s*([A-Z][^<\n.,;|]{3,60})`)
	organizerPat    = regexp.MustCompile(`(?i)(?:organized by|organised by|hosted by|presented by|veranstalter|organisé par)\s*[:\-]?\s*([A-Z][^<\n.,;|]{2,60})`)
)

// ParseRegex runs the heuristic fallback over raw page content (HTML or
// markdown). Returns nil when not even a title can be found.
func ParseRegex(content string, now time.Time) *RegexResult {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	result := &RegexResult{}

	if m := titleTagPattern.FindStringSubmatch(content); m != nil {
		result.titleRaw = m[1]
		result.Title = NormalizeTitle(CleanText(m[1]))
	} else if m := h1Pattern.FindStringSubmatch(content); m != nil {
		result.titleRaw = m[1]
		result.Title = NormalizeTitle(CleanText(m[1]))
	} else {
		// markdown: first heading line
		for _, line := range strings.Split(content, "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "# ") {
				result.titleRaw = line
				result.Title = NormalizeTitle(CleanText(strings.TrimPrefix(line, "# ")))
				break
			}
		}
	}

	text := CleanText(content)
	if len(text) > 20000 {
		text = text[:20000]
	}

	if dates, ok := ParseDates(text, now); ok {
		result.Dates = dates
		result.dateSnippet = dateContext(text, dates.Start)
	}

	// city allow-list scan; earliest mention wins
	bestIdx := -1
	lowerText := strings.ToLower(text)
	for _, city := range config.AllCities() {
		idx := indexOfWord(lowerText, strings.ToLower(city))
		if idx >= 0 && (bestIdx < 0 || idx < bestIdx) {
			bestIdx = idx
			result.City = city
			result.citySnippet = contextAround(text, idx, len(city))
		}
	}
	if result.City != "" {
		if iso2, ok := config.KnownCity(result.City); ok {
			result.CityCountry = iso2
		}
	}

	if m := venuePattern.FindStringSubmatch(text); m != nil {
		result.venueSnippet = m[0]
		result.Venue = CleanText(m[1])
	}
	if m := organizerPat.FindStringSubmatch(text); m != nil {
		result.orgSnippet = m[0]
		result.Organizer = CleanText(m[1])
	}

	if result.Title == "" && result.Dates.Start == "" && result.City == "" {
		return nil
	}
	return result
}

// indexOfWord finds needle in haystack at a word boundary.
func indexOfWord(haystack, needle string) int {
	offset := 0
	for {
		idx := strings.Index(haystack[offset:], needle)
		if idx < 0 {
			return -1
		}
		abs := offset + idx
		beforeOK := abs == 0 || !isWordChar(haystack[abs-1])
		afterIdx := abs + len(needle)
		afterOK := afterIdx >= len(haystack) || !isWordChar(haystack[afterIdx])
		if beforeOK && afterOK {
			return abs
		}
		offset = abs + len(needle)
		if offset >= len(haystack) {
			return -1
		}
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// contextAround returns a short snippet of text around a match for evidence.
func contextAround(text string, idx, length int) string {
	start := idx - 40
	if start < 0 {
		start = 0
	}
	end := idx + length + 40
	if end > len(text) {
		end = len(text)
	}
	return strings.TrimSpace(text[start:end])
}

// dateContext finds a snippet around the first occurrence of the parsed
// date's components; falls back to the ISO form itself.
func dateContext(text, iso string) string {
	if iso == "" {
		return ""
	}
	if idx := strings.Index(text, iso); idx >= 0 {
		return contextAround(text, idx, len(iso))
	}
	// the source text was likely in a localized format; year is the most
	// stable anchor
	year := iso[:4]
	if idx := strings.Index(text, year); idx >= 0 {
		return contextAround(text, idx, len(year))
	}
	return iso
}
