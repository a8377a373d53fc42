package pipeline

import (
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/net/html"

	"industry-event-discovery/internal/models"
)

// JSONLDResult is the typed outcome of the structured-markup tier: fields
// read from an embedded schema.org Event block.
type JSONLDResult struct {
	Title     string
	StartDate string
	EndDate   string
	City      string
	Country   string
	Venue     string
	Organizer string
	Sponsors  []string
	Speakers  []string
	RawBlock  string
}

// Step names the trace step for this strategy.
func (r *JSONLDResult) Step() string { return models.StepJSONLD }

// Shape maps the result into a normalized candidate with evidence tags for
// every populated field.
func (r *JSONLDResult) Shape(sourceURL string, now time.Time) models.EventCandidate {
	c := models.EventCandidate{
		SourceURL:   sourceURL,
		Title:       NormalizeTitle(r.Title),
		Strategy:    models.StepJSONLD,
		ExtractedAt: now,
	}
	section := "jsonld"
	if c.Title != "" {
		c.AddEvidence("title", section, snippet(r.Title), 0.95)
	}
	if iso, err := ValidateISODate(firstDatePart(r.StartDate)); err == nil {
		c.StartsAt = iso
		c.AddEvidence("startsAt", section, r.StartDate, 0.95)
	}
	if iso, err := ValidateISODate(firstDatePart(r.EndDate)); err == nil {
		c.EndsAt = iso
		c.AddEvidence("endsAt", section, r.EndDate, 0.95)
	}
	if city := NormalizeName(r.City); city != "" {
		c.City = city
		c.AddEvidence("city", section, r.City, 0.95)
	}
	if country := NormalizeName(r.Country); country != "" {
		c.Country = country
		c.AddEvidence("country", section, r.Country, 0.95)
	}
	if venue := NormalizeName(r.Venue); venue != "" {
		c.Venue = venue
		c.AddEvidence("venue", section, r.Venue, 0.9)
	}
	if organizer := NormalizeName(r.Organizer); organizer != "" {
		c.Organizer = organizer
		c.AddEvidence("organizer", section, r.Organizer, 0.9)
	}
	if len(r.Sponsors) > 0 {
		c.Sponsors = r.Sponsors
		c.AddEvidence("sponsors", section, strings.Join(r.Sponsors, ", "), 0.85)
	}
	if len(r.Speakers) > 0 {
		c.Speakers = r.Speakers
		c.AddEvidence("speakers", section, strings.Join(r.Speakers, ", "), 0.85)
	}
	return c
}

// ParseJSONLD walks page HTML for <script type="application/ld+json">
// blocks and returns the first schema.org Event found. Returns nil when the
// page carries no event markup.
func ParseJSONLD(pageHTML string) *JSONLDResult {
	if pageHTML == "" {
		return nil
	}
	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return nil
	}

	var blocks []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" {
			for _, attr := range n.Attr {
				if attr.Key == "type" && strings.Contains(attr.Val, "ld+json") {
					if n.FirstChild != nil {
						blocks = append(blocks, n.FirstChild.Data)
					}
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	for _, block := range blocks {
		if result := parseEventBlock(block); result != nil {
			result.RawBlock = block
			return result
		}
	}
	return nil
}

// parseEventBlock decodes one ld+json block, which may be a single object,
// an array, or a @graph wrapper.
func parseEventBlock(block string) *JSONLDResult {
	var raw interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(block)), &raw); err != nil {
		return nil
	}
	for _, obj := range flattenLDNodes(raw) {
		if result := eventFromLDObject(obj); result != nil {
			return result
		}
	}
	return nil
}

func flattenLDNodes(raw interface{}) []map[string]interface{} {
	var out []map[string]interface{}
	switch v := raw.(type) {
	case map[string]interface{}:
		if graph, ok := v["@graph"].([]interface{}); ok {
			for _, item := range graph {
				if m, ok := item.(map[string]interface{}); ok {
					out = append(out, m)
				}
			}
		}
		out = append(out, v)
	case []interface{}:
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
	}
	return out
}

var eventTypes = map[string]bool{
	"event": true, "businessevent": true, "educationevent": true,
	"exhibitionevent": true, "festival": true, "socialevent": true,
	"conferenceevent": true, "tradefair": true,
}

func eventFromLDObject(obj map[string]interface{}) *JSONLDResult {
	typeName, _ := obj["@type"].(string)
	if !eventTypes[strings.ToLower(typeName)] {
		// @type can also be a list
		if typeList, ok := obj["@type"].([]interface{}); ok {
			matched := false
			for _, t := range typeList {
				if s, ok := t.(string); ok && eventTypes[strings.ToLower(s)] {
					matched = true
					break
				}
			}
			if !matched {
				return nil
			}
		} else {
			return nil
		}
	}

	result := &JSONLDResult{
		Title:     ldString(obj["name"]),
		StartDate: ldString(obj["startDate"]),
		EndDate:   ldString(obj["endDate"]),
	}

	if location, ok := obj["location"].(map[string]interface{}); ok {
		result.Venue = ldString(location["name"])
		if address, ok := location["address"].(map[string]interface{}); ok {
			result.City = ldString(address["addressLocality"])
			result.Country = ldString(address["addressCountry"])
		} else if addr := ldString(location["address"]); addr != "" {
			result.City = addr
		}
	}
	if organizer, ok := obj["organizer"].(map[string]interface{}); ok {
		result.Organizer = ldString(organizer["name"])
	} else {
		result.Organizer = ldString(obj["organizer"])
	}
	result.Sponsors = ldNames(obj["sponsor"])
	result.Speakers = ldNames(obj["performer"])

	if result.Title == "" && result.StartDate == "" {
		return nil
	}
	return result
}

func ldString(v interface{}) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func ldNames(v interface{}) []string {
	var out []string
	add := func(item interface{}) {
		switch t := item.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				out = append(out, s)
			}
		case map[string]interface{}:
			if name := ldString(t["name"]); name != "" {
				out = append(out, name)
			}
		}
	}
	switch t := v.(type) {
	case []interface{}:
		for _, item := range t {
			add(item)
		}
	default:
		add(v)
	}
	return out
}

// firstDatePart trims an ISO datetime ("2026-03-14T09:00:00+01:00") down to
// its date part.
func firstDatePart(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 160 {
		return s[:160]
	}
	return s
}
