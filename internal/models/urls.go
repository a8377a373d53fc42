package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Tracking query parameters stripped during URL normalization.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"gclid":        true,
	"fbclid":       true,
	"ref":          true,
	"mc_cid":       true,
	"mc_eid":       true,
}

// NormalizeURL canonicalizes a URL for use as a dedup/cache key: lowercased
// scheme and host, default ports and fragments removed, tracking parameters
// stripped, remaining query sorted, trailing slash trimmed. Running it twice
// yields the same string.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimRight(raw, "/"))
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")
	u.Host = host
	u.Fragment = ""

	q := u.Query()
	for param := range q {
		if trackingParams[strings.ToLower(param)] {
			q.Del(param)
		}
	}
	if len(q) == 0 {
		u.RawQuery = ""
	} else {
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var parts []string
		for _, k := range keys {
			vals := q[k]
			sort.Strings(vals)
			for _, v := range vals {
				parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
			}
		}
		u.RawQuery = strings.Join(parts, "&")
	}

	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

// CanonicalKey is the pipeline-wide uniqueness key for a candidate:
// normalized host+path plus the normalized title.
func CanonicalKey(sourceURL, title string) string {
	u := NormalizeURL(sourceURL)
	if parsed, err := url.Parse(u); err == nil && parsed.Host != "" {
		u = parsed.Host + parsed.Path
	}
	t := strings.Join(strings.Fields(strings.ToLower(title)), " ")
	return u + "|" + t
}

// HostOf returns the lowercased hostname of a URL, or "" when unparseable.
func HostOf(raw string) string {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// CountryFromTLD guesses an ISO2 country from a URL's top-level domain.
// Generic TLDs yield "".
func CountryFromTLD(raw string) string {
	host := HostOf(raw)
	if host == "" {
		return ""
	}
	idx := strings.LastIndex(host, ".")
	if idx < 0 {
		return ""
	}
	tld := host[idx+1:]
	if len(tld) != 2 {
		return ""
	}
	switch tld {
	case "uk":
		return "GB"
	case "eu":
		return "EU"
	case "co", "io", "ai", "me", "tv", "fm", "cc", "ly", "to", "gg":
		// country TLDs in common generic use carry no geography signal
		return ""
	}
	return strings.ToUpper(tld)
}

// GenerateEventID creates a stable ID for an event from its core attributes.
func GenerateEventID(title, startsAt, sourceURL string) string {
	input := fmt.Sprintf("%s|%s|%s",
		strings.ToLower(strings.TrimSpace(title)),
		strings.TrimSpace(startsAt),
		NormalizeURL(sourceURL))
	hash := sha256.Sum256([]byte(input))
	return "evt_" + hex.EncodeToString(hash[:])[:8]
}

// GenerateRunID creates a unique ID for a discovery run.
func GenerateRunID(timestamp time.Time) string {
	input := fmt.Sprintf("run|%d", timestamp.UnixNano())
	hash := sha256.Sum256([]byte(input))
	return "run_" + hex.EncodeToString(hash[:])[:8]
}

// DuplicateSimilarity scores two candidates on title, geography and start
// date (0.0 to 1.0). Events from different URLs above ~0.75 are treated as
// the same real-world event.
func DuplicateSimilarity(a, b EventCandidate) float64 {
	score := 0.0
	maxScore := 4.0

	titleA := strings.ToLower(strings.TrimSpace(a.Title))
	titleB := strings.ToLower(strings.TrimSpace(b.Title))
	if titleA != "" && titleA == titleB {
		score += 2.0
	} else if titleA != "" && titleB != "" &&
		(strings.Contains(titleA, titleB) || strings.Contains(titleB, titleA)) {
		score += 1.0
	}

	if a.City != "" && strings.EqualFold(a.City, b.City) {
		score += 1.0
	} else if a.Country != "" && strings.EqualFold(a.Country, b.Country) {
		score += 0.5
	}

	if a.StartsAt != "" && a.StartsAt == b.StartsAt {
		score += 1.0
	}

	return score / maxScore
}
