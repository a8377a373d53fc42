package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Date/locale parser. Extracts start/end dates from the formats European
// event sites actually use, including ranges, and rejects implausible
// results (far past or far future).

// DateRange is a parsed start/end pair in ISO form. End may be empty.
type DateRange struct {
	Start string
	End   string
}

// Month names across the locales the product covers. Keys are lowercase and
// unicode-folded where sites commonly drop diacritics.
var monthNames = map[string]time.Month{
	// English
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"jun": time.June, "jul": time.July, "aug": time.August, "sep": time.September,
	"sept": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
	// German
	"januar": time.January, "februar": time.February, "märz": time.March,
	"maerz": time.March, "mai": time.May, "juni": time.June, "juli": time.July,
	"oktober": time.October, "dezember": time.December,
	// French
	"janvier": time.January, "février": time.February, "fevrier": time.February,
	"mars": time.March, "avril": time.April, "juin": time.June,
	"juillet": time.July, "août": time.August, "aout": time.August,
	"septembre": time.September, "octobre": time.October, "novembre": time.November,
	"décembre": time.December, "decembre": time.December,
	// Spanish / Italian / Portuguese
	"enero": time.January, "febrero": time.February, "marzo": time.March,
	"abril": time.April, "mayo": time.May, "junio": time.June, "julio": time.July,
	"agosto": time.August, "septiembre": time.September, "octubre": time.October,
	"noviembre": time.November, "diciembre": time.December,
	"gennaio": time.January, "febbraio": time.February, "aprile": time.April,
	"maggio": time.May, "giugno": time.June, "luglio": time.July,
	"settembre": time.September, "ottobre": time.October, "dicembre": time.December,
	// Dutch
	"januari": time.January, "februari": time.February, "maart": time.March,
	"mei": time.May, "augustus": time.August,
}

var (
	// 2026-03-14
	isoDatePattern = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	// 14.03.2026 / 14/03/2026 (European day-first)
	numericEUPattern = regexp.MustCompile(`\b(\d{1,2})[./](\d{1,2})[./](\d{4})\b`)
	// March 14, 2026 / March 14 2026
	monthDayYearPattern = regexp.MustCompile(`(?i)\b([a-zäöüéûà]{3,12})\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	// 14 March 2026 / 14. März 2026
	dayMonthYearPattern = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\.?\s+([a-zäöüéûà]{3,12})\.?,?\s+(\d{4})\b`)
	// March 14-16, 2026 (range within one month)
	monthRangePattern = regexp.MustCompile(`(?i)\b([a-zäöüéûà]{3,12})\.?\s+(\d{1,2})\s*[-–—]\s*(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	// 14-16 March 2026
	dayRangeMonthPattern = regexp.MustCompile(`(?i)\b(\d{1,2})\s*[-–—]\s*(\d{1,2})\.?\s+([a-zäöüéûà]{3,12})\.?,?\s+(\d{4})\b`)
	// 14.-16.03.2026
	numericRangeEUPattern = regexp.MustCompile(`\b(\d{1,2})\.\s*[-–—]\s*(\d{1,2})\.(\d{1,2})\.(\d{4})\b`)
)

// Plausibility bounds: events are announced at most ~2 years ahead, and a
// page whose only date is over a year old is archival noise.
const (
	maxPastYears   = 1
	maxFutureYears = 2
)

// ParseDates scans free text for event dates and returns the best start/end
// pair found, ISO-formatted. Implausible dates are skipped. Returns ok=false
// when nothing plausible was found.
func ParseDates(text string, now time.Time) (DateRange, bool) {
	if text == "" {
		return DateRange{}, false
	}

	// Ranges first so a range is not consumed as two independent dates.
	if m := monthRangePattern.FindStringSubmatch(text); m != nil {
		if month, ok := lookupMonth(m[1]); ok {
			year, _ := strconv.Atoi(m[4])
			d1, _ := strconv.Atoi(m[2])
			d2, _ := strconv.Atoi(m[3])
			if r, ok := buildRange(year, month, d1, year, month, d2, now); ok {
				return r, true
			}
		}
	}
	if m := dayRangeMonthPattern.FindStringSubmatch(text); m != nil {
		if month, ok := lookupMonth(m[3]); ok {
			year, _ := strconv.Atoi(m[4])
			d1, _ := strconv.Atoi(m[1])
			d2, _ := strconv.Atoi(m[2])
			if r, ok := buildRange(year, month, d1, year, month, d2, now); ok {
				return r, true
			}
		}
	}
	if m := numericRangeEUPattern.FindStringSubmatch(text); m != nil {
		d1, _ := strconv.Atoi(m[1])
		d2, _ := strconv.Atoi(m[2])
		mo, _ := strconv.Atoi(m[3])
		year, _ := strconv.Atoi(m[4])
		if mo >= 1 && mo <= 12 {
			if r, ok := buildRange(year, time.Month(mo), d1, year, time.Month(mo), d2, now); ok {
				return r, true
			}
		}
	}

	// Single dates. Collect every hit and use the two earliest plausible
	// ones as start/end when they are close together.
	dates := collectSingleDates(text, now)
	if len(dates) == 0 {
		return DateRange{}, false
	}
	start := dates[0]
	r := DateRange{Start: start.Format("2006-01-02")}
	if len(dates) > 1 {
		end := dates[1]
		if end.After(start) && end.Sub(start) <= 14*24*time.Hour {
			r.End = end.Format("2006-01-02")
		}
	}
	return r, true
}

func collectSingleDates(text string, now time.Time) []time.Time {
	var out []time.Time
	seen := map[string]bool{}
	add := func(t time.Time, ok bool) {
		if !ok || !plausible(t, now) {
			return
		}
		key := t.Format("2006-01-02")
		if !seen[key] {
			seen[key] = true
			out = append(out, t)
		}
	}

	for _, m := range isoDatePattern.FindAllStringSubmatch(text, 4) {
		add(makeDate(m[1], m[2], m[3]))
	}
	for _, m := range numericEUPattern.FindAllStringSubmatch(text, 4) {
		// day-first: 14.03.2026
		add(makeDate(m[3], m[2], m[1]))
	}
	for _, m := range monthDayYearPattern.FindAllStringSubmatch(text, 4) {
		if month, ok := lookupMonth(m[1]); ok {
			day, _ := strconv.Atoi(m[2])
			year, _ := strconv.Atoi(m[3])
			add(safeDate(year, month, day))
		}
	}
	for _, m := range dayMonthYearPattern.FindAllStringSubmatch(text, 4) {
		if month, ok := lookupMonth(m[2]); ok {
			day, _ := strconv.Atoi(m[1])
			year, _ := strconv.Atoi(m[3])
			add(safeDate(year, month, day))
		}
	}

	// keep chronological order
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Before(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func lookupMonth(name string) (time.Month, bool) {
	month, ok := monthNames[strings.ToLower(strings.TrimSuffix(name, "."))]
	return month, ok
}

func makeDate(year, month, day string) (time.Time, bool) {
	y, err1 := strconv.Atoi(year)
	m, err2 := strconv.Atoi(month)
	d, err3 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || err3 != nil || m < 1 || m > 12 {
		return time.Time{}, false
	}
	return safeDate(y, time.Month(m), d)
}

func safeDate(year int, month time.Month, day int) (time.Time, bool) {
	if day < 1 || day > 31 || year < 2000 || year > 2100 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// reject rollovers like Feb 31
	if t.Day() != day || t.Month() != month {
		return time.Time{}, false
	}
	return t, true
}

func buildRange(y1 int, m1 time.Month, d1, y2 int, m2 time.Month, d2 int, now time.Time) (DateRange, bool) {
	start, ok1 := safeDate(y1, m1, d1)
	end, ok2 := safeDate(y2, m2, d2)
	if !ok1 || !plausible(start, now) {
		return DateRange{}, false
	}
	r := DateRange{Start: start.Format("2006-01-02")}
	if ok2 && !end.Before(start) {
		r.End = end.Format("2006-01-02")
	}
	return r, true
}

// plausible bounds a parsed date to [-1y, +2y] around now.
func plausible(t time.Time, now time.Time) bool {
	return t.After(now.AddDate(-maxPastYears, 0, 0)) && t.Before(now.AddDate(maxFutureYears, 0, 0))
}

// ValidateISODate checks an externally supplied date string and returns it
// normalized, or an error.
func ValidateISODate(s string) (string, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%q is not an ISO date: %w", s, err)
	}
	return t.Format("2006-01-02"), nil
}
