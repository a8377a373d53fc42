package config

import "strings"

// CountryLocale maps an ISO2 code to the names, cities and language hints the
// admission filter and date parser rely on. The set covers the geographies
// the product sells into; unknown codes fall back to code-only matching.
type CountryLocale struct {
	ISO2      string
	Name      string
	Localized []string // localized/alternate country names
	Cities    []string // major cities used for textual admission
	MonthLang string   // language key for month-name parsing
}

// EUMembers is the fixed membership list used for the synthetic "EU" target.
var EUMembers = map[string]bool{
	"AT": true, "BE": true, "BG": true, "HR": true, "CY": true, "CZ": true,
	"DK": true, "EE": true, "FI": true, "FR": true, "DE": true, "GR": true,
	"HU": true, "IE": true, "IT": true, "LV": true, "LT": true, "LU": true,
	"MT": true, "NL": true, "PL": true, "PT": true, "RO": true, "SK": true,
	"SI": true, "ES": true, "SE": true,
}

// EuropeKeywords admit an event textually as Europe-wide.
var EuropeKeywords = []string{
	"europe", "european", "europa", "europäisch", "européen", "europeo", "pan-european",
}

var countryLocales = map[string]CountryLocale{
	"DE": {ISO2: "DE", Name: "Germany",
		Localized: []string{"deutschland", "allemagne", "germania"},
		Cities:    []string{"Berlin", "Munich", "München", "Frankfurt", "Hamburg", "Cologne", "Köln", "Düsseldorf", "Stuttgart", "Leipzig"},
		MonthLang: "de"},
	"FR": {ISO2: "FR", Name: "France",
		Localized: []string{"frankreich", "francia"},
		Cities:    []string{"Paris", "Lyon", "Marseille", "Toulouse", "Lille", "Bordeaux", "Nice", "Cannes", "Strasbourg"},
		MonthLang: "fr"},
	"GB": {ISO2: "GB", Name: "United Kingdom",
		Localized: []string{"uk", "great britain", "england", "scotland", "wales"},
		Cities:    []string{"London", "Manchester", "Birmingham", "Edinburgh", "Glasgow", "Leeds", "Bristol", "Cambridge", "Oxford"},
		MonthLang: "en"},
	"NL": {ISO2: "NL", Name: "Netherlands",
		Localized: []string{"nederland", "holland", "niederlande", "pays-bas"},
		Cities:    []string{"Amsterdam", "Rotterdam", "The Hague", "Den Haag", "Utrecht", "Eindhoven"},
		MonthLang: "nl"},
	"ES": {ISO2: "ES", Name: "Spain",
		Localized: []string{"españa", "espana", "spanien", "espagne"},
		Cities:    []string{"Madrid", "Barcelona", "Valencia", "Seville", "Sevilla", "Bilbao", "Malaga", "Málaga"},
		MonthLang: "es"},
	"IT": {ISO2: "IT", Name: "Italy",
		Localized: []string{"italia", "italien", "italie"},
		Cities:    []string{"Rome", "Roma", "Milan", "Milano", "Turin", "Torino", "Florence", "Firenze", "Bologna", "Naples", "Napoli"},
		MonthLang: "it"},
	"AT": {ISO2: "AT", Name: "Austria",
		Localized: []string{"österreich", "oesterreich", "autriche"},
		Cities:    []string{"Vienna", "Wien", "Salzburg", "Graz", "Linz", "Innsbruck"},
		MonthLang: "de"},
	"CH": {ISO2: "CH", Name: "Switzerland",
		Localized: []string{"schweiz", "suisse", "svizzera"},
		Cities:    []string{"Zurich", "Zürich", "Geneva", "Genève", "Basel", "Bern", "Lausanne", "Davos"},
		MonthLang: "de"},
	"BE": {ISO2: "BE", Name: "Belgium",
		Localized: []string{"belgique", "belgië", "belgien"},
		Cities:    []string{"Brussels", "Bruxelles", "Brussel", "Antwerp", "Antwerpen", "Ghent", "Gent", "Bruges"},
		MonthLang: "fr"},
	"PL": {ISO2: "PL", Name: "Poland",
		Localized: []string{"polska", "polen", "pologne"},
		Cities:    []string{"Warsaw", "Warszawa", "Krakow", "Kraków", "Wroclaw", "Wrocław", "Gdansk", "Gdańsk", "Poznan", "Poznań"},
		MonthLang: "pl"},
	"SE": {ISO2: "SE", Name: "Sweden",
		Localized: []string{"sverige", "schweden", "suède"},
		Cities:    []string{"Stockholm", "Gothenburg", "Göteborg", "Malmö", "Uppsala"},
		MonthLang: "sv"},
	"DK": {ISO2: "DK", Name: "Denmark",
		Localized: []string{"danmark", "dänemark", "danemark"},
		Cities:    []string{"Copenhagen", "København", "Aarhus", "Odense"},
		MonthLang: "da"},
	"NO": {ISO2: "NO", Name: "Norway",
		Localized: []string{"norge", "norwegen", "norvège"},
		Cities:    []string{"Oslo", "Bergen", "Trondheim", "Stavanger"},
		MonthLang: "no"},
	"FI": {ISO2: "FI", Name: "Finland",
		Localized: []string{"suomi", "finnland", "finlande"},
		Cities:    []string{"Helsinki", "Espoo", "Tampere", "Turku"},
		MonthLang: "fi"},
	"IE": {ISO2: "IE", Name: "Ireland",
		Localized: []string{"éire", "eire", "irland", "irlande"},
		Cities:    []string{"Dublin", "Cork", "Galway", "Limerick"},
		MonthLang: "en"},
	"PT": {ISO2: "PT", Name: "Portugal",
		Cities:    []string{"Lisbon", "Lisboa", "Porto", "Braga"},
		MonthLang: "pt"},
	"CZ": {ISO2: "CZ", Name: "Czech Republic",
		Localized: []string{"czechia", "česko", "tschechien"},
		Cities:    []string{"Prague", "Praha", "Brno", "Ostrava"},
		MonthLang: "cs"},
	"US": {ISO2: "US", Name: "United States",
		Localized: []string{"usa", "u.s.", "america"},
		Cities:    []string{"New York", "San Francisco", "Chicago", "Boston", "Austin", "Las Vegas", "Washington", "Seattle", "Miami", "Los Angeles"},
		MonthLang: "en"},
	"CA": {ISO2: "CA", Name: "Canada",
		Cities:    []string{"Toronto", "Vancouver", "Montreal", "Montréal", "Ottawa", "Calgary"},
		MonthLang: "en"},
	"SG": {ISO2: "SG", Name: "Singapore",
		Cities:    []string{"Singapore"},
		MonthLang: "en"},
	"AE": {ISO2: "AE", Name: "United Arab Emirates",
		Localized: []string{"uae", "emirates"},
		Cities:    []string{"Dubai", "Abu Dhabi"},
		MonthLang: "en"},
}

// LocaleFor returns the locale entry for an ISO2 code. The second return is
// false for codes outside the covered set.
func LocaleFor(iso2 string) (CountryLocale, bool) {
	loc, ok := countryLocales[strings.ToUpper(iso2)]
	return loc, ok
}

// CountryCode normalizes a country value to its ISO2 code. Accepts the code
// itself, the English name, or a localized name; values outside the covered
// set come back uppercased unchanged so code-to-code comparison still works.
func CountryCode(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}
	upper := strings.ToUpper(v)
	if upper == "EU" {
		return upper
	}
	if _, ok := countryLocales[upper]; ok {
		return upper
	}
	lower := strings.ToLower(v)
	for code, loc := range countryLocales {
		if strings.EqualFold(v, loc.Name) {
			return code
		}
		for _, localized := range loc.Localized {
			if lower == localized {
				return code
			}
		}
	}
	return upper
}

// CountryToken is the search-query token for the target geography.
func CountryToken(iso2 string) string {
	if strings.EqualFold(iso2, "EU") {
		return "Europe"
	}
	if loc, ok := LocaleFor(iso2); ok {
		return loc.Name
	}
	return strings.ToUpper(iso2)
}

// KnownCity reports whether name is a known major city and for which
// country. Matching is case-insensitive on the full city name.
func KnownCity(name string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return "", false
	}
	for iso2, loc := range countryLocales {
		for _, city := range loc.Cities {
			if strings.ToLower(city) == needle {
				return iso2, true
			}
		}
	}
	return "", false
}

// AllCities returns every known city name; the regex extraction tier uses
// this as its city allow-list.
func AllCities() []string {
	var out []string
	for _, loc := range countryLocales {
		out = append(out, loc.Cities...)
	}
	return out
}
