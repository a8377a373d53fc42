package pipeline

import (
	"fmt"
	"strings"

	"industry-event-discovery/internal/config"
)

// QueryBuilder turns a base query plus target geography into tiered
// search-engine query strings. Tier order encodes priority for the
// orchestrator.
type QueryBuilder struct {
	terms      config.SearchTerms
	maxLength  int
	domainsPer int
}

// SearchQuery is one emitted query with its tier name.
type SearchQuery struct {
	Name        string `json:"name"`
	Query       string `json:"query"`
	Description string `json:"description"`
}

// NewQueryBuilder creates a builder over the configured term groups.
func NewQueryBuilder(terms config.SearchTerms) *QueryBuilder {
	maxLen := terms.MaxQueryLength
	if maxLen <= 0 {
		maxLen = 256
	}
	return &QueryBuilder{
		terms:      terms,
		maxLength:  maxLen,
		domainsPer: 3,
	}
}

// Build emits the full tiered query set for a request. Every emitted query
// is at most maxLength characters; tiers whose naive construction would
// exceed the ceiling are chunked into multiple queries so that no term is
// dropped.
func (qb *QueryBuilder) Build(baseQuery, country, userIntent string) []SearchQuery {
	base := strings.TrimSpace(baseQuery)
	if base == "" {
		base = qb.terms.BaseQuery
	}
	countryToken := config.CountryToken(country)

	var out []SearchQuery
	out = append(out, qb.buildTier("precise",
		"country + event type + industry terms",
		base, countryToken,
		[][]string{qb.terms.EventTerms, qb.terms.IndustryTerms})...)
	out = append(out, qb.buildTier("role-angle",
		"decision-maker role angle",
		base, countryToken,
		[][]string{qb.terms.EventTerms, qb.terms.RoleTerms})...)
	out = append(out, qb.buildCuratedTier(base, countryToken)...)

	if intent := strings.TrimSpace(userIntent); intent != "" {
		// the user's own words get one extra precise-style query
		q := qb.assemble([]string{quoteIfSpaced(countryToken), intent, base})
		if len(q) <= qb.maxLength {
			out = append(out, SearchQuery{
				Name:        "user-intent",
				Query:       q,
				Description: "verbatim user intent",
			})
		}
	}
	return out
}

// buildTier emits one tier as `country AND (group1) AND (group2) AND base`,
// chunking each term group so every emitted query stays under the ceiling
// with all terms preserved across the chunked set.
func (qb *QueryBuilder) buildTier(name, description, base, countryToken string, groups [][]string) []SearchQuery {
	// fixed parts present in every chunk of this tier
	fixed := len(quoteIfSpaced(countryToken)) + len(base) + len(" ")*len(groups) + 16

	chunked := make([][][]string, len(groups))
	for i, group := range groups {
		budget := (qb.maxLength - fixed) / len(groups)
		chunked[i] = chunkTerms(group, budget)
	}

	var out []SearchQuery
	seq := 0
	// cartesian walk over group chunks keeps every term reachable
	walkChunks(chunked, func(selection [][]string) {
		parts := []string{quoteIfSpaced(countryToken)}
		for _, chunk := range selection {
			parts = append(parts, disjunction(chunk))
		}
		parts = append(parts, base)
		q := qb.assemble(parts)
		if len(q) > qb.maxLength {
			// budget math above keeps this unreachable for sane configs;
			// drop the base query as last resort rather than a term
			parts = parts[:len(parts)-1]
			q = qb.assemble(parts)
			if len(q) > qb.maxLength {
				return
			}
		}
		seq++
		suffix := ""
		if seq > 1 {
			suffix = fmt.Sprintf("-%d", seq)
		}
		out = append(out, SearchQuery{
			Name:        name + suffix,
			Query:       q,
			Description: description,
		})
	})
	return out
}

// buildCuratedTier emits `base AND events AND industry AND (site:a OR
// site:b OR site:c)` batched in groups of 3 domains. The term groups are
// chunked across multiple queries per domain batch so every term appears
// in some emitted query, same as buildTier.
func (qb *QueryBuilder) buildCuratedTier(base, countryToken string) []SearchQuery {
	if len(qb.terms.CuratedDomains) == 0 {
		return nil
	}
	var out []SearchQuery
	batch := 0
	for i := 0; i < len(qb.terms.CuratedDomains); i += qb.domainsPer {
		end := i + qb.domainsPer
		if end > len(qb.terms.CuratedDomains) {
			end = len(qb.terms.CuratedDomains)
		}
		var sites []string
		for _, domain := range qb.terms.CuratedDomains[i:end] {
			sites = append(sites, "site:"+domain)
		}
		siteGroup := "(" + strings.Join(sites, " OR ") + ")"
		batch++

		name := "curated-domain"
		if batch > 1 {
			name = fmt.Sprintf("curated-domain-%d", batch)
		}

		if len(qb.terms.EventTerms) == 0 && len(qb.terms.IndustryTerms) == 0 {
			q := qb.assemble([]string{base, siteGroup, quoteIfSpaced(countryToken)})
			if len(q) <= qb.maxLength {
				out = append(out, SearchQuery{
					Name:        name,
					Query:       q,
					Description: "curated event-listing domains",
				})
			}
			continue
		}

		fixed := len(base) + len(siteGroup) + len(quoteIfSpaced(countryToken)) + 16
		budget := (qb.maxLength - fixed) / 2
		chunked := [][][]string{
			chunkTerms(qb.terms.EventTerms, budget),
			chunkTerms(qb.terms.IndustryTerms, budget),
		}
		seq := 0
		walkChunks(chunked, func(selection [][]string) {
			parts := []string{base}
			for _, chunk := range selection {
				parts = append(parts, disjunction(chunk))
			}
			parts = append(parts, siteGroup, quoteIfSpaced(countryToken))
			q := qb.assemble(parts)
			if len(q) > qb.maxLength {
				// same last resort as buildTier: shed the base query,
				// never a term
				parts = parts[1:]
				q = qb.assemble(parts)
				if len(q) > qb.maxLength {
					return
				}
			}
			seq++
			chunkName := name
			if seq > 1 {
				chunkName = fmt.Sprintf("%s.%d", name, seq)
			}
			out = append(out, SearchQuery{
				Name:        chunkName,
				Query:       q,
				Description: "curated event-listing domains",
			})
		})
	}
	return out
}

func (qb *QueryBuilder) assemble(parts []string) string {
	var nonEmpty []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, strings.TrimSpace(p))
		}
	}
	return strings.Join(nonEmpty, " ")
}

// disjunction renders a term chunk as a parenthesized OR-group.
func disjunction(terms []string) string {
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = quoteIfSpaced(t)
	}
	if len(quoted) == 1 {
		return quoted[0]
	}
	return "(" + strings.Join(quoted, " OR ") + ")"
}

func quoteIfSpaced(term string) string {
	if strings.Contains(term, " ") {
		return `"` + term + `"`
	}
	return term
}

// chunkTerms splits a term list into chunks whose rendered disjunction fits
// the byte budget. Every term lands in exactly one chunk.
func chunkTerms(terms []string, budget int) [][]string {
	if budget < 16 {
		budget = 16
	}
	var chunks [][]string
	var current []string
	currentLen := 2 // parens
	for _, term := range terms {
		rendered := len(quoteIfSpaced(term)) + 4 // " OR "
		if len(current) > 0 && currentLen+rendered > budget {
			chunks = append(chunks, current)
			current = nil
			currentLen = 2
		}
		current = append(current, term)
		currentLen += rendered
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// walkChunks visits enough chunk combinations that every chunk of every
// group appears in at least one emitted query. Rather than a full cartesian
// product it advances all groups in lockstep, padding shorter groups with
// their first chunk.
func walkChunks(groups [][][]string, visit func(selection [][]string)) {
	maxChunks := 0
	for _, g := range groups {
		if len(g) > maxChunks {
			maxChunks = len(g)
		}
	}
	if maxChunks == 0 {
		return
	}
	for i := 0; i < maxChunks; i++ {
		selection := make([][]string, len(groups))
		for gi, g := range groups {
			if len(g) == 0 {
				selection[gi] = nil
			} else if i < len(g) {
				selection[gi] = g[i]
			} else {
				selection[gi] = g[0]
			}
		}
		visit(selection)
	}
}
