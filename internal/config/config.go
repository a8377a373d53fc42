package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries everything the pipeline treats as opaque external input:
// industry search-term templates, country-locale mappings, curated domains,
// and operational tunables. Loaded from YAML, env-overridable where the
// deployment needs it.
type Config struct {
	Search     SearchTerms `yaml:"search"`
	Extraction Extraction  `yaml:"extraction"`
	Admission  Admission   `yaml:"admission"`
	Providers  Providers   `yaml:"providers"`
}

// SearchTerms are the term groups the query builder assembles into tiers.
type SearchTerms struct {
	BaseQuery      string   `yaml:"base_query"`
	EventTerms     []string `yaml:"event_terms"`
	IndustryTerms  []string `yaml:"industry_terms"`
	RoleTerms      []string `yaml:"role_terms"`
	ExcludeTerms   []string `yaml:"exclude_terms"`
	CuratedDomains []string `yaml:"curated_domains"`

	// MaxQueryLength is the hard ceiling for every emitted query string.
	MaxQueryLength int `yaml:"max_query_length"`
}

// Extraction tunables for the extraction engine.
type Extraction struct {
	MaxConcurrency   int           `yaml:"max_concurrency"`
	PerHostGap       time.Duration `yaml:"per_host_gap"`
	BatchThreshold   int           `yaml:"batch_threshold"`
	PollTimeout      time.Duration `yaml:"poll_timeout"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	MinConfidence    float64       `yaml:"min_confidence"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	FallbackMinCount int           `yaml:"fallback_min_count"`
}

// Admission tunables for the country/date filter.
type Admission struct {
	DateToleranceDays  int     `yaml:"date_tolerance_days"`
	OverrideConfidence float64 `yaml:"override_confidence"`
	MaxUndatedFallback int     `yaml:"max_undated_fallback"`
}

// Providers holds provider endpoints; credentials come from the environment.
type Providers struct {
	FirecrawlBaseURL string `yaml:"firecrawl_base_url"`
	CSEBaseURL       string `yaml:"cse_base_url"`
	OpenAIModel      string `yaml:"openai_model"`
}

// Default returns the built-in configuration used when no YAML file is
// supplied. Values mirror production settings.
func Default() *Config {
	return &Config{
		Search: SearchTerms{
			BaseQuery: "industry conference",
			EventTerms: []string{
				"conference", "summit", "congress", "forum", "symposium",
				"expo", "trade fair", "convention",
			},
			IndustryTerms: []string{
				"compliance", "regulatory", "legal tech", "governance",
				"risk management", "audit",
			},
			RoleTerms: []string{
				"CEO", "CFO", "general counsel", "compliance officer",
				"managing director", "head of legal",
			},
			ExcludeTerms: []string{
				"webinar recording", "past event", "job posting",
			},
			CuratedDomains: []string{
				"10times.com", "eventbrite.com", "conferenceindex.org",
				"allconferences.com", "clocate.com", "vfairs.com",
			},
			MaxQueryLength: 256,
		},
		Extraction: Extraction{
			MaxConcurrency:   12,
			PerHostGap:       250 * time.Millisecond,
			BatchThreshold:   10,
			PollTimeout:      15 * time.Second,
			PollInterval:     800 * time.Millisecond,
			MinConfidence:    0.3,
			CacheTTL:         14 * 24 * time.Hour,
			FallbackMinCount: 5,
		},
		Admission: Admission{
			DateToleranceDays:  7,
			OverrideConfidence: 0.75,
			MaxUndatedFallback: 5,
		},
		Providers: Providers{
			FirecrawlBaseURL: "https://api.firecrawl.dev",
			CSEBaseURL:       "https://www.googleapis.com/customsearch/v1",
			OpenAIModel:      "gpt-4o-mini",
		},
	}
}

// Load reads a YAML config file and overlays it on the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Search.MaxQueryLength <= 0 {
		cfg.Search.MaxQueryLength = 256
	}
	if cfg.Extraction.MaxConcurrency <= 0 {
		cfg.Extraction.MaxConcurrency = 12
	}
	return cfg, nil
}
