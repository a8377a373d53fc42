package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// RunRequest is the typed body of POST /events/run and
// POST /events/run-progressive. Bodies are validated at the boundary; the
// pipeline never sees an unvalidated request.
type RunRequest struct {
	Query    string `json:"query"`
	Country  string `json:"country"` // ISO2 code, or "EU"
	DateFrom string `json:"dateFrom"`
	DateTo   string `json:"dateTo"`

	// UserIntent is free text describing what the caller is looking for; it
	// feeds the query builder's precision tier.
	UserIntent string `json:"userIntent,omitempty"`

	// AllowUndated keeps events with no parseable date instead of stashing
	// them for last-resort fallback only.
	AllowUndated bool `json:"allowUndated,omitempty"`

	MaxResults int `json:"maxResults,omitempty"`
}

// Stable error codes surfaced on 400 responses.
const (
	ErrCodeMissingDateRange = "missing_date_range"
	ErrCodeInvalidDateRange = "invalid_date_range"
	ErrCodeInvalidCountry   = "invalid_country"
	ErrCodeMissingQuery     = "missing_query"
)

// ValidationError is an input-validation failure with a stable code.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Code, v.Message)
}

var iso2Pattern = regexp.MustCompile(`^[A-Z]{2}$`)

// Validate checks required fields and normalizes the country code in place.
func (r *RunRequest) Validate() *ValidationError {
	if strings.TrimSpace(r.Query) == "" {
		return &ValidationError{Code: ErrCodeMissingQuery, Message: "query is required"}
	}
	if r.DateFrom == "" || r.DateTo == "" {
		return &ValidationError{Code: ErrCodeMissingDateRange, Message: "dateFrom and dateTo are required"}
	}
	from, err := time.Parse("2006-01-02", r.DateFrom)
	if err != nil {
		return &ValidationError{Code: ErrCodeInvalidDateRange, Message: fmt.Sprintf("dateFrom %q is not an ISO date", r.DateFrom)}
	}
	to, err := time.Parse("2006-01-02", r.DateTo)
	if err != nil {
		return &ValidationError{Code: ErrCodeInvalidDateRange, Message: fmt.Sprintf("dateTo %q is not an ISO date", r.DateTo)}
	}
	if to.Before(from) {
		return &ValidationError{Code: ErrCodeInvalidDateRange, Message: "dateTo is before dateFrom"}
	}
	r.Country = strings.ToUpper(strings.TrimSpace(r.Country))
	if r.Country == "" {
		return &ValidationError{Code: ErrCodeInvalidCountry, Message: "country is required"}
	}
	if r.Country != "EU" && !iso2Pattern.MatchString(r.Country) {
		return &ValidationError{Code: ErrCodeInvalidCountry, Message: fmt.Sprintf("country %q is not an ISO2 code", r.Country)}
	}
	return nil
}

// RunResponse is the synchronous result of POST /events/run.
type RunResponse struct {
	RequestID  string           `json:"requestId"`
	Events     []EventCandidate `json:"events"`
	Trace      []TraceEntry     `json:"trace,omitempty"`
	TotalFound int              `json:"totalFound"`
	TookMS     int64            `json:"tookMs"`
	Error      string           `json:"error,omitempty"`
	Debug      *RunDebug        `json:"debug,omitempty"`
}

// RunDebug carries crash markers for the outermost recovery handler.
type RunDebug struct {
	Crashed bool   `json:"crashed"`
	Detail  string `json:"detail,omitempty"`
}

// Progressive run stages, emitted in this order.
const (
	StageDatabase  = "database"
	StageFirecrawl = "firecrawl"
	StageCSE       = "cse"
	StageComplete  = "complete"
	StageError     = "error"
)

// ProgressFrame is one Server-Sent-Events frame of
// POST /events/run-progressive.
type ProgressFrame struct {
	Stage      string           `json:"stage"`
	Events     []EventCandidate `json:"events"`
	TotalSoFar int              `json:"totalSoFar"`
	IsComplete bool             `json:"isComplete"`
	Message    string           `json:"message,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// RunSummary is the batch-run report produced by the lambda entrypoint.
type RunSummary struct {
	RunID           string   `json:"run_id"`
	Query           string   `json:"query"`
	Country         string   `json:"country"`
	TotalCandidates int      `json:"total_candidates"`
	AdmittedEvents  int      `json:"admitted_events"`
	DroppedEvents   int      `json:"dropped_events"`
	ProcessingMS    int64    `json:"processing_time_ms"`
	UploadedFiles   []string `json:"uploaded_files,omitempty"`
	Errors          []string `json:"errors,omitempty"`
}
