package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/mendableai/firecrawl-go"

	"industry-event-discovery/internal/models"
)

// Firecrawl extract-job states.
const (
	JobStateQueued    = "queued"
	JobStateCompleted = "completed"
	JobStateFailed    = "failed"
	JobStateCancelled = "cancelled"
	JobStateTimeout   = "timeout"
)

// FirecrawlClient is the primary (P1) search and extraction provider. Plain
// page scraping goes through the firecrawl-go SDK; search and the
// asynchronous schema-extract job use the HTTP API directly since the SDK
// does not cover them.
type FirecrawlClient struct {
	app        *firecrawl.FirecrawlApp
	httpClient *http.Client
	apiKey     string
	baseURL    string

	pollTimeout  time.Duration
	pollInterval time.Duration
}

// FirecrawlSearchResult is one hit from the search endpoint.
type FirecrawlSearchResult struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ExtractJob is the handle of a submitted extraction job.
type ExtractJob struct {
	ID        string
	URLs      []string
	Submitted time.Time
}

// ExtractJobStatus is one poll response of GET /v1/extract/{id}. Data
// follows the submitted schema.
type ExtractJobStatus struct {
	Status string         `json:"status"` // queued|completed|failed|cancelled
	Data   ExtractJobData `json:"data,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// ExtractJobData is the schema-shaped payload of a completed job.
type ExtractJobData struct {
	Events []ExtractedEventPayload `json:"events"`
}

// ExtractedEventPayload is the schema-constrained shape the extract job
// returns per URL.
type ExtractedEventPayload struct {
	SourceURL string   `json:"sourceUrl"`
	Title     string   `json:"title"`
	StartDate string   `json:"startDate"`
	EndDate   string   `json:"endDate"`
	City      string   `json:"city"`
	Country   string   `json:"country"`
	Venue     string   `json:"venue"`
	Organizer string   `json:"organizer"`
	Topics    []string `json:"topics"`
	Speakers  []string `json:"speakers"`
	Sponsors  []string `json:"sponsors"`
	Orgs      []string `json:"participatingOrganizations"`
	Evidence  []struct {
		Field         string `json:"field"`
		SourceSection string `json:"sourceSection"`
		Snippet       string `json:"snippet"`
	} `json:"evidence"`
}

// NewFirecrawlClient creates the P1 client from the environment.
func NewFirecrawlClient() (*FirecrawlClient, error) {
	apiKey := os.Getenv("FIRECRAWL_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("FIRECRAWL_API_KEY environment variable is required")
	}
	return NewFirecrawlClientWithConfig(apiKey, "https://api.firecrawl.dev")
}

// NewFirecrawlClientWithConfig creates the P1 client against a specific
// endpoint; tests point this at an httptest server.
func NewFirecrawlClientWithConfig(apiKey, baseURL string) (*FirecrawlClient, error) {
	app, err := firecrawl.NewFirecrawlApp(apiKey, baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firecrawl client: %w", err)
	}
	return &FirecrawlClient{
		app:          app,
		httpClient:   &http.Client{Timeout: 90 * time.Second},
		apiKey:       apiKey,
		baseURL:      baseURL,
		pollTimeout:  15 * time.Second,
		pollInterval: 800 * time.Millisecond,
	}, nil
}

// SetPolling overrides the extract-job poll deadline and step.
func (fc *FirecrawlClient) SetPolling(timeout, interval time.Duration) {
	fc.pollTimeout = timeout
	fc.pollInterval = interval
}

// Search runs one query against the search endpoint and maps hits into
// SearchResultItems tagged with the firecrawl provider.
func (fc *FirecrawlClient) Search(ctx context.Context, query string, limit int) ([]models.SearchResultItem, error) {
	if limit <= 0 {
		limit = 10
	}
	payload := map[string]interface{}{
		"query": query,
		"limit": limit,
	}

	var parsed struct {
		Success bool                    `json:"success"`
		Data    []FirecrawlSearchResult `json:"data"`
	}
	if err := fc.postJSON(ctx, "/v1/search", payload, &parsed); err != nil {
		return nil, fmt.Errorf("firecrawl search failed: %w", err)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("firecrawl search returned success=false")
	}

	items := make([]models.SearchResultItem, 0, len(parsed.Data))
	for _, r := range parsed.Data {
		if r.URL == "" {
			continue
		}
		items = append(items, models.SearchResultItem{
			URL:      r.URL,
			Title:    r.Title,
			Snippet:  r.Description,
			Provider: "firecrawl",
		})
	}
	log.Printf("[SEARCH] Firecrawl returned %d results for query %q", len(items), query)
	return items, nil
}

// Scrape fetches one page as markdown plus raw HTML through the SDK.
func (fc *FirecrawlClient) Scrape(url string) (markdown, html string, err error) {
	doc, err := fc.app.ScrapeURL(url, nil)
	if err != nil {
		return "", "", fmt.Errorf("firecrawl scrape failed: %w", err)
	}
	return doc.Markdown, doc.HTML, nil
}

// SubmitExtractJob starts an asynchronous schema-constrained extraction for
// a batch of URLs and returns the job handle.
func (fc *FirecrawlClient) SubmitExtractJob(ctx context.Context, urls []string) (*ExtractJob, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("no URLs to extract")
	}
	payload := map[string]interface{}{
		"urls":   urls,
		"schema": eventExtractionSchema(),
		"prompt": "Extract every industry event (conference, summit, congress, trade fair) on the page. Only report fields that are literally present in the page text, and attach an evidence snippet for each reported field. Never guess dates or locations.",
		"scrapeOptions": map[string]interface{}{
			"formats": []string{"markdown"},
		},
	}

	var parsed struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
	}
	if err := fc.postJSON(ctx, "/v1/extract", payload, &parsed); err != nil {
		return nil, fmt.Errorf("firecrawl extract submit failed: %w", err)
	}
	if !parsed.Success || parsed.ID == "" {
		return nil, fmt.Errorf("firecrawl extract submit returned no job id")
	}

	log.Printf("[EXTRACTION] Submitted extract job %s for %d URLs", parsed.ID, len(urls))
	return &ExtractJob{ID: parsed.ID, URLs: urls, Submitted: time.Now()}, nil
}

// PollExtractJob waits for a job to finish under the configured deadline.
// The returned status is JobStateTimeout when the deadline expires; the
// remote job is abandoned, not cancelled.
func (fc *FirecrawlClient) PollExtractJob(ctx context.Context, job *ExtractJob) (*ExtractJobStatus, error) {
	deadline := time.NewTimer(fc.pollTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(fc.pollInterval)
	defer ticker.Stop()

	for {
		status, err := fc.getJobStatus(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		switch status.Status {
		case JobStateCompleted, JobStateFailed, JobStateCancelled:
			return status, nil
		}

		select {
		case <-deadline.C:
			log.Printf("[EXTRACTION] Extract job %s abandoned after %v", job.ID, fc.pollTimeout)
			return &ExtractJobStatus{Status: JobStateTimeout}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (fc *FirecrawlClient) getJobStatus(ctx context.Context, jobID string) (*ExtractJobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fc.baseURL+"/v1/extract/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+fc.apiKey)

	resp, err := fc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extract status request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read status body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extract status returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var status ExtractJobStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status body: %w", err)
	}
	return &status, nil
}

func (fc *FirecrawlClient) postJSON(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fc.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+fc.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := fc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, truncate(string(respBody), 200))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// IsAvailable reports whether the provider answers at all.
func (fc *FirecrawlClient) IsAvailable(ctx context.Context) bool {
	_, err := fc.Search(ctx, "connectivity check", 1)
	return err == nil
}

// eventExtractionSchema is the fixed JSON schema the extract job is
// constrained to.
func eventExtractionSchema() map[string]interface{} {
	evidenceItem := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"field":         map[string]interface{}{"type": "string"},
			"sourceSection": map[string]interface{}{"type": "string"},
			"snippet":       map[string]interface{}{"type": "string"},
		},
		"required": []string{"field", "snippet"},
	}
	stringArray := map[string]interface{}{
		"type":  "array",
		"items": map[string]interface{}{"type": "string"},
	}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"events": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"sourceUrl":                  map[string]interface{}{"type": "string"},
						"title":                      map[string]interface{}{"type": "string", "description": "The official event name"},
						"startDate":                  map[string]interface{}{"type": "string", "description": "Start date in YYYY-MM-DD format"},
						"endDate":                    map[string]interface{}{"type": "string", "description": "End date in YYYY-MM-DD format"},
						"city":                       map[string]interface{}{"type": "string"},
						"country":                    map[string]interface{}{"type": "string", "description": "ISO2 country code or full country name"},
						"venue":                      map[string]interface{}{"type": "string"},
						"organizer":                  map[string]interface{}{"type": "string"},
						"topics":                     stringArray,
						"speakers":                   stringArray,
						"sponsors":                   stringArray,
						"participatingOrganizations": stringArray,
						"evidence": map[string]interface{}{
							"type":  "array",
							"items": evidenceItem,
						},
					},
					"required": []string{"title"},
				},
			},
		},
		"required": []string{"events"},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
