package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"industry-event-discovery/internal/models"
)

// CSEFallbackConfidence is carried by P2 items: they have no extracted
// detail, only title/URL/snippet.
const CSEFallbackConfidence = 0.6

// CSEClient is the secondary (P2) search provider, backed by the Google
// Custom Search JSON API. It is invoked only when the primary provider
// failed or came back under the result threshold.
type CSEClient struct {
	httpClient *http.Client
	apiKey     string
	engineID   string
	baseURL    string
}

type cseResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewCSEClient creates the P2 client from the environment.
func NewCSEClient() (*CSEClient, error) {
	apiKey := os.Getenv("GOOGLE_CSE_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_CSE_API_KEY environment variable is required")
	}
	engineID := os.Getenv("GOOGLE_CSE_ENGINE_ID")
	if engineID == "" {
		return nil, fmt.Errorf("GOOGLE_CSE_ENGINE_ID environment variable is required")
	}
	return NewCSEClientWithConfig(apiKey, engineID, "https://www.googleapis.com/customsearch/v1"), nil
}

// NewCSEClientWithConfig creates the P2 client against a specific endpoint.
func NewCSEClientWithConfig(apiKey, engineID, baseURL string) *CSEClient {
	return &CSEClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		apiKey:     apiKey,
		engineID:   engineID,
		baseURL:    baseURL,
	}
}

// Search runs one query and maps hits into low-confidence
// SearchResultItems tagged with the cse provider.
func (c *CSEClient) Search(ctx context.Context, query string, limit int) ([]models.SearchResultItem, error) {
	if limit <= 0 || limit > 10 {
		limit = 10 // CSE caps num at 10 per request
	}

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.engineID)
	params.Set("q", query)
	params.Set("num", fmt.Sprintf("%d", limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSE request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("CSE request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read CSE response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("CSE returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed cseResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse CSE response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("CSE error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}

	items := make([]models.SearchResultItem, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Link == "" {
			continue
		}
		items = append(items, models.SearchResultItem{
			URL:        item.Link,
			Title:      item.Title,
			Snippet:    item.Snippet,
			Provider:   "cse",
			Confidence: CSEFallbackConfidence,
		})
	}
	log.Printf("[SEARCH] CSE returned %d results for query %q", len(items), query)
	return items, nil
}
