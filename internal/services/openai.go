package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"industry-event-discovery/internal/models"
)

// OpenAIClient extracts event records from scraped markdown. It backs the
// aiExtract tier when the provider's extract job failed or timed out but a
// scrape of the page succeeded.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// OpenAIExtractionResult is one extraction pass over a single page.
type OpenAIExtractionResult struct {
	Events       []models.EventCandidate `json:"events"`
	TokensUsed   int                     `json:"tokens_used"`
	ProcessingMS int64                   `json:"processing_ms"`
	SourceURL    string                  `json:"source_url"`
}

// NewOpenAIClient creates a client from the environment.
func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required")
	}
	return &OpenAIClient{
		client:      openai.NewClient(apiKey),
		model:       "gpt-4o-mini",
		temperature: 0.1,
		maxTokens:   4000,
	}, nil
}

// NewOpenAIClientWithConfig creates a client with a custom model setup.
func NewOpenAIClientWithConfig(model string, temperature float32, maxTokens int) (*OpenAIClient, error) {
	c, err := NewOpenAIClient()
	if err != nil {
		return nil, err
	}
	c.model = model
	c.temperature = temperature
	c.maxTokens = maxTokens
	return c, nil
}

// ExtractEvents extracts structured event records from page markdown.
// Every non-empty field must carry an evidence snippet; the validator nulls
// anything without one.
func (o *OpenAIClient) ExtractEvents(ctx context.Context, content, sourceURL string) (*OpenAIExtractionResult, error) {
	start := time.Now()

	if content == "" {
		return nil, fmt.Errorf("content cannot be empty")
	}
	if len(content) < 200 {
		return nil, fmt.Errorf("content too short (%d chars) to extract meaningful events", len(content))
	}
	if len(content) > 60000 {
		content = content[:60000]
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: o.buildSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: o.buildUserPrompt(content, sourceURL),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices from OpenAI")
	}

	cleaned := o.cleanJSONResponse(resp.Choices[0].Message.Content)

	var parsed struct {
		Events []struct {
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
			Evidence  []struct {
				Field   string `json:"field"`
				Snippet string `json:"snippet"`
			} `json:"evidence"`
		} `json:"events"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse OpenAI response as JSON: %w", err)
	}

	result := &OpenAIExtractionResult{
		TokensUsed:   resp.Usage.TotalTokens,
		ProcessingMS: time.Since(start).Milliseconds(),
		SourceURL:    sourceURL,
	}

	for _, ev := range parsed.Events {
		if ev.Title == "" {
			continue
		}
		candidate := models.EventCandidate{
			SourceURL:   sourceURL,
			Title:       ev.Title,
			StartsAt:    ev.StartDate,
			EndsAt:      ev.EndDate,
			City:        ev.City,
			Country:     ev.Country,
			Venue:       ev.Venue,
			Organizer:   ev.Organizer,
			Topics:      ev.Topics,
			Speakers:    ev.Speakers,
			Sponsors:    ev.Sponsors,
			Strategy:    models.StepAIExtract,
			ExtractedAt: time.Now().UTC(),
		}
		for _, tag := range ev.Evidence {
			candidate.AddEvidence(tag.Field, "openai", tag.Snippet, 0.8)
		}
		result.Events = append(result.Events, candidate)
	}

	log.Printf("[EXTRACTION] OpenAI extracted %d events from %s in %dms (%d tokens)",
		len(result.Events), sourceURL, result.ProcessingMS, result.TokensUsed)
	return result, nil
}

func (o *OpenAIClient) buildSystemPrompt() string {
	return `You are a precise data-extraction engine for B2B industry events (conferences, summits, congresses, trade fairs).

Rules:
1. Extract ONLY events literally described in the page content. Never invent or infer.
2. Dates must be output as YYYY-MM-DD. If a date is not explicitly present, leave the field empty.
3. For every non-empty field, include an evidence entry {"field": "<fieldName>", "snippet": "<verbatim text from the page>"}.
4. Country should be an ISO2 code when the page names one unambiguously, else the country name as written.
5. Output raw JSON only, matching: {"events": [{"title", "startDate", "endDate", "city", "country", "venue", "organizer", "topics", "speakers", "sponsors", "evidence"}]}
6. If no events are present, output {"events": []}.`
}

func (o *OpenAIClient) buildUserPrompt(content, sourceURL string) string {
	return fmt.Sprintf("Source URL: %s\n\nPage content:\n%s", sourceURL, content)
}

// cleanJSONResponse strips markdown code fences the model sometimes wraps
// around its JSON output.
func (o *OpenAIClient) cleanJSONResponse(response string) string {
	cleaned := strings.TrimSpace(response)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
	}
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
	}
	if strings.HasSuffix(cleaned, "```") {
		cleaned = strings.TrimSuffix(cleaned, "```")
	}
	return strings.TrimSpace(cleaned)
}

// GetModel returns the configured model name.
func (o *OpenAIClient) GetModel() string {
	return o.model
}
