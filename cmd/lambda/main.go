package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"industry-event-discovery/internal/config"
	"industry-event-discovery/internal/models"
	"industry-event-discovery/internal/pipeline"
	"industry-event-discovery/internal/services"
)

// DiscoveryEvent is the EventBridge trigger payload for a scheduled run.
type DiscoveryEvent struct {
	Source     string `json:"source"`
	DetailType string `json:"detail-type"`

	Query        string `json:"query"`
	Country      string `json:"country"`
	DateFrom     string `json:"date_from"`
	DateTo       string `json:"date_to"`
	UserIntent   string `json:"user_intent,omitempty"`
	AllowUndated bool   `json:"allow_undated,omitempty"`
}

func handler(ctx context.Context, event DiscoveryEvent) (*models.RunSummary, error) {
	started := time.Now()
	log.Printf("[LAMBDA] Discovery run triggered by %s: query=%q country=%s window=[%s, %s]",
		event.Source, event.Query, event.Country, event.DateFrom, event.DateTo)

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	req := &models.RunRequest{
		Query:        event.Query,
		Country:      event.Country,
		DateFrom:     event.DateFrom,
		DateTo:       event.DateTo,
		UserIntent:   event.UserIntent,
		AllowUndated: event.AllowUndated,
	}
	if applyWindowDefaults(req) {
		log.Printf("[LAMBDA] Date window defaulted to [%s, %s]", req.DateFrom, req.DateTo)
	}
	if verr := req.Validate(); verr != nil {
		return nil, fmt.Errorf("invalid trigger payload: %w", verr)
	}

	dedup := services.NewRequestDeduplicator()
	defer dedup.Stop()
	runner := buildRunner(ctx, cfg, dedup)

	resp, err := runner.Run(ctx, req, nil)
	if err != nil {
		return nil, fmt.Errorf("pipeline run: %w", err)
	}

	summary := &models.RunSummary{
		RunID:           resp.RequestID,
		Query:           req.Query,
		Country:         req.Country,
		TotalCandidates: len(resp.Events) + countExceptions(resp.Trace),
		AdmittedEvents:  len(resp.Events),
		ProcessingMS:    time.Since(started).Milliseconds(),
	}

	if s3Client, err := services.NewS3Client(); err != nil {
		log.Printf("[LAMBDA] S3 unavailable, skipping snapshot: %v", err)
		summary.Errors = append(summary.Errors, fmt.Sprintf("snapshot skipped: %v", err))
	} else {
		snapshot := &services.RunSnapshot{
			RunID:       resp.RequestID,
			Query:       req.Query,
			Country:     req.Country,
			DateFrom:    req.DateFrom,
			DateTo:      req.DateTo,
			GeneratedAt: time.Now().UTC(),
			TotalEvents: len(resp.Events),
			Events:      resp.Events,
		}
		uploads, err := s3Client.UploadRunSnapshot(ctx, snapshot)
		if err != nil {
			log.Printf("[LAMBDA] Snapshot upload failed: %v", err)
			summary.Errors = append(summary.Errors, fmt.Sprintf("snapshot upload: %v", err))
		} else {
			for _, u := range uploads {
				summary.UploadedFiles = append(summary.UploadedFiles, u.Key)
			}
		}
	}

	log.Printf("[LAMBDA] Run %s finished: %d events admitted in %dms",
		summary.RunID, summary.AdmittedEvents, summary.ProcessingMS)
	return summary, nil
}

// applyWindowDefaults widens an unset window to the next 90 days so a bare
// scheduled trigger still does useful work.
func applyWindowDefaults(req *models.RunRequest) bool {
	if req.DateFrom != "" && req.DateTo != "" {
		return false
	}
	now := time.Now().UTC()
	req.DateFrom = now.Format("2006-01-02")
	req.DateTo = now.AddDate(0, 3, 0).Format("2006-01-02")
	return true
}

func countExceptions(trace []models.TraceEntry) int {
	n := 0
	for _, t := range trace {
		if t.Step == models.StepException {
			n++
		}
	}
	return n
}

func buildRunner(ctx context.Context, cfg *config.Config, dedup *services.RequestDeduplicator) *pipeline.Runner {
	var scraper pipeline.Scraper
	var jobs pipeline.ExtractJobClient
	var primary pipeline.ProviderSearcher
	if fc, err := services.NewFirecrawlClient(); err != nil {
		log.Printf("[LAMBDA] Firecrawl unavailable: %v", err)
	} else {
		fc.SetPolling(cfg.Extraction.PollTimeout, cfg.Extraction.PollInterval)
		scraper, jobs, primary = fc, fc, fc
	}

	var fallback pipeline.ProviderSearcher
	if cse, err := services.NewCSEClient(); err != nil {
		log.Printf("[LAMBDA] Google CSE unavailable: %v", err)
	} else {
		fallback = cse
	}

	var ai pipeline.AIExtractor
	if oc, err := services.NewOpenAIClient(); err != nil {
		log.Printf("[LAMBDA] OpenAI unavailable: %v", err)
	} else {
		ai = oc
	}

	var store *services.DynamoDBService
	var cache pipeline.CacheStore
	var db pipeline.DatabaseSearcher
	if ddb, err := services.NewDynamoDBServiceFromEnv(ctx, cfg.Extraction.CacheTTL); err != nil {
		log.Printf("[LAMBDA] DynamoDB unavailable: %v", err)
	} else {
		store, cache, db = ddb, ddb, ddb
	}

	extractor := pipeline.NewExtractor(cfg.Extraction, cache, scraper, jobs, ai, services.NewFetcher(), dedup)
	orchestrator := pipeline.NewOrchestrator(cfg, db, primary, fallback, dedup)
	admission := pipeline.NewAdmissionFilter(cfg.Admission)
	return pipeline.NewRunner(orchestrator, extractor, admission, store)
}

func main() {
	lambda.Start(handler)
}
