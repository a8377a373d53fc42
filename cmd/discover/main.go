package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"industry-event-discovery/internal/config"
	"industry-event-discovery/internal/models"
	"industry-event-discovery/internal/pipeline"
	"industry-event-discovery/internal/services"
)

// discover runs one discovery pass from the command line and prints the
// admitted events as JSON. Useful for smoke-testing provider credentials
// and tuning the admission window without deploying anything.
func main() {
	var (
		query        = flag.String("query", "", "industry or topic to search for")
		country      = flag.String("country", "DE", "target country ISO2 code, or EU")
		dateFrom     = flag.String("from", "", "window start, YYYY-MM-DD (default: today)")
		dateTo       = flag.String("to", "", "window end, YYYY-MM-DD (default: +90 days)")
		userIntent   = flag.String("intent", "", "free-text description of what you are looking for")
		allowUndated = flag.Bool("allow-undated", false, "keep events with no parseable date")
		maxResults   = flag.Int("max", 25, "maximum events to return")
		configPath   = flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config")
		showTrace    = flag.Bool("trace", false, "print the per-URL extraction trace")
		timeout      = flag.Duration("timeout", 5*time.Minute, "overall run timeout")
	)
	flag.Parse()

	if *query == "" {
		fmt.Fprintln(os.Stderr, "usage: discover -query \"industrial automation\" -country DE [-from 2026-03-01 -to 2026-06-30]")
		os.Exit(2)
	}

	now := time.Now().UTC()
	if *dateFrom == "" {
		*dateFrom = now.Format("2006-01-02")
	}
	if *dateTo == "" {
		*dateTo = now.AddDate(0, 3, 0).Format("2006-01-02")
	}

	req := &models.RunRequest{
		Query:        *query,
		Country:      *country,
		DateFrom:     *dateFrom,
		DateTo:       *dateTo,
		UserIntent:   *userIntent,
		AllowUndated: *allowUndated,
		MaxResults:   *maxResults,
	}
	if verr := req.Validate(); verr != nil {
		log.Fatalf("[DISCOVER] Invalid request: %v", verr)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[DISCOVER] Config load failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	dedup := services.NewRequestDeduplicator()
	defer dedup.Stop()
	runner := buildRunner(ctx, cfg, dedup)

	resp, err := runner.Run(ctx, req, func(frame models.ProgressFrame) {
		log.Printf("[DISCOVER] Stage %s: %d results so far", frame.Stage, frame.TotalSoFar)
	})
	if err != nil {
		log.Fatalf("[DISCOVER] Run failed: %v", err)
	}

	out := struct {
		RequestID string                  `json:"requestId"`
		Events    []models.EventCandidate `json:"events"`
		Trace     []models.TraceEntry     `json:"trace,omitempty"`
		TookMS    int64                   `json:"tookMs"`
	}{
		RequestID: resp.RequestID,
		Events:    resp.Events,
		TookMS:    resp.TookMS,
	}
	if *showTrace {
		out.Trace = resp.Trace
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("[DISCOVER] Encode failed: %v", err)
	}
	services.GetPipelineMetrics().LogSummary()
}

func buildRunner(ctx context.Context, cfg *config.Config, dedup *services.RequestDeduplicator) *pipeline.Runner {
	var scraper pipeline.Scraper
	var jobs pipeline.ExtractJobClient
	var primary pipeline.ProviderSearcher
	if fc, err := services.NewFirecrawlClient(); err != nil {
		log.Printf("[DISCOVER] Firecrawl unavailable: %v", err)
	} else {
		fc.SetPolling(cfg.Extraction.PollTimeout, cfg.Extraction.PollInterval)
		scraper, jobs, primary = fc, fc, fc
	}

	var fallback pipeline.ProviderSearcher
	if cse, err := services.NewCSEClient(); err != nil {
		log.Printf("[DISCOVER] Google CSE unavailable: %v", err)
	} else {
		fallback = cse
	}

	var ai pipeline.AIExtractor
	if oc, err := services.NewOpenAIClient(); err != nil {
		log.Printf("[DISCOVER] OpenAI unavailable: %v", err)
	} else {
		ai = oc
	}

	var store *services.DynamoDBService
	var cache pipeline.CacheStore
	var db pipeline.DatabaseSearcher
	if ddb, err := services.NewDynamoDBServiceFromEnv(ctx, cfg.Extraction.CacheTTL); err != nil {
		log.Printf("[DISCOVER] DynamoDB unavailable: %v", err)
	} else {
		store, cache, db = ddb, ddb, ddb
	}

	extractor := pipeline.NewExtractor(cfg.Extraction, cache, scraper, jobs, ai, services.NewFetcher(), dedup)
	orchestrator := pipeline.NewOrchestrator(cfg, db, primary, fallback, dedup)
	admission := pipeline.NewAdmissionFilter(cfg.Admission)
	return pipeline.NewRunner(orchestrator, extractor, admission, store)
}
