package pipeline

import (
	"context"
	"log"
	"time"

	"industry-event-discovery/internal/config"
	"industry-event-discovery/internal/models"
	"industry-event-discovery/internal/services"
)

// DatabaseSearcher serves the first cascade stage from events already
// stored locally.
type DatabaseSearcher interface {
	SearchEvents(ctx context.Context, query, country, dateFrom, dateTo string, limit int32) ([]models.EventCandidate, error)
}

// ProviderSearcher is a web search provider returning candidate URLs.
type ProviderSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.SearchResultItem, error)
}

// StageCallback receives one frame after each cascade stage; nil means the
// caller does not want progressive delivery.
type StageCallback func(frame models.ProgressFrame)

// SearchOutcome is the cascade's product: admitted-for-extraction URLs in
// discovery order plus per-stage bookkeeping.
type SearchOutcome struct {
	URLs         []string
	DatabaseHits []models.EventCandidate
	StageCounts  map[string]int
	StageErrors  map[string]string
}

// Orchestrator runs the three-stage search cascade: local database first,
// then the primary web search provider across the built query set, then the
// fallback provider when results stay thin. A stage failing is logged and
// contributes zero results; it never aborts the cascade.
type Orchestrator struct {
	db       DatabaseSearcher
	primary  ProviderSearcher
	fallback ProviderSearcher
	queries  *QueryBuilder
	dedup    *services.RequestDeduplicator
	metrics  *services.PipelineMetrics

	// fallbackMinCount is the accumulated-result floor below which the next
	// stage is engaged.
	fallbackMinCount int
	perQueryLimit    int
}

// NewOrchestrator wires the cascade. db and either provider may be nil;
// absent stages are skipped with a logged note.
func NewOrchestrator(cfg *config.Config, db DatabaseSearcher, primary, fallback ProviderSearcher, dedup *services.RequestDeduplicator) *Orchestrator {
	minCount := cfg.Extraction.FallbackMinCount
	if minCount <= 0 {
		minCount = 5
	}
	return &Orchestrator{
		db:               db,
		primary:          primary,
		fallback:         fallback,
		queries:          NewQueryBuilder(cfg.Search),
		dedup:            dedup,
		metrics:          services.GetPipelineMetrics(),
		fallbackMinCount: minCount,
		perQueryLimit:    10,
	}
}

// Search runs the cascade for one validated request. The callback, when
// non-nil, fires after each stage in cascade order with the stage's freshly
// discovered items.
func (o *Orchestrator) Search(ctx context.Context, req *models.RunRequest, onStage StageCallback) *SearchOutcome {
	outcome := &SearchOutcome{
		StageCounts: make(map[string]int),
		StageErrors: make(map[string]string),
	}
	seenURLs := make(map[string]bool)

	// Stage 1: local database
	if o.db != nil {
		hits, err := o.db.SearchEvents(ctx, req.Query, req.Country, req.DateFrom, req.DateTo, 50)
		o.metrics.RecordSearchStage(models.StageDatabase, err, len(hits))
		if err != nil {
			log.Printf("[SEARCH] Database stage failed: %v", err)
			outcome.StageErrors[models.StageDatabase] = err.Error()
		} else {
			outcome.DatabaseHits = hits
			outcome.StageCounts[models.StageDatabase] = len(hits)
			for _, ev := range hits {
				seenURLs[models.NormalizeURL(ev.SourceURL)] = true
			}
			log.Printf("[SEARCH] Database stage returned %d stored events", len(hits))
		}
		o.emit(onStage, models.ProgressFrame{
			Stage:      models.StageDatabase,
			Events:     outcome.DatabaseHits,
			TotalSoFar: len(outcome.DatabaseHits),
		})
	}

	// Stage 2: primary provider over the query set
	if len(outcome.DatabaseHits)+len(outcome.URLs) < o.fallbackMinCount && o.primary != nil {
		added := o.runProviderStage(ctx, models.StageFirecrawl, o.primary, req, seenURLs, outcome)
		o.emit(onStage, models.ProgressFrame{
			Stage:      models.StageFirecrawl,
			TotalSoFar: len(outcome.DatabaseHits) + len(outcome.URLs),
			Message:    stageMessage(models.StageFirecrawl, added),
		})
	}

	// Stage 3: fallback provider, only while results stay thin
	if len(outcome.DatabaseHits)+len(outcome.URLs) < o.fallbackMinCount && o.fallback != nil {
		added := o.runProviderStage(ctx, models.StageCSE, o.fallback, req, seenURLs, outcome)
		o.emit(onStage, models.ProgressFrame{
			Stage:      models.StageCSE,
			TotalSoFar: len(outcome.DatabaseHits) + len(outcome.URLs),
			Message:    stageMessage(models.StageCSE, added),
		})
	}

	log.Printf("[SEARCH] Cascade complete: %d stored events, %d URLs to extract", len(outcome.DatabaseHits), len(outcome.URLs))
	return outcome
}

// runProviderStage executes every built query against one provider,
// accumulating unseen URLs. Provider calls are deduplicated so concurrent
// runs with the same query share one upstream request.
func (o *Orchestrator) runProviderStage(ctx context.Context, stage string, provider ProviderSearcher, req *models.RunRequest, seen map[string]bool, outcome *SearchOutcome) int {
	queries := o.queries.Build(req.Query, req.Country, req.UserIntent)
	added := 0
	var lastErr error
	for _, q := range queries {
		fp := services.Fingerprint(stage, "search", map[string]string{"q": q.Query})
		result, err := o.dedup.Do(fp, func() (interface{}, error) {
			return provider.Search(ctx, q.Query, o.perQueryLimit)
		})
		if err != nil {
			lastErr = err
			log.Printf("[SEARCH] %s query %q failed: %v", stage, q.Name, err)
			continue
		}
		items := result.([]models.SearchResultItem)
		for _, item := range items {
			key := models.NormalizeURL(item.URL)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			outcome.URLs = append(outcome.URLs, item.URL)
			added++
		}
		if ctx.Err() != nil {
			break
		}
	}
	outcome.StageCounts[stage] = added
	o.metrics.RecordSearchStage(stage, lastErr, added)
	if lastErr != nil && added == 0 {
		outcome.StageErrors[stage] = lastErr.Error()
	}
	log.Printf("[SEARCH] %s stage added %d URLs across %d queries", stage, added, len(queries))
	return added
}

func (o *Orchestrator) emit(onStage StageCallback, frame models.ProgressFrame) {
	if onStage == nil {
		return
	}
	onStage(frame)
}

func stageMessage(stage string, added int) string {
	if added == 0 {
		return stage + " stage found nothing new"
	}
	return stage + " stage queued URLs for extraction"
}

// Runner ties the cascade, the extraction engine, and the admission filter
// into one run. It is the unit both entrypoints (HTTP and lambda) invoke.
type Runner struct {
	orchestrator *Orchestrator
	extractor    *Extractor
	admission    *AdmissionFilter
	store        *services.DynamoDBService
	maxResults   int
}

// NewRunner assembles a full pipeline run. store may be nil; admitted
// events are then not persisted.
func NewRunner(orchestrator *Orchestrator, extractor *Extractor, admission *AdmissionFilter, store *services.DynamoDBService) *Runner {
	return &Runner{
		orchestrator: orchestrator,
		extractor:    extractor,
		admission:    admission,
		store:        store,
		maxResults:   25,
	}
}

// Run executes search, extraction, and admission for one request. The
// callback fires per cascade stage and once more with the final admitted
// set.
func (r *Runner) Run(ctx context.Context, req *models.RunRequest, onStage StageCallback) (*models.RunResponse, error) {
	started := time.Now()
	requestID := models.GenerateRunID(started)

	outcome := r.orchestrator.Search(ctx, req, onStage)

	events := outcome.DatabaseHits
	var trace []models.TraceEntry
	if len(outcome.URLs) > 0 {
		extracted, err := r.extractor.Extract(ctx, outcome.URLs, ExtractOptions{Locale: req.Country})
		if err != nil {
			log.Printf("[EXTRACTION] Engine error: %v", err)
		} else {
			events = append(events, extracted.Events...)
			trace = extracted.Trace
		}
	}

	admitted := r.admission.Filter(events, req)
	if req.MaxResults > 0 && len(admitted) > req.MaxResults {
		admitted = admitted[:req.MaxResults]
	} else if req.MaxResults == 0 && len(admitted) > r.maxResults {
		admitted = admitted[:r.maxResults]
	}

	if r.store != nil && len(admitted) > 0 {
		if err := r.store.SaveEvents(ctx, admitted); err != nil {
			log.Printf("[SEARCH] Persisting admitted events failed: %v", err)
		}
	}

	resp := &models.RunResponse{
		RequestID:  requestID,
		Events:     admitted,
		Trace:      trace,
		TotalFound: len(admitted),
		TookMS:     time.Since(started).Milliseconds(),
	}
	if onStage != nil {
		onStage(models.ProgressFrame{
			Stage:      models.StageComplete,
			Events:     admitted,
			TotalSoFar: len(admitted),
			IsComplete: true,
		})
	}
	log.Printf("[SEARCH] Run %s complete: %d admitted of %d candidates in %dms",
		requestID, len(admitted), len(events), resp.TookMS)
	return resp, nil
}
