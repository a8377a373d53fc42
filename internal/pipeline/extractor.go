package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"industry-event-discovery/internal/config"
	"industry-event-discovery/internal/models"
	"industry-event-discovery/internal/services"
)

// CacheStore is the durable URL-extraction cache the engine reads before
// every extraction and upserts after every attempt, stubs included.
type CacheStore interface {
	GetCachedExtraction(ctx context.Context, urlNormalized string) (*models.CacheEntry, error)
	PutCachedExtraction(ctx context.Context, entry *models.CacheEntry) error
}

// Scraper fetches one page as markdown plus raw HTML.
type Scraper interface {
	Scrape(url string) (markdown, html string, err error)
}

// ExtractJobClient is the asynchronous schema-extraction provider.
type ExtractJobClient interface {
	SubmitExtractJob(ctx context.Context, urls []string) (*services.ExtractJob, error)
	PollExtractJob(ctx context.Context, job *services.ExtractJob) (*services.ExtractJobStatus, error)
}

// AIExtractor extracts candidates from already-scraped markdown; used when
// the extract job fails but a scrape succeeded.
type AIExtractor interface {
	ExtractEvents(ctx context.Context, content, sourceURL string) (*services.OpenAIExtractionResult, error)
}

// PageFetcher is the raw-HTML fallback when the scraping provider is down.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*services.FetchResult, error)
}

// ExtractOptions tune one extraction batch.
type ExtractOptions struct {
	Locale    string
	SkipCache bool
}

// ExtractResult is the engine's public output: shaped candidates plus the
// per-URL diagnostic trace.
type ExtractResult struct {
	Events []models.EventCandidate `json:"events"`
	Trace  []models.TraceEntry     `json:"trace"`
}

// Extractor runs the per-URL fallback chain (cache -> jsonld -> aiExtract ->
// regex -> stub) under a bounded-concurrency, per-host-throttled scheduler.
// It never returns an error to the caller except for an empty input list;
// every URL yields a candidate or a logged trace entry.
type Extractor struct {
	cache    CacheStore
	scraper  Scraper
	jobs     ExtractJobClient
	ai       AIExtractor
	fetcher  PageFetcher
	dedup    *services.RequestDeduplicator
	metrics  *services.PipelineMetrics
	cfg      config.Extraction
	validate func(models.EventCandidate) models.EventCandidate

	hostMu       sync.Mutex
	lastDispatch map[string]time.Time

	// now is injectable for deterministic tests.
	now func() time.Time
}

// NewExtractor wires the engine. cache, jobs, ai, and scraper may each be
// nil; the chain skips tiers whose collaborator is missing.
func NewExtractor(cfg config.Extraction, cache CacheStore, scraper Scraper, jobs ExtractJobClient, ai AIExtractor, fetcher PageFetcher, dedup *services.RequestDeduplicator) *Extractor {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 12
	}
	if cfg.BatchThreshold <= 0 {
		cfg.BatchThreshold = 10
	}
	e := &Extractor{
		cache:        cache,
		scraper:      scraper,
		jobs:         jobs,
		ai:           ai,
		fetcher:      fetcher,
		dedup:        dedup,
		metrics:      services.GetPipelineMetrics(),
		cfg:          cfg,
		lastDispatch: make(map[string]time.Time),
		now:          func() time.Time { return time.Now().UTC() },
	}
	e.validate = func(c models.EventCandidate) models.EventCandidate {
		return NewValidator(e.now()).Validate(c)
	}
	return e
}

// Extract runs the fallback chain for a batch of URLs. For batches at or
// above the batch threshold a single provider extract job is attempted
// first; whatever it does not resolve falls back to the individual path.
func (e *Extractor) Extract(ctx context.Context, urls []string, opts ExtractOptions) (*ExtractResult, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("no URLs to extract")
	}

	// de-duplicate input by canonical URL; order preserved
	seen := make(map[string]bool, len(urls))
	var unique []string
	for _, u := range urls {
		key := models.NormalizeURL(u)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, u)
	}

	result := &ExtractResult{}
	var mu sync.Mutex

	remaining := unique
	if len(unique) >= e.cfg.BatchThreshold && e.jobs != nil {
		resolved, batchTrace := e.extractBatch(ctx, unique, opts)
		mu.Lock()
		result.Trace = append(result.Trace, batchTrace...)
		var leftover []string
		for _, u := range unique {
			if candidate, ok := resolved[models.NormalizeURL(u)]; ok {
				result.Events = append(result.Events, candidate)
			} else {
				leftover = append(leftover, u)
			}
		}
		mu.Unlock()
		remaining = leftover
		log.Printf("[EXTRACTION] Batch resolved %d/%d URLs; %d fall back to individual extraction",
			len(resolved), len(unique), len(remaining))
	}

	sem := make(chan struct{}, e.cfg.MaxConcurrency)
	var wg sync.WaitGroup
	for _, u := range remaining {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			candidate, trace := e.extractOne(ctx, url, opts)
			mu.Lock()
			defer mu.Unlock()
			result.Trace = append(result.Trace, trace...)
			if candidate != nil {
				result.Events = append(result.Events, *candidate)
			}
		}(u)
	}
	wg.Wait()

	result.Events = e.gateAndRank(result.Events)
	return result, nil
}

// extractBatch submits one extract job covering every URL and maps whatever
// came back by canonical URL. Partial coverage is expected; the caller
// retries the remainder individually.
func (e *Extractor) extractBatch(ctx context.Context, urls []string, opts ExtractOptions) (map[string]models.EventCandidate, []models.TraceEntry) {
	resolved := make(map[string]models.EventCandidate)
	var trace []models.TraceEntry

	// cached URLs never go into the batch job
	var uncached []string
	for _, u := range urls {
		if candidate, hit := e.cacheLookup(ctx, u, opts); hit {
			resolved[models.NormalizeURL(u)] = *candidate
			trace = append(trace, models.TraceEntry{URL: u, Step: models.StepCache, Rich: candidate.IsRich()})
			continue
		}
		uncached = append(uncached, u)
	}
	if len(uncached) == 0 {
		return resolved, trace
	}

	job, err := e.jobs.SubmitExtractJob(ctx, uncached)
	if err != nil {
		log.Printf("[EXTRACTION] Batch submit failed, falling back to individual path: %v", err)
		return resolved, trace
	}
	status, err := e.jobs.PollExtractJob(ctx, job)
	if err != nil || status.Status != services.JobStateCompleted {
		state := "error"
		if status != nil {
			state = status.Status
		}
		log.Printf("[EXTRACTION] Batch job %s ended %s, falling back to individual path", job.ID, state)
		return resolved, trace
	}

	start := e.now()
	for _, payload := range status.Data.Events {
		shaped := CandidateFromExtractPayload(payload, "").Shape(payload.SourceURL, start)
		if shaped.SourceURL == "" {
			continue
		}
		validated := e.validate(shaped)
		key := models.NormalizeURL(validated.SourceURL)
		if _, dup := resolved[key]; dup {
			continue
		}
		resolved[key] = validated
		e.cachePut(ctx, validated)
		trace = append(trace, models.TraceEntry{URL: validated.SourceURL, Step: models.StepAIExtract, Rich: validated.IsRich(), Note: "batch"})
		e.metrics.RecordExtraction(models.StepAIExtract, true, validated.Confidence, time.Since(start))
	}
	return resolved, trace
}

// extractOne walks the fallback chain for a single URL. Steps are strictly
// sequential; each runs only when the previous one did not yield a rich
// result. Panics are contained and converted into a stub so the engine's
// contract holds.
func (e *Extractor) extractOne(ctx context.Context, url string, opts ExtractOptions) (candidate *models.EventCandidate, trace []models.TraceEntry) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[EXTRACTION] Panic extracting %s: %v", url, r)
			trace = append(trace, models.TraceEntry{URL: url, Step: models.StepException, Note: fmt.Sprintf("%v", r)})
			stub := e.validate(NewStub(url, stubTitleFor(url)).Shape(url, e.now()))
			candidate = &stub
			trace = append(trace, models.TraceEntry{URL: url, Step: models.StepStub, Rich: stub.IsRich()})
		}
	}()

	// 1. durable cache
	if cached, hit := e.cacheLookup(ctx, url, opts); hit {
		trace = append(trace, models.TraceEntry{URL: url, Step: models.StepCache, Rich: cached.IsRich()})
		e.metrics.RecordExtraction(models.StepCache, true, cached.Confidence, time.Since(start))
		return cached, trace
	}

	e.throttleHost(url)

	markdown, pageHTML, fetchNote := e.fetchContent(ctx, url)

	// 2. structured markup
	if ld := ParseJSONLD(pageHTML); ld != nil {
		shaped := e.validate(ld.Shape(url, e.now()))
		rich := shaped.IsRich()
		trace = append(trace, models.TraceEntry{URL: url, Step: models.StepJSONLD, Rich: rich})
		if rich {
			e.cachePut(ctx, shaped)
			e.metrics.RecordExtraction(models.StepJSONLD, true, shaped.Confidence, time.Since(start))
			return &shaped, trace
		}
	}

	// 3. AI schema extraction: provider job first, then OpenAI over the
	// scraped markdown when the job failed or timed out
	if aiResult := e.aiExtract(ctx, url, markdown); aiResult != nil {
		shaped := e.validate(aiResult.Shape(url, e.now()))
		rich := shaped.IsRich()
		trace = append(trace, models.TraceEntry{URL: url, Step: models.StepAIExtract, Rich: rich})
		if rich {
			e.cachePut(ctx, shaped)
			e.metrics.RecordExtraction(models.StepAIExtract, true, shaped.Confidence, time.Since(start))
			return &shaped, trace
		}
	}

	// 4. regex heuristics over whatever content we have
	content := pageHTML
	if content == "" {
		content = markdown
	}
	if rx := ParseRegex(content, e.now()); rx != nil {
		shaped := e.validate(rx.Shape(url, e.now()))
		trace = append(trace, models.TraceEntry{URL: url, Step: models.StepRegex, Rich: shaped.IsRich()})
		if shaped.Title != "" || shaped.City != "" || shaped.Country != "" {
			e.cachePut(ctx, shaped)
			e.metrics.RecordExtraction(models.StepRegex, true, shaped.Confidence, time.Since(start))
			return &shaped, trace
		}
	}

	// 5. stub: geography from the TLD, so the contract "never empty-handed"
	// holds even for unreachable hosts
	stub := e.validate(NewStub(url, stubTitleFor(url)).Shape(url, e.now()))
	trace = append(trace, models.TraceEntry{URL: url, Step: models.StepStub, Rich: stub.IsRich(), Note: fetchNote})
	e.cachePut(ctx, stub)
	e.metrics.RecordExtraction(models.StepStub, true, stub.Confidence, time.Since(start))
	return &stub, trace
}

// fetchContent gets page markdown/HTML: scraping provider first (shared
// through the request deduplicator), raw fetch as fallback. Both failing is
// not an error; later tiers cope with empty content.
func (e *Extractor) fetchContent(ctx context.Context, url string) (markdown, pageHTML, note string) {
	if e.scraper != nil {
		fp := services.Fingerprint("firecrawl", "scrape", map[string]string{"url": models.NormalizeURL(url)})
		type scraped struct{ md, html string }
		result, err := e.dedup.Do(fp, func() (interface{}, error) {
			md, html, err := e.scraper.Scrape(url)
			return scraped{md, html}, err
		})
		if err == nil {
			s := result.(scraped)
			return s.md, s.html, ""
		}
		note = "scrape failed"
		log.Printf("[EXTRACTION] Scrape failed for %s: %v", url, err)
	}
	if e.fetcher != nil {
		if fetched, err := e.fetcher.Fetch(ctx, url); err == nil {
			return "", fetched.Body, note
		} else {
			if note != "" {
				note += "; "
			}
			note += "fetch failed"
			log.Printf("[EXTRACTION] Fetch failed for %s: %v", url, err)
		}
	}
	return "", "", note
}

// aiExtract runs the AI tier for one URL.
func (e *Extractor) aiExtract(ctx context.Context, url, markdown string) *AIExtractResult {
	if e.jobs != nil {
		job, err := e.jobs.SubmitExtractJob(ctx, []string{url})
		if err == nil {
			status, err := e.jobs.PollExtractJob(ctx, job)
			if err == nil && status.Status == services.JobStateCompleted && len(status.Data.Events) > 0 {
				return CandidateFromExtractPayload(status.Data.Events[0], url)
			}
		} else {
			log.Printf("[EXTRACTION] Extract job submit failed for %s: %v", url, err)
		}
	}
	if e.ai != nil && markdown != "" {
		result, err := e.ai.ExtractEvents(ctx, markdown, url)
		if err != nil {
			log.Printf("[EXTRACTION] OpenAI extraction failed for %s: %v", url, err)
			return nil
		}
		if len(result.Events) > 0 {
			return &AIExtractResult{Candidate: result.Events[0]}
		}
	}
	return nil
}

// cacheLookup reads the durable cache unless skipped; miss and error look
// the same to the chain.
func (e *Extractor) cacheLookup(ctx context.Context, url string, opts ExtractOptions) (*models.EventCandidate, bool) {
	if e.cache == nil || opts.SkipCache {
		return nil, false
	}
	entry, err := e.cache.GetCachedExtraction(ctx, models.NormalizeURL(url))
	if err != nil {
		log.Printf("[CACHE] Lookup failed for %s: %v", url, err)
		return nil, false
	}
	if entry == nil {
		return nil, false
	}
	candidate := entry.Payload
	candidate.Strategy = models.StepCache
	return &candidate, true
}

// cachePut upserts one shaped candidate; failures only log.
func (e *Extractor) cachePut(ctx context.Context, candidate models.EventCandidate) {
	if e.cache == nil {
		return
	}
	entry := &models.CacheEntry{
		URLNormalized: models.NormalizeURL(candidate.SourceURL),
		Payload:       candidate,
		Confidence:    candidate.Confidence,
		SchemaVersion: models.CurrentSchemaVersion,
		StoredAt:      e.now(),
	}
	if err := e.cache.PutCachedExtraction(ctx, entry); err != nil {
		log.Printf("[CACHE] Upsert failed for %s: %v", candidate.SourceURL, err)
	}
}

// stubTitleFor names a stub after its host so the candidate is still
// distinguishable in result lists.
func stubTitleFor(url string) string {
	if host := models.HostOf(url); host != "" {
		return "Event from " + host
	}
	return ""
}

// throttleHost enforces the per-host minimum gap between dispatches,
// independent of global concurrency.
func (e *Extractor) throttleHost(url string) {
	host := models.HostOf(url)
	if host == "" || e.cfg.PerHostGap <= 0 {
		return
	}
	for {
		e.hostMu.Lock()
		last, ok := e.lastDispatch[host]
		wait := time.Duration(0)
		if ok {
			if elapsed := time.Since(last); elapsed < e.cfg.PerHostGap {
				wait = e.cfg.PerHostGap - elapsed
			}
		}
		if wait == 0 {
			e.lastDispatch[host] = time.Now()
			e.hostMu.Unlock()
			return
		}
		e.hostMu.Unlock()
		time.Sleep(wait)
	}
}

// gateAndRank applies the quality gate (minimum confidence, generic-title
// drop), deduplicates by canonical key, and orders survivors by confidence
// then presence of a start date.
func (e *Extractor) gateAndRank(events []models.EventCandidate) []models.EventCandidate {
	seen := make(map[string]bool, len(events))
	var kept []models.EventCandidate
	for _, ev := range events {
		if ev.Confidence < e.cfg.MinConfidence {
			log.Printf("[EXTRACTION] Dropping %q (confidence %.2f below %.2f)", ev.Title, ev.Confidence, e.cfg.MinConfidence)
			continue
		}
		if IsGenericTitle(ev.Title) {
			log.Printf("[EXTRACTION] Dropping generic title %q from %s", ev.Title, ev.SourceURL)
			continue
		}
		key := models.CanonicalKey(ev.SourceURL, ev.Title)
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, ev)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Confidence != kept[j].Confidence {
			return kept[i].Confidence > kept[j].Confidence
		}
		return kept[i].StartsAt != "" && kept[j].StartsAt == ""
	})
	return kept
}
