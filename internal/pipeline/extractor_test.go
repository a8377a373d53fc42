package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"industry-event-discovery/internal/config"
	"industry-event-discovery/internal/models"
	"industry-event-discovery/internal/services"
)

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*models.CacheEntry
	puts    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*models.CacheEntry)}
}

func (f *fakeCache) GetCachedExtraction(ctx context.Context, urlNormalized string) (*models.CacheEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[urlNormalized], nil
}

func (f *fakeCache) PutCachedExtraction(ctx context.Context, entry *models.CacheEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[entry.URLNormalized] = entry
	f.puts++
	return nil
}

type fakeScraper struct {
	mu    sync.Mutex
	pages map[string]string // url -> html
	calls int
}

func (f *fakeScraper) Scrape(url string) (string, string, error) {
	f.mu.Lock()
	f.calls++
	page, ok := f.pages[url]
	f.mu.Unlock()
	if !ok {
		return "", "", fmt.Errorf("connection refused")
	}
	return "scraped markdown", page, nil
}

type fakeJobs struct {
	mu        sync.Mutex
	payloads  []services.ExtractedEventPayload
	submitted [][]string
}

func (f *fakeJobs) SubmitExtractJob(ctx context.Context, urls []string) (*services.ExtractJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, urls)
	return &services.ExtractJob{ID: fmt.Sprintf("job-%d", len(f.submitted))}, nil
}

func (f *fakeJobs) PollExtractJob(ctx context.Context, job *services.ExtractJob) (*services.ExtractJobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &services.ExtractJobStatus{
		Status: services.JobStateCompleted,
		Data:   services.ExtractJobData{Events: f.payloads},
	}, nil
}

func testExtractionConfig() config.Extraction {
	cfg := config.Default().Extraction
	cfg.PerHostGap = 0 // no throttling in tests
	return cfg
}

func jobPayload(url, title string) services.ExtractedEventPayload {
	p := services.ExtractedEventPayload{
		SourceURL: url,
		Title:     title,
		StartDate: "2026-03-14",
		City:      "Berlin",
		Country:   "DE",
	}
	p.Evidence = append(p.Evidence, struct {
		Field         string `json:"field"`
		SourceSection string `json:"sourceSection"`
		Snippet       string `json:"snippet"`
	}{Field: "startsAt", SourceSection: "body", Snippet: "March 14, 2026"})
	p.Evidence = append(p.Evidence, struct {
		Field         string `json:"field"`
		SourceSection string `json:"sourceSection"`
		Snippet       string `json:"snippet"`
	}{Field: "city", SourceSection: "body", Snippet: "in Berlin"})
	p.Evidence = append(p.Evidence, struct {
		Field         string `json:"field"`
		SourceSection string `json:"sourceSection"`
		Snippet       string `json:"snippet"`
	}{Field: "country", SourceSection: "body", Snippet: "Germany"})
	return p
}

func TestExtractEmptyInput(t *testing.T) {
	dedup := services.NewRequestDeduplicator()
	defer dedup.Stop()
	e := NewExtractor(testExtractionConfig(), nil, nil, nil, nil, nil, dedup)

	if _, err := e.Extract(context.Background(), nil, ExtractOptions{}); err == nil {
		t.Error("Empty URL list must error")
	}
}

func TestExtractJSONLDPage(t *testing.T) {
	dedup := services.NewRequestDeduplicator()
	defer dedup.Stop()
	cache := newFakeCache()
	scraper := &fakeScraper{pages: map[string]string{
		"https://example.de/summit": eventPageHTML,
	}}
	e := NewExtractor(testExtractionConfig(), cache, scraper, nil, nil, nil, dedup)

	result, err := e.Extract(context.Background(), []string{"https://example.de/summit"}, ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(result.Events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(result.Events))
	}
	ev := result.Events[0]
	if ev.Strategy != models.StepJSONLD {
		t.Errorf("Strategy = %q, expected jsonld", ev.Strategy)
	}
	if ev.City != "Berlin" || ev.StartsAt != "2026-03-14" {
		t.Errorf("Unexpected fields: city=%q startsAt=%q", ev.City, ev.StartsAt)
	}

	if len(result.Trace) == 0 || result.Trace[0].Step != models.StepJSONLD {
		t.Fatalf("Expected first trace step jsonld, got %+v", result.Trace)
	}
	if !result.Trace[0].Rich {
		t.Error("jsonld trace entry should be rich")
	}
	if cache.puts != 1 {
		t.Errorf("Expected 1 cache upsert, got %d", cache.puts)
	}
}

func TestExtractCacheShortCircuits(t *testing.T) {
	dedup := services.NewRequestDeduplicator()
	defer dedup.Stop()
	cache := newFakeCache()

	cached := models.EventCandidate{
		SourceURL:  "https://example.de/summit",
		Title:      "Cached Summit",
		StartsAt:   "2026-03-14",
		City:       "Berlin",
		Confidence: 0.8,
	}
	cache.entries[models.NormalizeURL(cached.SourceURL)] = &models.CacheEntry{
		URLNormalized: models.NormalizeURL(cached.SourceURL),
		Payload:       cached,
		Confidence:    cached.Confidence,
		SchemaVersion: models.CurrentSchemaVersion,
		StoredAt:      time.Now(),
	}

	scraper := &fakeScraper{pages: map[string]string{}}
	e := NewExtractor(testExtractionConfig(), cache, scraper, nil, nil, nil, dedup)

	result, err := e.Extract(context.Background(), []string{"https://example.de/summit"}, ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(result.Events) != 1 || result.Events[0].Title != "Cached Summit" {
		t.Fatalf("Expected the cached event, got %+v", result.Events)
	}
	if result.Events[0].Strategy != models.StepCache {
		t.Errorf("Strategy = %q, expected cache", result.Events[0].Strategy)
	}
	if result.Trace[0].Step != models.StepCache {
		t.Errorf("Trace step = %q, expected cache", result.Trace[0].Step)
	}
	if scraper.calls != 0 {
		t.Errorf("Cache hit must not scrape, got %d calls", scraper.calls)
	}
}

func TestExtractUnreachableHostYieldsStub(t *testing.T) {
	dedup := services.NewRequestDeduplicator()
	defer dedup.Stop()
	scraper := &fakeScraper{pages: map[string]string{}} // every scrape fails
	e := NewExtractor(testExtractionConfig(), nil, scraper, nil, nil, nil, dedup)

	result, err := e.Extract(context.Background(), []string{"https://unreachable-messe.de/expo"}, ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(result.Events) != 1 {
		t.Fatalf("Expected exactly one stub event, got %d", len(result.Events))
	}
	ev := result.Events[0]
	if ev.Strategy != models.StepStub {
		t.Errorf("Strategy = %q, expected stub", ev.Strategy)
	}
	if ev.Country != "DE" {
		t.Errorf("Stub must guess country DE from the TLD, got %q", ev.Country)
	}
	if !ev.HasEvidenceFor("country") {
		t.Error("TLD country guess must carry an evidence tag")
	}

	last := result.Trace[len(result.Trace)-1]
	if last.Step != models.StepStub {
		t.Errorf("Last trace step = %q, expected stub", last.Step)
	}
}

func TestExtractBatchWithIndividualFallback(t *testing.T) {
	dedup := services.NewRequestDeduplicator()
	defer dedup.Stop()
	cache := newFakeCache()

	var urls []string
	jobs := &fakeJobs{}
	scraper := &fakeScraper{pages: map[string]string{}}
	for i := 0; i < 12; i++ {
		u := fmt.Sprintf("https://site-%d.com/event", i)
		urls = append(urls, u)
		jobs.payloads = append(jobs.payloads, jobPayload(u, fmt.Sprintf("Batch Conference %d", i)))
	}
	// three URLs the batch job will not cover; served by jsonld instead
	for i := 0; i < 3; i++ {
		u := fmt.Sprintf("https://leftover-%d.de/summit", i)
		urls = append(urls, u)
		scraper.pages[u] = strings.Replace(eventPageHTML,
			"Compliance Summit Europe 2026",
			fmt.Sprintf("Leftover Summit %d", i), 1)
	}

	e := NewExtractor(testExtractionConfig(), cache, scraper, jobs, nil, nil, dedup)

	result, err := e.Extract(context.Background(), urls, ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(result.Events) != 15 {
		t.Fatalf("Expected 15 events (12 batch + 3 individual), got %d", len(result.Events))
	}

	seen := make(map[string]bool)
	for _, ev := range result.Events {
		key := models.CanonicalKey(ev.SourceURL, ev.Title)
		if seen[key] {
			t.Errorf("Duplicate event in merged output: %s", key)
		}
		seen[key] = true
	}

	// the batch submit must cover all 15 uncached URLs in one call
	if len(jobs.submitted) == 0 {
		t.Fatal("Expected a batch extract job")
	}
	if len(jobs.submitted[0]) != 15 {
		t.Errorf("Batch job should carry all 15 URLs, got %d", len(jobs.submitted[0]))
	}
}

func TestExtractBelowBatchThresholdSkipsJob(t *testing.T) {
	dedup := services.NewRequestDeduplicator()
	defer dedup.Stop()
	jobs := &fakeJobs{}
	scraper := &fakeScraper{pages: map[string]string{
		"https://example.de/one": eventPageHTML,
	}}
	e := NewExtractor(testExtractionConfig(), nil, scraper, jobs, nil, nil, dedup)

	_, err := e.Extract(context.Background(), []string{"https://example.de/one"}, ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	for _, call := range jobs.submitted {
		if len(call) > 1 {
			t.Errorf("Single-URL run must not submit a batch job, got %d URLs", len(call))
		}
	}
}

func TestExtractDeduplicatesInputURLs(t *testing.T) {
	dedup := services.NewRequestDeduplicator()
	defer dedup.Stop()
	scraper := &fakeScraper{pages: map[string]string{
		"https://example.de/summit": eventPageHTML,
	}}
	e := NewExtractor(testExtractionConfig(), nil, scraper, nil, nil, nil, dedup)

	result, err := e.Extract(context.Background(), []string{
		"https://example.de/summit",
		"https://www.example.de/summit/",
		"https://example.de/summit?utm_source=mail",
	}, ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(result.Events) != 1 {
		t.Errorf("URL variants must collapse to one extraction, got %d events", len(result.Events))
	}
}

func TestGateAndRank(t *testing.T) {
	dedup := services.NewRequestDeduplicator()
	defer dedup.Stop()
	e := NewExtractor(testExtractionConfig(), nil, nil, nil, nil, nil, dedup)

	events := []models.EventCandidate{
		{SourceURL: "https://a.com/1", Title: "Low Confidence Expo", Confidence: 0.2, StartsAt: "2026-03-01"},
		{SourceURL: "https://a.com/2", Title: "Event", Confidence: 0.9},
		{SourceURL: "https://a.com/3", Title: "Solid Summit", Confidence: 0.6},
		{SourceURL: "https://a.com/4", Title: "Dated Forum", Confidence: 0.6, StartsAt: "2026-03-01"},
		{SourceURL: "https://a.com/5", Title: "Top Congress", Confidence: 0.8, StartsAt: "2026-04-01"},
	}

	kept := e.gateAndRank(events)
	if len(kept) != 3 {
		t.Fatalf("Expected 3 survivors, got %d", len(kept))
	}
	if kept[0].Title != "Top Congress" {
		t.Errorf("Expected highest confidence first, got %q", kept[0].Title)
	}
	// equal confidence: dated before undated
	if kept[1].Title != "Dated Forum" || kept[2].Title != "Solid Summit" {
		t.Errorf("Tie-break by start date failed: %q then %q", kept[1].Title, kept[2].Title)
	}
}

func TestExtractPanicContained(t *testing.T) {
	dedup := services.NewRequestDeduplicator()
	defer dedup.Stop()
	e := NewExtractor(testExtractionConfig(), panicCache{}, nil, nil, nil, nil, dedup)

	result, err := e.Extract(context.Background(), []string{"https://panic.de/event"}, ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract must not propagate panics as errors: %v", err)
	}

	var sawException bool
	for _, entry := range result.Trace {
		if entry.Step == models.StepException {
			sawException = true
		}
	}
	if !sawException {
		t.Error("Expected an exception trace entry")
	}
	// the run still yields a stub for the URL
	if len(result.Events) != 1 || result.Events[0].Strategy != models.StepStub {
		t.Errorf("Expected a stub after panic, got %+v", result.Events)
	}
}

type panicCache struct{}

func (panicCache) GetCachedExtraction(ctx context.Context, urlNormalized string) (*models.CacheEntry, error) {
	panic("cache table misconfigured")
}

func (panicCache) PutCachedExtraction(ctx context.Context, entry *models.CacheEntry) error {
	panic("cache table misconfigured")
}
