package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"industry-event-discovery/internal/config"
	"industry-event-discovery/internal/models"
	"industry-event-discovery/internal/pipeline"
	"industry-event-discovery/internal/services"
)

func main() {
	log.Printf("[SERVER] Starting industry event discovery API")

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("[SERVER] Config load failed: %v", err)
	}

	runner, dedup := buildRunner(context.Background(), cfg)
	defer dedup.Stop()

	srv := &apiServer{runner: runner}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.RequestID)
	r.Post("/events/run", srv.handleRun)
	r.Post("/events/run-progressive", srv.handleRunProgressive)
	r.Get("/health", srv.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	addr := ":" + envOr("PORT", "8080")
	log.Printf("[SERVER] Listening on %s", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("[SERVER] %v", err)
	}
}

// buildRunner wires every collaborator the pipeline needs. Providers whose
// credentials are absent are skipped with a logged note; the cascade and
// the extraction chain both tolerate missing collaborators.
func buildRunner(ctx context.Context, cfg *config.Config) (*pipeline.Runner, *services.RequestDeduplicator) {
	dedup := services.NewRequestDeduplicator()

	var scraper pipeline.Scraper
	var jobs pipeline.ExtractJobClient
	var primary pipeline.ProviderSearcher
	if fc, err := services.NewFirecrawlClient(); err != nil {
		log.Printf("[SERVER] Firecrawl unavailable: %v", err)
	} else {
		fc.SetPolling(cfg.Extraction.PollTimeout, cfg.Extraction.PollInterval)
		scraper, jobs, primary = fc, fc, fc
	}

	var fallback pipeline.ProviderSearcher
	if cse, err := services.NewCSEClient(); err != nil {
		log.Printf("[SERVER] Google CSE unavailable: %v", err)
	} else {
		fallback = cse
	}

	var ai pipeline.AIExtractor
	if oc, err := services.NewOpenAIClient(); err != nil {
		log.Printf("[SERVER] OpenAI unavailable: %v", err)
	} else {
		ai = oc
	}

	var store *services.DynamoDBService
	var cache pipeline.CacheStore
	var db pipeline.DatabaseSearcher
	if ddb, err := services.NewDynamoDBServiceFromEnv(ctx, cfg.Extraction.CacheTTL); err != nil {
		log.Printf("[SERVER] DynamoDB unavailable: %v", err)
	} else {
		store, cache, db = ddb, ddb, ddb
	}

	extractor := pipeline.NewExtractor(cfg.Extraction, cache, scraper, jobs, ai, services.NewFetcher(), dedup)
	orchestrator := pipeline.NewOrchestrator(cfg, db, primary, fallback, dedup)
	admission := pipeline.NewAdmissionFilter(cfg.Admission)
	return pipeline.NewRunner(orchestrator, extractor, admission, store), dedup
}

type apiServer struct {
	runner *pipeline.Runner
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorResponse(code, message string) errorBody {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	return body
}

// handleRun is the synchronous entrypoint. Invalid requests get a 400 with
// a stable error code; downstream provider failures soft-fail into a 200
// whose body carries the error; a pipeline panic is converted into a
// response flagged crashed rather than a 500.
func (s *apiServer) handleRun(w http.ResponseWriter, r *http.Request) {
	req, verr := decodeRunRequest(r)
	if verr != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(verr.Code, verr.Message))
		return
	}

	resp := s.runSafely(r.Context(), req, nil)
	writeJSON(w, http.StatusOK, resp)
}

// handleRunProgressive streams one SSE frame per cascade stage, then a
// final complete frame. Validation failures are still a plain 400.
func (s *apiServer) handleRunProgressive(w http.ResponseWriter, r *http.Request) {
	req, verr := decodeRunRequest(r)
	if verr != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(verr.Code, verr.Message))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse("streaming_unsupported", "response writer does not support streaming"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	emit := func(frame models.ProgressFrame) {
		payload, err := json.Marshal(frame)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	resp := s.runSafely(r.Context(), req, emit)
	if resp.Error != "" || (resp.Debug != nil && resp.Debug.Crashed) {
		emit(models.ProgressFrame{Stage: models.StageError, Error: resp.Error, IsComplete: true})
	}
}

// runSafely contains pipeline panics so a bad page or provider response
// never takes the handler down.
func (s *apiServer) runSafely(ctx context.Context, req *models.RunRequest, onStage pipeline.StageCallback) (resp *models.RunResponse) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[SERVER] Pipeline panic: %v", rec)
			resp = &models.RunResponse{
				Events: []models.EventCandidate{},
				Error:  "internal pipeline failure",
				Debug:  &models.RunDebug{Crashed: true, Detail: fmt.Sprintf("%v", rec)},
			}
		}
	}()

	resp, err := s.runner.Run(ctx, req, onStage)
	if err != nil {
		resp = &models.RunResponse{
			Events: []models.EventCandidate{},
			Error:  err.Error(),
		}
	}
	return resp
}

func decodeRunRequest(r *http.Request) (*models.RunRequest, *models.ValidationError) {
	var req models.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, &models.ValidationError{Code: "invalid_json", Message: "request body is not valid JSON"}
	}
	if verr := req.Validate(); verr != nil {
		return nil, verr
	}
	return &req, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[SERVER] Response encode failed: %v", err)
	}
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
