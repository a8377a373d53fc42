package services

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus counters exposed on /metrics.
var (
	promExtractionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "event_discovery_extractions_total",
		Help: "URL extractions by strategy and outcome.",
	}, []string{"strategy", "outcome"})

	promSearchStageTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "event_discovery_search_stage_total",
		Help: "Search orchestrator stage invocations by stage and outcome.",
	}, []string{"stage", "outcome"})

	promAdmissionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "event_discovery_admission_total",
		Help: "Admission filter decisions.",
	}, []string{"decision"})

	promExtractionSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "event_discovery_extraction_duration_seconds",
		Help:    "Wall time per URL extraction.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)

// PipelineMetrics aggregates in-process counters for logging and the lambda
// run summary; prometheus carries the same signals for scrape-based
// dashboards.
type PipelineMetrics struct {
	mu sync.Mutex

	extractionAttempts int
	extractionFailures int
	strategyHits       map[string]int
	confidenceSum      float64
	confidenceCount    int
	admitted           int
	dropped            int
}

var (
	metricsOnce     sync.Once
	metricsInstance *PipelineMetrics
)

// GetPipelineMetrics returns the process-wide metrics aggregate.
func GetPipelineMetrics() *PipelineMetrics {
	metricsOnce.Do(func() {
		metricsInstance = &PipelineMetrics{strategyHits: make(map[string]int)}
	})
	return metricsInstance
}

// RecordExtraction records one finished URL extraction.
func (m *PipelineMetrics) RecordExtraction(strategy string, success bool, confidence float64, took time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	promExtractionTotal.WithLabelValues(strategy, outcome).Inc()
	promExtractionSeconds.Observe(took.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.extractionAttempts++
	if !success {
		m.extractionFailures++
		return
	}
	m.strategyHits[strategy]++
	m.confidenceSum += confidence
	m.confidenceCount++
}

// RecordSearchStage records one orchestrator stage outcome.
func (m *PipelineMetrics) RecordSearchStage(stage string, err error, results int) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	} else if results == 0 {
		outcome = "empty"
	}
	promSearchStageTotal.WithLabelValues(stage, outcome).Inc()
}

// RecordAdmission records admitted/dropped counts for one run.
func (m *PipelineMetrics) RecordAdmission(admitted, dropped int) {
	promAdmissionTotal.WithLabelValues("admitted").Add(float64(admitted))
	promAdmissionTotal.WithLabelValues("dropped").Add(float64(dropped))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.admitted += admitted
	m.dropped += dropped
}

// Snapshot returns a copy of the aggregate counters.
func (m *PipelineMetrics) Snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	avgConfidence := 0.0
	if m.confidenceCount > 0 {
		avgConfidence = m.confidenceSum / float64(m.confidenceCount)
	}
	hits := make(map[string]int, len(m.strategyHits))
	for k, v := range m.strategyHits {
		hits[k] = v
	}
	return map[string]interface{}{
		"extraction_attempts": m.extractionAttempts,
		"extraction_failures": m.extractionFailures,
		"strategy_hits":       hits,
		"average_confidence":  avgConfidence,
		"admitted":            m.admitted,
		"dropped":             m.dropped,
	}
}

// LogSummary writes the aggregate counters to the log.
func (m *PipelineMetrics) LogSummary() {
	snap := m.Snapshot()
	log.Printf("[METRICS] attempts=%v failures=%v strategy_hits=%v avg_confidence=%.2f admitted=%v dropped=%v",
		snap["extraction_attempts"], snap["extraction_failures"], snap["strategy_hits"],
		snap["average_confidence"], snap["admitted"], snap["dropped"])
}
