package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request metrics
	activeRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "article_voice_active_requests",
		Help: "Number of narration requests in flight",
	})

	totalRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "article_voice_requests_total",
		Help: "Total number of narration requests by outcome",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "article_voice_request_duration_seconds",
		Help:    "End-to-end duration of narration requests in seconds",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
	})

	// Stage metrics
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "article_voice_stage_duration_seconds",
		Help:    "Duration of a single pipeline stage in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"stage"})

	stageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "article_voice_stage_errors_total",
		Help: "Total number of failed pipeline stages",
	}, []string{"stage"})

	// Output metrics
	chunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "article_voice_chunks_total",
		Help: "Total number of text chunks produced",
	})

	audioBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "article_voice_audio_bytes_total",
		Help: "Total synthesized audio bytes delivered",
	})

	// Shared browser metrics
	browserWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "article_voice_browser_wait_seconds",
		Help:    "Time spent waiting for the shared browser session",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60},
	})

	// Rewrite cache metrics
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "article_voice_rewrite_cache_lookups_total",
		Help: "Rewrite cache lookups by result",
	}, []string{"result"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "article_voice_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "article_voice_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// Metrics tracks metrics for a single narration request
type Metrics struct {
	requestID  string
	startTime  time.Time
	stageStart map[string]time.Time
	mu         sync.Mutex
}

// NewRequestMetrics creates a new metrics tracker for a request
func NewRequestMetrics(requestID string) *Metrics {
	return &Metrics{
		requestID:  requestID,
		startTime:  time.Now(),
		stageStart: make(map[string]time.Time),
	}
}

// RecordRequestStart records the start of a request
func (m *Metrics) RecordRequestStart() {
	activeRequests.Inc()
}

// RecordRequestEnd records the end of a request with its outcome
func (m *Metrics) RecordRequestEnd(status string) {
	activeRequests.Dec()
	totalRequests.WithLabelValues(status).Inc()
	requestDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordStageStart records the start of a stage
func (m *Metrics) RecordStageStart(stage string) {
	m.mu.Lock()
	m.stageStart[stage] = time.Now()
	m.mu.Unlock()
}

// RecordStageEnd records the end of a stage
func (m *Metrics) RecordStageEnd(stage string, success bool) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	var elapsed time.Duration
	if start, ok := m.stageStart[stage]; ok {
		elapsed = time.Since(start)
		stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
		delete(m.stageStart, stage)
	}

	if !success {
		stageErrors.WithLabelValues(stage).Inc()
	}
	return elapsed
}

// RecordChunks records the number of chunks produced for the request
func (m *Metrics) RecordChunks(n int) {
	chunksTotal.Add(float64(n))
}

// RecordAudioBytes records delivered audio bytes
func (m *Metrics) RecordAudioBytes(n int) {
	audioBytes.Add(float64(n))
}

// ObserveBrowserWait records how long a request waited for the browser session
func ObserveBrowserWait(d time.Duration) {
	browserWait.Observe(d.Seconds())
}

// RecordCacheLookup records a rewrite cache hit or miss
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(result).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
