package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for decode, detection, generation
// and pipeline runs. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Decode metrics
	DecodeTotal       *prometheus.CounterVec
	DecodeSkippedCues *prometheus.CounterVec

	// Detection metrics
	SectionsDetected     *prometheus.HistogramVec
	DroppedEntriesTotal  prometheus.Counter
	FallbackSlicingTotal prometheus.Counter

	// Generation metrics
	GenerationCallsTotal   *prometheus.CounterVec
	GenerationSeconds      *prometheus.HistogramVec
	GenerationCacheTotal   *prometheus.CounterVec
	ChunkPlaceholdersTotal *prometheus.CounterVec

	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineSeconds   prometheus.Histogram
}

// DefaultMetrics registers metrics with the default Prometheus registry.
func DefaultMetrics() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}

// NewMetrics creates and registers the studynotes metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		DecodeTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studynotes_decode_total",
				Help: "Caption payloads decoded, by wire format and outcome",
			},
			[]string{"format", "status"},
		),
		DecodeSkippedCues: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studynotes_decode_skipped_cues_total",
				Help: "Cues skipped for bad timing or missing text",
			},
			[]string{"format"},
		),

		SectionsDetected: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "studynotes_sections_detected",
				Help:    "Sections produced per transcript",
				Buckets: []float64{1, 2, 3, 4, 5, 8, 12, 20, 40},
			},
			[]string{"method"},
		),
		DroppedEntriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "studynotes_dropped_entries_total",
				Help: "Entries discarded with short sections",
			},
		),
		FallbackSlicingTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "studynotes_fallback_slicing_total",
				Help: "Transcripts sliced uniformly because too few sections were found",
			},
		),

		GenerationCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studynotes_generation_calls_total",
				Help: "Text generation calls, by model and outcome",
			},
			[]string{"model", "status"},
		),
		GenerationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "studynotes_generation_seconds",
				Help:    "Text generation latency",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 30, 60, 120},
			},
			[]string{"model"},
		),
		GenerationCacheTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studynotes_generation_cache_total",
				Help: "Generation cache lookups, by result",
			},
			[]string{"result"},
		),
		ChunkPlaceholdersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studynotes_chunk_placeholders_total",
				Help: "Chunks whose summary was replaced by a placeholder, by error code",
			},
			[]string{"code"},
		),

		PipelineRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studynotes_pipeline_runs_total",
				Help: "Pipeline runs, by outcome",
			},
			[]string{"status"},
		),
		PipelineSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "studynotes_pipeline_seconds",
				Help:    "End-to-end pipeline latency",
				Buckets: []float64{0.01, 0.1, 1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
	}
}

// Status label values.
const (
	StatusSuccess   = "success"
	StatusEmpty     = "empty"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"

	CacheHit  = "hit"
	CacheMiss = "miss"
)

// RecordDecode records one decode outcome.
func (m *Metrics) RecordDecode(format, status string, skipped int) {
	if m == nil {
		return
	}
	m.DecodeTotal.WithLabelValues(format, status).Inc()
	if skipped > 0 {
		m.DecodeSkippedCues.WithLabelValues(format).Add(float64(skipped))
	}
}

// RecordDetection records the result of section detection.
func (m *Metrics) RecordDetection(method string, sections, droppedEntries int, fallback bool) {
	if m == nil {
		return
	}
	m.SectionsDetected.WithLabelValues(method).Observe(float64(sections))
	if droppedEntries > 0 {
		m.DroppedEntriesTotal.Add(float64(droppedEntries))
	}
	if fallback {
		m.FallbackSlicingTotal.Inc()
	}
}

// RecordGeneration records one generation call and its latency.
func (m *Metrics) RecordGeneration(model, status string, seconds float64) {
	if m == nil {
		return
	}
	m.GenerationCallsTotal.WithLabelValues(model, status).Inc()
	m.GenerationSeconds.WithLabelValues(model).Observe(seconds)
}

// RecordCache records a cache lookup result (hit or miss).
func (m *Metrics) RecordCache(result string) {
	if m == nil {
		return
	}
	m.GenerationCacheTotal.WithLabelValues(result).Inc()
}

// RecordPlaceholder records a chunk summary replaced by a placeholder.
func (m *Metrics) RecordPlaceholder(code string) {
	if m == nil {
		return
	}
	m.ChunkPlaceholdersTotal.WithLabelValues(code).Inc()
}

// RecordPipelineRun records a completed pipeline run.
func (m *Metrics) RecordPipelineRun(status string, seconds float64) {
	if m == nil {
		return
	}
	m.PipelineRunsTotal.WithLabelValues(status).Inc()
	m.PipelineSeconds.Observe(seconds)
}
