// internal/metrics/collector.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropsense_events_ingested_total",
			Help: "Behavior events appended to the event store",
		},
		[]string{"action"},
	)

	eventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropsense_events_rejected_total",
			Help: "Behavior events rejected before append",
		},
		[]string{"reason"},
	)

	analysisTriggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropsense_analysis_triggers_total",
			Help: "Analysis jobs enqueued by trigger source",
		},
		[]string{"source"},
	)

	analysisRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropsense_analysis_runs_total",
			Help: "Completed analysis runs by outcome",
		},
		[]string{"outcome"},
	)

	analysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dropsense_analysis_duration_seconds",
			Help:    "Wall time of a single user analysis",
			Buckets: prometheus.DefBuckets,
		},
	)

	adaptations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropsense_adaptations_total",
			Help: "Adaptation decisions by result (applied or gated)",
		},
		[]string{"result"},
	)

	advisoryCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropsense_advisory_calls_total",
			Help: "Text-advisory calls by result",
		},
		[]string{"result"},
	)

	insightsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropsense_insights_emitted_total",
			Help: "Preference insights created by type",
		},
		[]string{"type"},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dropsense_analysis_queue_depth",
			Help: "Pending analysis jobs",
		},
	)
)

// Collector records pipeline metrics
type Collector struct {
	startTime time.Time
}

// NewCollector creates a metrics collector
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
	}
}

// EventIngested records a successful append
func (c *Collector) EventIngested(action string) {
	eventsIngested.WithLabelValues(action).Inc()
}

// EventRejected records a rejected ingestion
func (c *Collector) EventRejected(reason string) {
	eventsRejected.WithLabelValues(reason).Inc()
}

// AnalysisTriggered records an enqueued analysis job
func (c *Collector) AnalysisTriggered(source string) {
	analysisTriggers.WithLabelValues(source).Inc()
}

// AnalysisCompleted records the outcome and duration of one run
func (c *Collector) AnalysisCompleted(outcome string, d time.Duration) {
	analysisRuns.WithLabelValues(outcome).Inc()
	analysisDuration.Observe(d.Seconds())
}

// Adaptation records whether a decision cleared the confidence gate
func (c *Collector) Adaptation(applied bool) {
	if applied {
		adaptations.WithLabelValues("applied").Inc()
		return
	}
	adaptations.WithLabelValues("gated").Inc()
}

// AdvisoryCall records a remote advisory result: ok, retry or fallback
func (c *Collector) AdvisoryCall(result string) {
	advisoryCalls.WithLabelValues(result).Inc()
}

// InsightEmitted records a new insight
func (c *Collector) InsightEmitted(insightType string) {
	insightsEmitted.WithLabelValues(insightType).Inc()
}

// QueueDepth sets the pending job gauge
func (c *Collector) QueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// Uptime returns the uptime duration
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}
