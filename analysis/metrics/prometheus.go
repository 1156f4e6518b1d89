// Package metrics provides Prometheus metrics export for the analysis
// pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/repolens/repolens/analysis/agents"
)

// Exporter exports pipeline metrics in Prometheus format. It implements the
// orchestrator's Observer and plugs into the LLM gateway's token and cache
// hooks.
type Exporter struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	agentOutcomes *prometheus.CounterVec
	agentDuration *prometheus.HistogramVec
	agentRetries  *prometheus.CounterVec

	llmTokens    *prometheus.CounterVec
	llmCacheHits *prometheus.CounterVec
}

// Config configures the exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for the agent duration histogram (in seconds)
	DurationBuckets []float64
}

// DefaultConfig returns default exporter configuration.
func DefaultConfig() Config {
	return Config{
		DurationBuckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}
}

// NewExporter creates a Prometheus metrics exporter.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = DefaultConfig().DurationBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "repolens",
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Total number of analysis runs by terminal phase",
		},
		[]string{"phase"},
	)

	e.agentOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "repolens",
			Subsystem: "analysis",
			Name:      "agent_outcomes_total",
			Help:      "Total number of agent executions by terminal status",
		},
		[]string{"agent_id", "status"},
	)

	e.agentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "repolens",
			Subsystem: "analysis",
			Name:      "agent_duration_seconds",
			Help:      "Agent execution duration in seconds, retries included",
			Buckets:   cfg.DurationBuckets,
		},
		[]string{"agent_id"},
	)

	e.agentRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "repolens",
			Subsystem: "analysis",
			Name:      "agent_retries_total",
			Help:      "Total number of agent retries",
		},
		[]string{"agent_id"},
	)

	e.llmTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "repolens",
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Total LLM tokens consumed",
		},
		[]string{"model"},
	)

	e.llmCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "repolens",
			Subsystem: "llm",
			Name:      "cache_hits_total",
			Help:      "Total LLM completions served from cache",
		},
		[]string{"model"},
	)

	registry.MustRegister(
		e.runs,
		e.agentOutcomes,
		e.agentDuration,
		e.agentRetries,
		e.llmTokens,
		e.llmCacheHits,
	)

	return e
}

// RecordRun records one finished analysis run by terminal phase.
func (e *Exporter) RecordRun(phase string) {
	e.runs.WithLabelValues(phase).Inc()
}

// AgentFinished records the outcome of one agent execution. It satisfies the
// orchestrator's Observer interface.
func (e *Exporter) AgentFinished(agentID string, status agents.Status, duration time.Duration, retries int) {
	e.agentOutcomes.WithLabelValues(agentID, string(status)).Inc()
	if status != agents.StatusSkipped {
		e.agentDuration.WithLabelValues(agentID).Observe(duration.Seconds())
	}
	if retries > 0 {
		e.agentRetries.WithLabelValues(agentID).Add(float64(retries))
	}
}

// ObserveTokens records LLM token usage; wired into the gateway's token hook.
func (e *Exporter) ObserveTokens(model string, tokens int) {
	e.llmTokens.WithLabelValues(model).Add(float64(tokens))
}

// ObserveCacheHit records a gateway cache hit.
func (e *Exporter) ObserveCacheHit(model string) {
	e.llmCacheHits.WithLabelValues(model).Inc()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}
