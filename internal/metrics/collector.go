// Package metrics provides internal prometheus collectors for the workflow
// engine. This package is internal and should not be imported by external
// projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector aggregates the engine's run, step, and adapter metrics.
type Collector struct {
	runsTotal       *prometheus.CounterVec
	runDuration     prometheus.Histogram
	stepsTotal      *prometheus.CounterVec
	adapterDuration *prometheus.HistogramVec
	tokensUsed      *prometheus.CounterVec
}

// NewCollector creates the engine collectors registered on reg.
// A nil reg registers on the default prometheus registerer.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of workflow runs by outcome",
			},
			[]string{"workflow", "outcome"},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Workflow run duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		stepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Total number of executed steps by outcome",
			},
			[]string{"workflow", "outcome"},
		),
		adapterDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "adapter_call_duration_seconds",
				Help:      "Adapter call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		tokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_used_total",
				Help:      "Token usage counters by provider and kind",
			},
			[]string{"provider", "kind"},
		),
	}
}

// ObserveRun records a finished run.
func (c *Collector) ObserveRun(workflow, outcome string, d time.Duration) {
	c.runsTotal.WithLabelValues(workflow, outcome).Inc()
	c.runDuration.Observe(d.Seconds())
}

// ObserveStep records a finished step.
func (c *Collector) ObserveStep(workflow, outcome string) {
	c.stepsTotal.WithLabelValues(workflow, outcome).Inc()
}

// ObserveAdapterCall records one adapter call's latency.
func (c *Collector) ObserveAdapterCall(provider string, d time.Duration) {
	c.adapterDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveTokens records token usage for one adapter call.
func (c *Collector) ObserveTokens(provider string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		c.tokensUsed.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		c.tokensUsed.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	}
}
