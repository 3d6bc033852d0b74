// Package metrics provides the Prometheus-backed implementation of the
// engine's metrics collector and the HTTP handler exposing it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records engine measurements into a Prometheus registry. It
// satisfies workflow.MetricsCollector.
type Collector struct {
	registry       *prometheus.Registry
	actionDuration *prometheus.HistogramVec
	actionOutcome  *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "autoqliq",
			Name:      "action_duration_seconds",
			Help:      "Duration of individual action executions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action_type"}),
		actionOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autoqliq",
			Name:      "actions_total",
			Help:      "Executed actions by type and outcome.",
		}, []string{"action_type", "outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "autoqliq",
			Name:      "run_duration_seconds",
			Help:      "Duration of workflow runs by final status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"final_status"}),
	}
	registry.MustRegister(c.actionDuration, c.actionOutcome, c.runDuration)
	return c
}

// RecordActionDuration implements workflow.MetricsCollector.
func (c *Collector) RecordActionDuration(actionType string, d time.Duration) {
	c.actionDuration.WithLabelValues(actionType).Observe(d.Seconds())
}

// RecordActionSuccess implements workflow.MetricsCollector.
func (c *Collector) RecordActionSuccess(actionType string) {
	c.actionOutcome.WithLabelValues(actionType, "success").Inc()
}

// RecordActionFailure implements workflow.MetricsCollector.
func (c *Collector) RecordActionFailure(actionType string) {
	c.actionOutcome.WithLabelValues(actionType, "failure").Inc()
}

// RecordRun implements workflow.MetricsCollector.
func (c *Collector) RecordRun(finalStatus string, d time.Duration) {
	c.runDuration.WithLabelValues(finalStatus).Observe(d.Seconds())
}

// Handler exposes the registry for scraping.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
