// Package metrics exposes Prometheus counters for a reconciliation run.
//
// A run is short-lived, so instead of serving /metrics the collected values
// can be pushed to a Pushgateway when the run ends. Every method is safe to
// call on a nil *Metrics.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "indexsync"

// Apply results.
const (
	ResultOK       = "ok"
	ResultFailed   = "failed"
	ResultNotFound = "not_found"
)

// Metrics holds the collectors of one run in its own registry.
type Metrics struct {
	registry *prometheus.Registry

	RecordsTotal    *prometheus.CounterVec
	PagesTotal      *prometheus.CounterVec
	OutOfOrderTotal *prometheus.CounterVec
	FetchLatency    *prometheus.HistogramVec
	ActionsTotal    *prometheus.CounterVec
	AppliesTotal    *prometheus.CounterVec
	LastRunUpdated  prometheus.Gauge
	LastRunSeconds  prometheus.Gauge
}

// New creates a Metrics with a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_records_total",
				Help:      "Records read per ordered source.",
			},
			[]string{"source"},
		),
		PagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_pages_total",
				Help:      "Pages fetched per ordered source.",
			},
			[]string{"source"},
		),
		OutOfOrderTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_out_of_order_total",
				Help:      "Records that violated the (timestamp, id) ordering contract.",
			},
			[]string{"source"},
		),
		FetchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "source_fetch_seconds",
				Help:      "Page fetch latency in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		ActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Reconciliation actions emitted by type.",
			},
			[]string{"type"},
		),
		AppliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "applies_total",
				Help:      "Downstream apply calls by type and result.",
			},
			[]string{"type", "result"},
		),
		LastRunUpdated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_updated",
			Help:      "1 if the last run attempted at least one corrective action.",
		}),
		LastRunSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
	}
	m.registry.MustRegister(
		m.RecordsTotal,
		m.PagesTotal,
		m.OutOfOrderTotal,
		m.FetchLatency,
		m.ActionsTotal,
		m.AppliesTotal,
		m.LastRunUpdated,
		m.LastRunSeconds,
	)
	return m
}

// Registry returns the registry holding this run's collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObservePage records one fetched page.
func (m *Metrics) ObservePage(source string, records int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(source).Inc()
	m.RecordsTotal.WithLabelValues(source).Add(float64(records))
	m.FetchLatency.WithLabelValues(source).Observe(elapsed.Seconds())
}

// IncOutOfOrder counts an ordering violation.
func (m *Metrics) IncOutOfOrder(source string) {
	if m == nil {
		return
	}
	m.OutOfOrderTotal.WithLabelValues(source).Inc()
}

// IncAction counts an emitted action.
func (m *Metrics) IncAction(actionType string) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(actionType).Inc()
}

// IncApply counts a downstream call.
func (m *Metrics) IncApply(actionType, result string) {
	if m == nil {
		return
	}
	m.AppliesTotal.WithLabelValues(actionType, result).Inc()
}

// ObserveRun records the outcome of a finished run.
func (m *Metrics) ObserveRun(updated bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	if updated {
		m.LastRunUpdated.Set(1)
	} else {
		m.LastRunUpdated.Set(0)
	}
	m.LastRunSeconds.Set(elapsed.Seconds())
}

// Push sends the collected values to a Pushgateway under the given job.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
