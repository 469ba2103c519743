// Package metrics records Prometheus metrics for pipeline runs.
//
// A batch run is short-lived, so every run gets its own Registry instead of
// the default global one. When a Pushgateway URL is configured the registry
// is pushed once the run finishes:
//
//	m := metrics.New("scholar")
//	m.RowsExtracted.WithLabelValues("registrar").Add(1200)
//	timer := m.StageTimer("conform")
//	conform()
//	timer.ObserveDuration()
//	_ = m.Push(ctx, cfg.Metrics)
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/ajitpratap0/scholar/pkg/config"
)

// Metrics holds the collectors of one run.
type Metrics struct {
	Registry *prometheus.Registry

	// RowsExtracted counts rows read per logical source table.
	RowsExtracted *prometheus.CounterVec
	// RowsConformed counts Silver rows per entity.
	RowsConformed *prometheus.CounterVec
	// RowsLoaded counts rows inserted per Gold table.
	RowsLoaded *prometheus.CounterVec
	// RowsDropped counts rows left out, by table and reason.
	RowsDropped *prometheus.CounterVec
	// StageDuration observes the wall time of each stage.
	StageDuration *prometheus.HistogramVec
	// LastRunSuccess is 1 after a successful run and 0 after a failure.
	LastRunSuccess prometheus.Gauge
}

// New registers the run collectors under namespace on a fresh registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "scholar"
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		RowsExtracted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_extracted_total",
			Help:      "Rows read from source systems.",
		}, []string{"source"}),
		RowsConformed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_conformed_total",
			Help:      "Rows written to Silver.",
		}, []string{"entity"}),
		RowsLoaded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_loaded_total",
			Help:      "Rows inserted into the warehouse.",
		}, []string{"table"}),
		RowsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Rows left out of Silver or Gold.",
		}, []string{"table", "reason"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"stage"}),
		LastRunSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run succeeded, 0 otherwise.",
		}),
	}
}

// StageTimer starts timing stage.
func (m *Metrics) StageTimer(stage string) *prometheus.Timer {
	return prometheus.NewTimer(m.StageDuration.WithLabelValues(stage))
}

// RunFinished sets LastRunSuccess.
func (m *Metrics) RunFinished(ok bool) {
	if ok {
		m.LastRunSuccess.Set(1)
		return
	}
	m.LastRunSuccess.Set(0)
}

// Push sends the registry to the configured Pushgateway, replacing the
// previous push of the same job. It does nothing without a URL.
func (m *Metrics) Push(ctx context.Context, cfg config.MetricsConfig) error {
	if cfg.PushgatewayURL == "" {
		return nil
	}
	job := cfg.Job
	if job == "" {
		job = "scholar_etl"
	}
	if err := push.New(cfg.PushgatewayURL, job).Gatherer(m.Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", cfg.PushgatewayURL, err)
	}
	return nil
}
