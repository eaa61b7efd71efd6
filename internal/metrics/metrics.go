// Package metrics collects per-run counters and gauges and exports them in
// the Prometheus text format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Notification results used as label values.
const (
	ResultSent      = "sent"
	ResultFailed    = "failed"
	ResultThrottled = "throttled"
)

// Recorder holds the metrics of a single run on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	notificationsTotal  *prometheus.CounterVec
	monthlyNotification prometheus.Gauge
	monthlyLimit        prometheus.Gauge
	trackedOutages      prometheus.Gauge
	lastRun             prometheus.Gauge
	runDuration         prometheus.Histogram
}

// New creates a Recorder with every collector registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outagewatch_notifications_total",
				Help: "Notifications attempted in this run by change kind and result",
			},
			[]string{"kind", "result"},
		),
		monthlyNotification: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "outagewatch_monthly_notifications",
				Help: "Notifications counted against the current month",
			},
		),
		monthlyLimit: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "outagewatch_monthly_limit",
				Help: "Configured monthly notification ceiling",
			},
		),
		trackedOutages: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "outagewatch_tracked_outages",
				Help: "Outage entries held in state",
			},
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "outagewatch_last_run_timestamp_seconds",
				Help: "Unix time the last run finished",
			},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "outagewatch_run_duration_seconds",
				Help:    "Wall time of a run",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	r.registry.MustRegister(
		r.notificationsTotal,
		r.monthlyNotification,
		r.monthlyLimit,
		r.trackedOutages,
		r.lastRun,
		r.runDuration,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveNotification counts one notification decision.
func (r *Recorder) ObserveNotification(kind, result string) {
	r.notificationsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveRun records the end-of-run gauges.
func (r *Recorder) ObserveRun(monthlyCount, limit, tracked int, finished time.Time, took time.Duration) {
	r.monthlyNotification.Set(float64(monthlyCount))
	r.monthlyLimit.Set(float64(limit))
	r.trackedOutages.Set(float64(tracked))
	r.lastRun.Set(float64(finished.Unix()))
	r.runDuration.Observe(took.Seconds())
}

// WriteTextfile writes the registry to path for the node_exporter textfile
// collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
