package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	alertsTotal       *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	detectorLatency   *prometheus.HistogramVec
	rolloutPercentage prometheus.Gauge
	scanAccepted      prometheus.Histogram
	scanCandidates    prometheus.Histogram
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		alertsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftwatch_alerts_total",
				Help: "Total number of alerts emitted",
			},
			[]string{"variant", "symbol", "tier"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftwatch_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		detectorLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "driftwatch_detector_duration_seconds",
				Help:    "Duration of detector invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"variant"},
		),
		rolloutPercentage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "driftwatch_rollout_percentage",
				Help: "Current gradual rollout percentage",
			},
		),
		scanAccepted: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "driftwatch_scan_accepted",
				Help:    "Alerts accepted per scan pass",
				Buckets: prometheus.LinearBuckets(0, 1, 10),
			},
		),
		scanCandidates: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "driftwatch_scan_candidates",
				Help:    "Candidates considered per scan pass",
				Buckets: prometheus.LinearBuckets(0, 2, 15),
			},
		),
	}
}

// RecordAlert records one emitted alert.
func (r *Recorder) RecordAlert(variant, symbol, tier string) {
	r.alertsTotal.WithLabelValues(variant, symbol, tier).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordDetectorLatency records one detector invocation's duration.
func (r *Recorder) RecordDetectorLatency(variant string, seconds float64) {
	r.detectorLatency.WithLabelValues(variant).Observe(seconds)
}

// RecordRolloutPercentage records the current canary percentage.
func (r *Recorder) RecordRolloutPercentage(pct float64) {
	r.rolloutPercentage.Set(pct)
}

// RecordScanPass records one scan pass funnel.
func (r *Recorder) RecordScanPass(accepted, candidates int) {
	r.scanAccepted.Observe(float64(accepted))
	r.scanCandidates.Observe(float64(candidates))
}
