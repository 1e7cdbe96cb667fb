package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	decisions      *prometheus.CounterVec
	riskRejections *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	breakerActive  prometheus.Gauge
	openPositions  prometheus.Gauge
	evGauge        *prometheus.GaugeVec
	cycleDuration  prometheus.Histogram
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		decisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_decisions_total",
				Help: "Total trading decisions by kind and reason",
			},
			[]string{"kind", "symbol", "reason"},
		),
		riskRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_risk_rejections_total",
				Help: "Entry attempts rejected by the risk manager",
			},
			[]string{"reason"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		breakerActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradepulse_circuit_breaker_active",
				Help: "1 when the circuit breaker is tripped",
			},
		),
		openPositions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradepulse_open_positions",
				Help: "Number of currently open positions",
			},
		),
		evGauge: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradepulse_expected_value",
				Help: "Latest net EV per symbol",
			},
			[]string{"symbol"},
		),
		cycleDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tradepulse_cycle_duration_seconds",
				Help:    "Duration of one execution cycle",
				Buckets: prometheus.DefBuckets,
			},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradepulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordDecision counts an entry, exit, or rotation.
func (r *Recorder) RecordDecision(kind, symbol, reason string) {
	r.decisions.WithLabelValues(kind, symbol, reason).Inc()
}

// RecordRiskRejection counts a rejected entry attempt. Rejections are normal
// control flow, tracked separately from errors.
func (r *Recorder) RecordRiskRejection(reason string) {
	r.riskRejections.WithLabelValues(reason).Inc()
}

// RecordBreaker tracks the circuit breaker state.
func (r *Recorder) RecordBreaker(active bool) {
	if active {
		r.breakerActive.Set(1)
		return
	}
	r.breakerActive.Set(0)
}

// RecordOpenPositions tracks the open position count.
func (r *Recorder) RecordOpenPositions(n int) {
	r.openPositions.Set(float64(n))
}

// RecordEV tracks the latest evaluated EV per symbol.
func (r *Recorder) RecordEV(symbol string, ev float64) {
	r.evGauge.WithLabelValues(symbol).Set(ev)
}

// RecordCycleDuration records one cycle's wall time.
func (r *Recorder) RecordCycleDuration(seconds float64) {
	r.cycleDuration.Observe(seconds)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
