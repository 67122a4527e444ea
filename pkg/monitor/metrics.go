package monitor

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for usage monitoring.
type Metrics struct {
	evaluations *prometheus.CounterVec
	alerts      *prometheus.CounterVec
	windowDelta *prometheus.GaugeVec
	usedBytes   prometheus.Gauge
	planBytes   prometheus.Gauge
	jobRuns     *prometheus.CounterVec
}

// NewMetrics registers the monitoring collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		evaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bwg_window_evaluations_total",
				Help: "Total number of window evaluations by outcome",
			},
			[]string{"window", "result"},
		),

		alerts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bwg_window_alerts_total",
				Help: "Total number of threshold alerts raised",
			},
			[]string{"window", "delivered"},
		),

		windowDelta: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bwg_window_delta_bytes",
				Help: "Transfer measured during the last completed window",
			},
			[]string{"window"},
		),

		usedBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bwg_transfer_used_bytes",
				Help: "Cumulative transfer reported by the provider",
			},
		),

		planBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bwg_transfer_plan_bytes",
				Help: "Monthly transfer allowance of the plan",
			},
		),

		jobRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bwg_scheduler_job_events_total",
				Help: "Scheduler job events (run, error, skipped) by job",
			},
			[]string{"job", "event"},
		),
	}
}

func (m *Metrics) observeEvaluation(window, result string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(window, result).Inc()
}

func (m *Metrics) observeAlert(window string, delivered bool) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(window, strconv.FormatBool(delivered)).Inc()
}

func (m *Metrics) observeDelta(window string, delta int64) {
	if m == nil {
		return
	}
	m.windowDelta.WithLabelValues(window).Set(float64(delta))
}

func (m *Metrics) observeSnapshot(used, plan int64) {
	if m == nil {
		return
	}
	m.usedBytes.Set(float64(used))
	m.planBytes.Set(float64(plan))
}

// ObserveJob counts a scheduler event for job.
func (m *Metrics) ObserveJob(job, event string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, event).Inc()
}
