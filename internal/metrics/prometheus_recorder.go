package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "projectbuilder"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration *prom.HistogramVec
	buildDuration *prom.HistogramVec
	buildOutcome  *prom.CounterVec
	rejected      *prom.CounterVec
	running       prom.Gauge
}

var _ Recorder = (*PrometheusRecorder)(nil)

// buildBuckets span quick scripts to long JVM builds.
var buildBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600}

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of build stages",
			Buckets:   buildBuckets,
		}, []string{"stage"}),
		buildDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration by tool",
			Buckets:   buildBuckets,
		}, []string{"tool"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by terminal status",
		}, []string{"outcome"}),
		rejected: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "requests_rejected_total",
			Help:      "Requests refused because the project lock was held",
		}, []string{"reason"}),
		running: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "builds_running",
			Help:      "Builds currently holding a project lock",
		}),
	}
	reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.buildOutcome, pr.rejected, pr.running)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(tool string, d time.Duration) {
	if tool == "" {
		tool = "unknown"
	}
	p.buildDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome string) {
	p.buildOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncRejected(reason RejectReason) {
	p.rejected.WithLabelValues(string(reason)).Inc()
}

func (p *PrometheusRecorder) AddRunning(delta int) {
	p.running.Add(float64(delta))
}
