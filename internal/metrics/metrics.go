// Package metrics exposes Prometheus instrumentation for plugin loading.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "strata"

// Load outcomes.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the pipeline collectors on a dedicated registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	stageDuration *prometheus.HistogramVec
	stagePlugins  *prometheus.GaugeVec
	loads         *prometheus.CounterVec
	registered    prometheus.Gauge
}

// New creates the collectors and registers them, with the Go runtime and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each plugin load stage.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"stage"}),
		stagePlugins: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_plugins",
			Help:      "Number of plugins leaving each load stage in the last run.",
		}, []string{"stage"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "loads_total",
			Help:      "Completed pipeline runs by result.",
		}, []string{"result"}),
		registered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_plugins",
			Help:      "Plugins held by the sealed registry.",
		}),
	}
	m.registry.MustRegister(
		m.stageDuration,
		m.stagePlugins,
		m.loads,
		m.registered,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveStage records one stage's duration and output size.
func (m *Metrics) ObserveStage(stage string, d time.Duration, plugins int) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	m.stagePlugins.WithLabelValues(stage).Set(float64(plugins))
}

// LoadFinished counts a pipeline run. registered is the registry size on
// success.
func (m *Metrics) LoadFinished(err error, registered int) {
	if m == nil {
		return
	}
	if err != nil {
		m.loads.WithLabelValues(ResultFailure).Inc()
		return
	}
	m.loads.WithLabelValues(ResultSuccess).Inc()
	m.registered.Set(float64(registered))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
