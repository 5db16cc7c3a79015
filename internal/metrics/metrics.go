// Package metrics exposes controller activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CristiGvl/ecfanctl/internal/telemetry"
)

const namespace = "ecfanctl"

// Metrics holds every collector of the controller on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	deviceWrites     *prometheus.CounterVec
	writesSuperseded *prometheus.CounterVec
	writesDiscarded  *prometheus.CounterVec
	readFailures     *prometheus.CounterVec
	verifications    *prometheus.CounterVec
	polls            prometheus.Counter
	temperature      prometheus.Gauge
	fanRPM           *prometheus.GaugeVec
	hostCPU          prometheus.Gauge
	hostMemory       prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		deviceWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_writes_total",
			Help:      "Device attribute writes by attribute and result.",
		}, []string{"attribute", "result"}),
		writesSuperseded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_superseded_total",
			Help:      "Pending debounced writes replaced by a newer edit.",
		}, []string{"attribute"}),
		writesDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_discarded_total",
			Help:      "Debounced writes dropped because a newer generation existed when their timer fired.",
		}, []string{"attribute"}),
		readFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_failures_total",
			Help:      "Failed or undecodable attribute reads.",
		}, []string{"attribute"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readback_verifications_total",
			Help:      "Read-back verifications by attribute and outcome (accepted, overridden, failed).",
		}, []string{"attribute", "outcome"}),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_polls_total",
			Help:      "Completed telemetry polls.",
		}),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last temperature reported by the fan controller.",
		}),
		fanRPM: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fan_rpm",
			Help:      "Last reported fan speed.",
		}, []string{"fan"}),
		hostCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_cpu_percent",
			Help:      "Host CPU usage at the last poll.",
		}),
		hostMemory: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_memory_percent",
			Help:      "Host memory usage at the last poll.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.deviceWrites,
		m.writesSuperseded,
		m.writesDiscarded,
		m.readFailures,
		m.verifications,
		m.polls,
		m.temperature,
		m.fanRPM,
		m.hostCPU,
		m.hostMemory,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteDone counts a device write.
func (m *Metrics) WriteDone(key string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.deviceWrites.WithLabelValues(key, result).Inc()
}

// WriteSuperseded counts a debounced write replaced before it fired.
func (m *Metrics) WriteSuperseded(key string) {
	m.writesSuperseded.WithLabelValues(key).Inc()
}

// WriteDiscarded counts a stale debounced write.
func (m *Metrics) WriteDiscarded(key string) {
	m.writesDiscarded.WithLabelValues(key).Inc()
}

// ReadFailed implements telemetry.Observer.
func (m *Metrics) ReadFailed(key string, _ error) {
	m.readFailures.WithLabelValues(key).Inc()
}

// Polled implements telemetry.Observer.
func (m *Metrics) Polled(s telemetry.Snapshot) {
	m.polls.Inc()
	if s.Temperature != nil {
		m.temperature.Set(float64(*s.Temperature))
	}
	for fan, rpm := range s.RPM {
		m.fanRPM.WithLabelValues(strconv.Itoa(fan)).Set(float64(rpm))
	}
	if s.HostLoad != nil {
		m.hostCPU.Set(s.HostLoad.CPUPercent)
		m.hostMemory.Set(s.HostLoad.MemoryPercent)
	}
}

// ReadbackFailed implements readback.Observer.
func (m *Metrics) ReadbackFailed(key string, _ error) {
	m.verifications.WithLabelValues(key, "failed").Inc()
}

// Verified counts a completed read-back.
func (m *Metrics) Verified(key string, accepted bool) {
	outcome := "accepted"
	if !accepted {
		outcome = "overridden"
	}
	m.verifications.WithLabelValues(key, outcome).Inc()
}
