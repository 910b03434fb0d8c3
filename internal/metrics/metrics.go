// Package metrics exposes Prometheus counters for frame transmission and
// light commands.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry creates a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the HTTP handler serving reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Metrics holds the application collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Frames      *prometheus.CounterVec // labels: command=rgb|white, result=ok|unreachable|timeout|error
	SendSeconds prometheus.Histogram
	Commands    *prometheus.CounterVec // labels: verb=turn_on|turn_off
	Entities    prometheus.Gauge
}

// New registers and returns the application collectors.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iluminize_frames_total",
			Help: "Command frames sent to appliances, by command and result.",
		}, []string{"command", "result"}),
		SendSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "iluminize_send_seconds",
			Help:    "Duration of one connect-write-close cycle.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 3},
		}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iluminize_light_commands_total",
			Help: "Light entity commands, by verb.",
		}, []string{"verb"}),
		Entities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "iluminize_entities",
			Help: "Number of light entities currently set up.",
		}),
	}
	reg.MustRegister(m.Frames, m.SendSeconds, m.Commands, m.Entities)
	return m
}

// ObserveSend records one transmission attempt.
func (m *Metrics) ObserveSend(command, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues(command, result).Inc()
	m.SendSeconds.Observe(d.Seconds())
}

// ObserveCommand records one light command.
func (m *Metrics) ObserveCommand(verb string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(verb).Inc()
}

// SetEntities records the current entity count.
func (m *Metrics) SetEntities(n int) {
	if m == nil {
		return
	}
	m.Entities.Set(float64(n))
}
