// Package metrics exposes Prometheus collectors for the summarization gateway.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/suPer8Hu/neuronote/internal/events"
)

const namespace = "neuronote"

// Collector owns a private registry so tests and multiple servers never collide
// on the global one. It implements events.Recorder.
type Collector struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	fragments *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	sessions  prometheus.Gauge
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summarizations_total",
			Help:      "Summarization requests by transport, final state and failure kind.",
		}, []string{"transport", "state", "kind"}),
		fragments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_relayed_total",
			Help:      "Summary fragments relayed to callers.",
		}, []string{"transport"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "summarization_duration_seconds",
			Help:      "Time from receipt to terminal state.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"transport", "state"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_sessions_active",
			Help:      "Open WebSocket summarization sessions.",
		}),
	}

	c.registry.MustRegister(c.requests, c.fragments, c.duration, c.sessions)
	c.registry.MustRegister(collectors.NewGoCollector())
	c.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return c
}

// Record counts terminal events; intermediate transitions are ignored.
func (c *Collector) Record(_ context.Context, e events.Event) {
	if !e.Terminal {
		return
	}
	kind := e.Kind
	if kind == "" {
		kind = "none"
	}
	c.requests.WithLabelValues(e.Transport, e.State, kind).Inc()
	c.fragments.WithLabelValues(e.Transport).Add(float64(e.Fragments))
	c.duration.WithLabelValues(e.Transport, e.State).Observe(float64(e.DurationMS) / 1000)
}

func (c *Collector) SessionOpened() { c.sessions.Inc() }
func (c *Collector) SessionClosed() { c.sessions.Dec() }

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
