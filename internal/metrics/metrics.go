// Package metrics exports monitor activity as Prometheus metrics. It learns
// everything from the event bus and never touches monitor state directly.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"correctionwatch/internal/eventbus"
	"correctionwatch/internal/monitor"
	"correctionwatch/internal/notifier"
)

const namespace = "correctionwatch"

type Metrics struct {
	reg *prometheus.Registry

	checks       prometheus.Counter
	probes       *prometheus.CounterVec
	reads        *prometheus.CounterVec
	events       *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
	probeLatency prometheus.Histogram
	sourceUp     prometheus.Gauge
	verified     prometheus.Gauge
	phase        prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		checks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "checks_total",
			Help: "Monitor iterations run.",
		}),
		probes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "probes_total",
			Help: "Reachability probes by result (up, down).",
		}, []string{"result"}),
		reads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "reads_total",
			Help: "Record reads by value class, or not_found.",
		}, []string{"class"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_total",
			Help: "Monitor events emitted by kind.",
		}, []string{"kind"}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "deliveries_total",
			Help: "Notifier deliveries by kind (text, image) and result.",
		}, []string{"kind", "result"}),
		probeLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "probe_latency_seconds",
			Help:    "Latency of successful reachability probes.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 9),
		}),
		sourceUp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "source_up",
			Help: "1 when the last probe reached the result site.",
		}),
		verified: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "verified_count",
			Help: "Consecutive confirming reads in the current episode.",
		}),
		phase: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "correction_phase",
			Help: "0 pending, 1 detected, 2 confirmed.",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// TrackBus exports the number of events the bus dropped for slow subscribers.
func (m *Metrics) TrackBus(bus eventbus.Bus) {
	promauto.With(m.reg).NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Name: "bus_dropped_total",
		Help: "Events dropped by the in-memory bus because a subscriber was full.",
	}, func() float64 { return float64(bus.Dropped()) })
}

// Run consumes bus events until ctx is done.
func (m *Metrics) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			m.Observe(ev)
		}
	}
}

// Observe updates metrics from one bus event. Unknown events are ignored.
func (m *Metrics) Observe(ev eventbus.Event) {
	switch data := ev.Data.(type) {
	case monitor.CheckRecord:
		m.checks.Inc()
		if data.Up {
			m.probes.WithLabelValues("up").Inc()
			m.probeLatency.Observe(data.Latency.Seconds())
			m.sourceUp.Set(1)
			if data.Found {
				m.reads.WithLabelValues(data.Class).Inc()
			} else {
				m.reads.WithLabelValues("not_found").Inc()
			}
		} else {
			m.probes.WithLabelValues("down").Inc()
			m.sourceUp.Set(0)
		}
		m.verified.Set(float64(data.VerifiedCount))
		m.phase.Set(phaseValue(data.Phase))
	case monitor.EventRecord:
		m.events.WithLabelValues(string(data.Kind)).Inc()
	case notifier.DeliveryEvent:
		result := "delivered"
		if ev.Type == eventbus.TopicNotifierFailed {
			result = "failed"
		}
		m.deliveries.WithLabelValues(data.Kind, result).Inc()
	}
}

func phaseValue(p monitor.Phase) float64 {
	switch p {
	case monitor.PhaseDetected:
		return 1
	case monitor.PhaseConfirmed:
		return 2
	default:
		return 0
	}
}
