package metrics

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"correctionwatch/internal/eventbus"
	"correctionwatch/internal/monitor"
	"correctionwatch/internal/notifier"
)

func TestObserveChecks(t *testing.T) {
	t.Parallel()

	m := New()
	m.Observe(eventbus.Event{Type: eventbus.TopicMonitorCheck, Data: monitor.CheckRecord{Up: false}})
	m.Observe(eventbus.Event{Type: eventbus.TopicMonitorCheck, Data: monitor.CheckRecord{
		Up: true, Latency: 120 * time.Millisecond, Found: true, Class: "expected",
		Phase: monitor.PhaseDetected, VerifiedCount: 1,
	}})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.checks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.probes.WithLabelValues("down")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.probes.WithLabelValues("up")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reads.WithLabelValues("expected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sourceUp))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verified))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.phase))
}

func TestObserveEventsAndDeliveries(t *testing.T) {
	t.Parallel()

	m := New()
	m.Observe(eventbus.Event{Type: eventbus.TopicMonitorEvent, Data: monitor.EventRecord{Kind: monitor.KindDown}})
	m.Observe(eventbus.Event{Type: eventbus.TopicNotifierSent, Data: notifier.DeliveryEvent{Kind: "text"}})
	m.Observe(eventbus.Event{Type: eventbus.TopicNotifierFailed, Data: notifier.DeliveryEvent{Kind: "image"}})
	m.Observe(eventbus.Event{Type: "something.else", Data: 42})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("down")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("text", "delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("image", "failed")))
}

func TestRunConsumesBusAndServesMetrics(t *testing.T) {
	t.Parallel()

	m := New()
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, bus) }()

	require.Eventually(t, func() bool {
		bus.Publish(eventbus.Event{Type: eventbus.TopicMonitorEvent, Data: monitor.EventRecord{Kind: monitor.KindDetected}})
		return testutil.ToFloat64(m.events.WithLabelValues("detected")) > 0
	}, time.Second, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `correctionwatch_events_total{kind="detected"}`)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestTrackBusExportsDrops(t *testing.T) {
	t.Parallel()

	m := New()
	bus := eventbus.New()
	m.TrackBus(bus)
	_, unsub := bus.Subscribe(1)
	defer unsub()
	bus.Publish(eventbus.Event{Type: "a"})
	bus.Publish(eventbus.Event{Type: "b"})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "correctionwatch_bus_dropped_total 1")
}
