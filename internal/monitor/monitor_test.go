package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"correctionwatch/internal/eventbus"
	"correctionwatch/internal/notifier"
)

// fakeFetcher replays scripted probe and snapshot outcomes. When a script
// runs out the last entry repeats.
type fakeFetcher struct {
	mu        sync.Mutex
	probes    []ProbeResult
	snaps     []ResultSnapshot
	proof     []byte
	proofErr  error
	panicOn   int // panic on this fetch call (1-based), 0 = never
	fetches   int
	probeN    int
	proofs    int
	callOrder []string
}

func (f *fakeFetcher) Probe(context.Context) ProbeResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callOrder = append(f.callOrder, "probe")
	if len(f.probes) == 0 {
		return Reachable()
	}
	i := f.probeN
	if i >= len(f.probes) {
		i = len(f.probes) - 1
	}
	f.probeN++
	return f.probes[i]
}

func (f *fakeFetcher) FetchSnapshot(context.Context) ResultSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	f.callOrder = append(f.callOrder, "fetch")
	if f.panicOn == f.fetches {
		panic("scraper exploded")
	}
	if len(f.snaps) == 0 {
		return FoundSnapshot("NA", StatusFail)
	}
	i := f.fetches - 1
	if i >= len(f.snaps) {
		i = len(f.snaps) - 1
	}
	return f.snaps[i]
}

func (f *fakeFetcher) CaptureProof(context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proofs++
	f.callOrder = append(f.callOrder, "proof")
	return f.proof, f.proofErr
}

type fakeNotifier struct {
	mu     sync.Mutex
	fail   bool
	texts  []string
	images []string
}

func (n *fakeNotifier) SendText(_ context.Context, text string) notifier.Delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	if n.fail {
		return notifier.Delivery{Outcome: notifier.Failed, Attempts: 3, Err: errors.New("telegram down")}
	}
	return notifier.Delivery{Outcome: notifier.Delivered, Attempts: 1}
}

func (n *fakeNotifier) SendImage(_ context.Context, _ []byte, caption string) notifier.Delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.images = append(n.images, caption)
	if n.fail {
		return notifier.Delivery{Outcome: notifier.Failed, Attempts: 3, Err: errors.New("telegram down")}
	}
	return notifier.Delivery{Outcome: notifier.Delivered, Attempts: 1}
}

func (n *fakeNotifier) Texts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.texts...)
}

type kindFormatter struct{}

func (kindFormatter) Startup(Config, time.Time) string { return "startup" }
func (kindFormatter) Event(ev Event, _ time.Time) string {
	if v := EventValue(ev); v != "" {
		return fmt.Sprintf("%s:%s", ev.Kind(), v)
	}
	return string(ev.Kind())
}
func (kindFormatter) ProofCaption(ev Detected, _ time.Time) string { return "proof:" + ev.Value }
func (kindFormatter) Heartbeat(st Status, _ time.Time) string {
	return fmt.Sprintf("heartbeat:%s:%d", st.Phase, st.Checks)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestMonitor(f Fetcher, n Notifier, opts ...Option) (*Monitor, *fakeClock) {
	clk := &fakeClock{t: t0}
	cfg := Config{
		Rules:        Rules{Placeholder: "NA", Expected: "68"},
		Availability: testPolicy,
	}
	opts = append([]Option{WithClock(clk.Now)}, opts...)
	return New(cfg, f, n, kindFormatter{}, opts...), clk
}

func runChecks(m *Monitor, clk *fakeClock, n int) {
	for i := 0; i < n; i++ {
		m.RunOnce(context.Background())
		clk.Advance(30 * time.Second)
	}
}

func TestMonitorDetectsThenConfirmsCorrection(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{
		snaps: []ResultSnapshot{
			FoundSnapshot("NA", StatusFail),
			FoundSnapshot("NA", StatusFail),
			FoundSnapshot("68", StatusPass),
			FoundSnapshot("68", StatusPass),
			FoundSnapshot("68", StatusPass),
			FoundSnapshot("68", StatusPass),
		},
		proof: []byte("png"),
	}
	n := &fakeNotifier{}
	m, clk := newTestMonitor(f, n)

	runChecks(m, clk, 6)

	assert.Equal(t, []string{"detected:68", "confirmed:68"}, n.Texts())
	assert.Equal(t, []string{"proof:68"}, n.images)
	assert.Equal(t, 1, f.proofs)

	st := m.Status()
	assert.Equal(t, PhaseConfirmed, st.Phase)
	assert.Equal(t, int64(6), st.Checks)
	assert.Equal(t, 4, st.VerifiedCount)
	assert.Equal(t, "68", st.LastValue)
	assert.Equal(t, StatusPass, st.LastStatus)
}

func TestMonitorRevertsWhenPlaceholderReturns(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{snaps: []ResultSnapshot{
		FoundSnapshot("NA", StatusFail),
		FoundSnapshot("68", StatusPass),
		FoundSnapshot("NA", StatusFail),
	}}
	n := &fakeNotifier{}
	m, clk := newTestMonitor(f, n)

	runChecks(m, clk, 3)

	assert.Equal(t, []string{"detected:68", "reverted:NA"}, n.Texts())
	assert.Equal(t, PhasePending, m.Status().Phase)
}

func TestMonitorSkipsFetchWhileDownAndReportsDowntime(t *testing.T) {
	t.Parallel()

	probes := make([]ProbeResult, 0, 11)
	for i := 0; i < 10; i++ {
		probes = append(probes, Unreachable(errDown))
	}
	probes = append(probes, Reachable())
	f := &fakeFetcher{probes: probes}
	n := &fakeNotifier{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(64)
	defer unsub()
	m, clk := newTestMonitor(f, n, WithBus(bus))

	runChecks(m, clk, 10)
	assert.Equal(t, []string{"down"}, n.Texts())
	assert.Zero(t, f.fetches)
	st := m.Status()
	assert.False(t, st.SourceUp)
	assert.True(t, st.DownNotified)
	assert.Equal(t, t0, st.DownSince)

	runChecks(m, clk, 1)
	assert.Equal(t, []string{"down", "back_up"}, n.Texts())
	assert.Equal(t, 1, f.fetches)
	assert.True(t, m.Status().SourceUp)

	// Down from the first failed check at t0 to the recovery 10 checks later.
	var recs []EventRecord
	for len(events) > 0 {
		ev := <-events
		if ev.Type == eventbus.TopicMonitorEvent {
			recs = append(recs, ev.Data.(EventRecord))
		}
	}
	require.Len(t, recs, 2)
	assert.Equal(t, KindDown, recs[0].Kind)
	assert.Equal(t, KindBackUp, recs[1].Kind)
	assert.Equal(t, "downtime=5m", recs[1].Detail)
}

func TestMonitorDispatchesAvailabilityBeforeCorrection(t *testing.T) {
	t.Parallel()

	probes := make([]ProbeResult, 0, 11)
	for i := 0; i < 10; i++ {
		probes = append(probes, Unreachable(errDown))
	}
	probes = append(probes, Reachable())
	f := &fakeFetcher{probes: probes, snaps: []ResultSnapshot{FoundSnapshot("68", StatusPass)}}
	n := &fakeNotifier{}
	m, clk := newTestMonitor(f, n)

	runChecks(m, clk, 11)

	assert.Equal(t, []string{"down", "back_up", "detected:68"}, n.Texts())
}

func TestMonitorDetectsUnexpectedNumericValue(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{snaps: []ResultSnapshot{FoundSnapshot("NA", StatusFail), FoundSnapshot("55", StatusPass)}}
	n := &fakeNotifier{}
	m, clk := newTestMonitor(f, n)

	runChecks(m, clk, 2)
	assert.Equal(t, []string{"detected:55"}, n.Texts())
}

func TestMonitorFailedFetchIsNotNotified(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{snaps: []ResultSnapshot{
		FoundSnapshot("68", StatusPass),
		FailedSnapshot(ErrorStructural, "subject row not found"),
		{},
		FoundSnapshot("68", StatusPass),
		FoundSnapshot("68", StatusPass),
	}}
	n := &fakeNotifier{}
	m, clk := newTestMonitor(f, n)

	runChecks(m, clk, 3)
	assert.Equal(t, []string{"detected:68"}, n.Texts())
	assert.Equal(t, "structural: record not found", m.Status().LastError)

	runChecks(m, clk, 2)
	assert.Equal(t, []string{"detected:68", "confirmed:68"}, n.Texts())
	assert.Empty(t, m.Status().LastError)
}

func TestMonitorKeepsTransitioningWhenNotifierFails(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{snaps: []ResultSnapshot{FoundSnapshot("68", StatusPass)}}
	n := &fakeNotifier{fail: true}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(64)
	defer unsub()
	m, clk := newTestMonitor(f, n, WithBus(bus))

	runChecks(m, clk, 4)

	assert.Equal(t, []string{"detected:68", "confirmed:68"}, n.Texts())
	assert.Equal(t, PhaseConfirmed, m.Status().Phase)

	var recs []EventRecord
	for len(events) > 0 {
		ev := <-events
		if ev.Type == eventbus.TopicMonitorEvent {
			recs = append(recs, ev.Data.(EventRecord))
		}
	}
	require.Len(t, recs, 2)
	assert.Equal(t, KindDetected, recs[0].Kind)
	assert.False(t, recs[0].Delivered)
	assert.Equal(t, 3, recs[0].Attempts)
	assert.Equal(t, "telegram down", recs[0].Error)
	assert.Equal(t, KindConfirmed, recs[1].Kind)
}

func TestMonitorRecoversFromPanics(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{
		snaps:   []ResultSnapshot{FoundSnapshot("68", StatusPass)},
		panicOn: 2,
	}
	n := &fakeNotifier{}
	m, clk := newTestMonitor(f, n)

	require.NotPanics(t, func() { runChecks(m, clk, 4) })
	// The panicking iteration neither advanced nor reset the episode.
	assert.Equal(t, []string{"detected:68", "confirmed:68"}, n.Texts())
	assert.Equal(t, int64(4), m.Status().Checks)
}

func TestMonitorProofFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{
		snaps:    []ResultSnapshot{FoundSnapshot("68", StatusPass)},
		proofErr: errors.New("browser crashed"),
	}
	n := &fakeNotifier{}
	m, clk := newTestMonitor(f, n)

	runChecks(m, clk, 1)
	assert.Equal(t, []string{"detected:68"}, n.Texts())
	assert.Empty(t, n.images)
	assert.Equal(t, []string{"probe", "fetch", "proof"}, f.callOrder)
}

func TestMonitorPublishesChecks(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{probes: []ProbeResult{Unreachable(errDown), Reachable()}}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()
	m, clk := newTestMonitor(f, &fakeNotifier{}, WithBus(bus))

	runChecks(m, clk, 2)

	var checks []CheckRecord
	for len(events) > 0 {
		ev := <-events
		if ev.Type == eventbus.TopicMonitorCheck {
			checks = append(checks, ev.Data.(CheckRecord))
		}
	}
	require.Len(t, checks, 2)
	assert.False(t, checks[0].Up)
	assert.Equal(t, "connection refused", checks[0].Error)
	assert.True(t, checks[1].Up)
	assert.True(t, checks[1].Found)
	assert.Equal(t, "placeholder", checks[1].Class)
	assert.Equal(t, PhasePending, checks[1].Phase)
}

func TestMonitorRunStopsBetweenIterations(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{}
	n := &fakeNotifier{}
	cfg := Config{
		Rules:        Rules{Placeholder: "NA", Expected: "68"},
		Availability: AvailabilityPolicy{PollInterval: time.Millisecond, GracePeriod: time.Second},
	}
	m := New(cfg, f, n, kindFormatter{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return m.Status().Checks >= 3 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	texts := n.Texts()
	require.NotEmpty(t, texts)
	assert.Equal(t, "startup", texts[0])

	f.mu.Lock()
	defer f.mu.Unlock()
	probes := 0
	for _, c := range f.callOrder {
		if c == "probe" {
			probes++
		}
	}
	assert.Equal(t, probes, f.fetches, "every started iteration ran to completion")
}

func TestMonitorRunReturnsImmediatelyWhenCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n := &fakeNotifier{}
	m, _ := newTestMonitor(&fakeFetcher{}, n)

	assert.ErrorIs(t, m.Run(ctx), context.Canceled)
	assert.Empty(t, n.Texts())
}
