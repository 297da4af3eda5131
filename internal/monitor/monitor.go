package monitor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"correctionwatch/internal/eventbus"
	"correctionwatch/internal/notifier"
	logx "correctionwatch/pkg/logx"
)

// Fetcher retrieves the tracked record. Implementations bound each call
// with their own timeout and report failures in the returned values.
type Fetcher interface {
	Probe(ctx context.Context) ProbeResult
	FetchSnapshot(ctx context.Context) ResultSnapshot
	// CaptureProof returns a PNG of the record page. Best-effort.
	CaptureProof(ctx context.Context) ([]byte, error)
}

// Notifier delivers formatted messages with internal retry.
type Notifier interface {
	SendText(ctx context.Context, text string) notifier.Delivery
	SendImage(ctx context.Context, image []byte, caption string) notifier.Delivery
}

// Formatter turns events into message text.
type Formatter interface {
	Startup(cfg Config, at time.Time) string
	Event(ev Event, at time.Time) string
	ProofCaption(ev Detected, at time.Time) string
	Heartbeat(st Status, at time.Time) string
}

type Config struct {
	Rules        Rules
	Availability AvailabilityPolicy

	ProbeTimeout time.Duration
	FetchTimeout time.Duration
	ProofTimeout time.Duration

	// StatusEvery logs a status line every n checks.
	StatusEvery int
	// WaitingEvery logs a "still waiting" line every n checks while the
	// placeholder is showing.
	WaitingEvery int
	// SkipStartup suppresses the startup notification.
	SkipStartup bool
}

func (c Config) withDefaults() Config {
	if c.Availability.PollInterval <= 0 {
		c.Availability.PollInterval = DefaultPollInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 40 * time.Second
	}
	if c.ProofTimeout <= 0 {
		c.ProofTimeout = 30 * time.Second
	}
	if c.StatusEvery <= 0 {
		c.StatusEvery = 10
	}
	if c.WaitingEvery <= 0 {
		c.WaitingEvery = 20
	}
	return c
}

// Monitor runs the check loop. Both state structs are owned by the goroutine
// calling Run or RunOnce; other goroutines only see Status copies.
type Monitor struct {
	cfg    Config
	fetch  Fetcher
	notify Notifier
	format Formatter

	log logx.Logger
	bus eventbus.Bus
	now func() time.Time

	corr  CorrectionState
	avail AvailabilityState

	checks    int64
	startedAt time.Time
	last      Status

	status atomic.Pointer[Status]
}

type Option func(*Monitor)

func WithLogger(log logx.Logger) Option { return func(m *Monitor) { m.log = log } }
func WithBus(bus eventbus.Bus) Option   { return func(m *Monitor) { m.bus = bus } }

// WithClock replaces the wall clock used for event timestamps and outage
// accounting.
func WithClock(now func() time.Time) Option { return func(m *Monitor) { m.now = now } }

func New(cfg Config, f Fetcher, n Notifier, fm Formatter, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:    cfg.withDefaults(),
		fetch:  f,
		notify: n,
		format: fm,
		log:    logx.Nop(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	if m.log.IsZero() {
		m.log = logx.Nop()
	}
	m.last = Status{Phase: PhasePending, SourceUp: true}
	st := m.last
	m.status.Store(&st)
	return m
}

func (m *Monitor) Config() Config { return m.cfg }

// Status returns the state as of the last completed iteration.
func (m *Monitor) Status() Status { return *m.status.Load() }

// Run sends the startup notification and then runs one iteration per poll
// interval until ctx is done. Cancellation is observed only between
// iterations; an iteration in progress always runs to completion.
func (m *Monitor) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	work := context.WithoutCancel(ctx)
	m.startedAt = m.now()

	m.log.Info("monitor started",
		logx.String("placeholder", m.cfg.Rules.Placeholder),
		logx.String("expected", m.cfg.Rules.Expected),
		logx.Duration("interval", m.cfg.Availability.PollInterval),
		logx.Int("down_threshold", m.cfg.Availability.Threshold()),
	)
	if !m.cfg.SkipStartup {
		if d := m.notify.SendText(work, m.format.Startup(m.cfg, m.startedAt)); !d.OK() {
			m.log.Warn("startup notification failed", logx.Err(d.Err))
		}
	}

	for {
		m.RunOnce(work)

		t := time.NewTimer(m.cfg.Availability.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			m.log.Info("monitor stopped", logx.Int64("checks", m.checks))
			return ctx.Err()
		case <-t.C:
		}
	}
}

// RunOnce performs a single iteration: probe, availability step, fetch,
// correction step, dispatch. Failures, panics included, end the iteration
// and are logged; they never escape.
func (m *Monitor) RunOnce(ctx context.Context) {
	m.checks++
	at := m.now()
	rec := CheckRecord{At: at}

	defer func() {
		if r := recover(); r != nil {
			m.log.Error("check panicked", logx.Int64("check", m.checks), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			m.last.LastError = fmt.Sprintf("panic: %v", r)
			rec.Error = m.last.LastError
		}
		m.publishStatus(at, rec)
	}()

	probe := m.probe(ctx)
	rec.Up, rec.Latency = probe.Up, probe.Latency

	wasSuspect := m.avail.Suspect()
	if ev := StepAvailability(&m.avail, probe, at, m.cfg.Availability); ev != nil {
		m.dispatch(ctx, ev, at)
	} else if probe.Up && wasSuspect {
		m.log.Info("source recovered within grace period")
	}

	if !probe.Up {
		rec.Error = errString(probe.Err)
		m.last.LastError = rec.Error
		m.log.Warn("source unreachable",
			logx.Int("failures", m.avail.ConsecutiveFailures),
			logx.Int("threshold", m.cfg.Availability.Threshold()),
			logx.Err(probe.Err),
		)
		return
	}

	snap := m.fetchSnapshot(ctx)
	rec.Found = snap.Found
	if !snap.Found {
		rec.Error = snap.Error.Error()
		m.last.LastError = rec.Error
		m.log.Warn("record not read", logx.String("error", rec.Error))
		return
	}

	class := Classify(snap.RawValue, m.cfg.Rules.Placeholder, m.cfg.Rules.Expected)
	rec.Value, rec.Class = snap.RawValue, class.String()
	m.last.LastValue, m.last.LastClass, m.last.LastStatus = snap.RawValue, class.String(), snap.OverallStatus
	m.last.LastError = ""
	m.log.Debug("record read", logx.String("value", snap.RawValue), logx.String("class", class.String()), logx.String("status", string(snap.OverallStatus)))

	ev := StepCorrection(&m.corr, snap, m.cfg.Rules)
	if ev != nil {
		m.dispatch(ctx, ev, at)
		if d, ok := ev.(Detected); ok {
			m.sendProof(ctx, d, at)
		}
	}

	m.logProgress(class)
}

func (m *Monitor) probe(ctx context.Context) ProbeResult {
	c, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()
	return m.fetch.Probe(c)
}

func (m *Monitor) fetchSnapshot(ctx context.Context) ResultSnapshot {
	c, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
	defer cancel()
	snap := m.fetch.FetchSnapshot(c)
	if !snap.Found && snap.Error == nil {
		snap.Error = &ErrorDetail{Kind: ErrorStructural, Message: "record not found"}
	}
	return snap
}

func (m *Monitor) dispatch(ctx context.Context, ev Event, at time.Time) {
	d := m.notify.SendText(ctx, m.format.Event(ev, at))

	fields := []logx.Field{
		logx.String("event", string(ev.Kind())),
		logx.String("delivery", string(d.Outcome)),
		logx.Int("attempts", d.Attempts),
	}
	if v := EventValue(ev); v != "" {
		fields = append(fields, logx.String("value", v))
	}
	if d.OK() {
		m.log.Info("event sent", fields...)
	} else {
		m.log.Error("event not delivered", append(fields, logx.Err(d.Err))...)
	}

	if m.bus != nil {
		rec := EventRecord{
			At:        at,
			Kind:      ev.Kind(),
			Value:     EventValue(ev),
			Detail:    eventDetail(ev),
			Delivered: d.OK(),
			Attempts:  d.Attempts,
			Error:     errString(d.Err),
		}
		m.bus.Publish(eventbus.Event{Type: eventbus.TopicMonitorEvent, Time: at, Data: rec})
	}
}

func (m *Monitor) sendProof(ctx context.Context, ev Detected, at time.Time) {
	c, cancel := context.WithTimeout(ctx, m.cfg.ProofTimeout)
	img, err := m.fetch.CaptureProof(c)
	cancel()
	if err != nil || len(img) == 0 {
		m.log.Warn("proof capture failed", logx.Err(err))
		return
	}
	if d := m.notify.SendImage(ctx, img, m.format.ProofCaption(ev, at)); !d.OK() {
		m.log.Warn("proof not delivered", logx.Int("attempts", d.Attempts), logx.Err(d.Err))
	}
}

func (m *Monitor) logProgress(class ValueClass) {
	phase := m.corr.Phase(m.cfg.Rules)
	if m.checks%int64(m.cfg.StatusEvery) == 0 {
		m.log.Info("status",
			logx.Int64("checks", m.checks),
			logx.String("phase", string(phase)),
			logx.Int("verified", m.corr.VerifiedCount),
		)
	}
	if class == IsPlaceholder && m.checks%int64(m.cfg.WaitingEvery) == 0 {
		m.log.Info("still waiting for correction", logx.Int64("checks", m.checks), logx.String("value", m.cfg.Rules.Placeholder))
	}
}

func (m *Monitor) publishStatus(at time.Time, rec CheckRecord) {
	m.last.StartedAt = m.startedAt
	m.last.LastCheckAt = at
	m.last.Checks = m.checks
	m.last.Phase = m.corr.Phase(m.cfg.Rules)
	m.last.VerifiedCount = m.corr.VerifiedCount
	m.last.SourceUp = m.avail.DownSince.IsZero()
	m.last.DownSince = m.avail.DownSince
	m.last.DownNotified = m.avail.DownNotified
	m.last.ConsecutiveFailures = m.avail.ConsecutiveFailures

	st := m.last
	m.status.Store(&st)

	if m.bus != nil {
		rec.Phase, rec.VerifiedCount = st.Phase, st.VerifiedCount
		m.bus.Publish(eventbus.Event{Type: eventbus.TopicMonitorCheck, Time: at, Data: rec})
	}
}

func eventDetail(ev Event) string {
	switch e := ev.(type) {
	case Detected:
		return "class=" + e.Class.String() + " status=" + string(e.Status)
	case Confirmed:
		return fmt.Sprintf("checks=%d status=%s", e.Checks, e.Status)
	case Changed:
		return "status=" + string(e.Status)
	case Down:
		return fmt.Sprintf("failures=%d since=%s", e.Failures, e.Since.Format(time.RFC3339))
	case StillDown:
		return fmt.Sprintf("downtime=%dm", e.Minutes())
	case BackUp:
		return fmt.Sprintf("downtime=%dm", e.Minutes())
	}
	return ""
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
