package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"correctionwatch/internal/config"
	"correctionwatch/internal/eventbus"
	"correctionwatch/internal/fetcher"
	"correctionwatch/internal/format"
	"correctionwatch/internal/metrics"
	"correctionwatch/internal/monitor"
	"correctionwatch/internal/notifier"
	"correctionwatch/internal/observability/ops"
	"correctionwatch/internal/runtime/supervisor"
	"correctionwatch/internal/storage"
	"correctionwatch/internal/transport/telegram"
	logx "correctionwatch/pkg/logx"
	"correctionwatch/pkg/systemd"
)

type App struct {
	cfgm *config.ConfigManager

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	notif   *notifier.Service
	mon     *monitor.Monitor
	beat    *monitor.Heartbeat
	metrics *metrics.Metrics
	ops     *ops.Server
	sd      *systemd.Notifier

	sup        *supervisor.Supervisor
	staleAfter time.Duration
	startedAt  time.Time
}

// New loads the config and builds every component. Nothing runs until Start.
func New(cfgm *config.ConfigManager) (*App, error) {
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	d, err := cfg.Durations()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	appLog := log.With(logx.String("comp", "app"))
	bus := eventbus.New()

	var store storage.Store
	if sc, enabled := mapStorageConfig(cfg, d); enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		store = st
		appLog.Info("journal enabled", logx.String("driver", sc.Driver))
	}

	tg, err := telegram.New(mapTelegramConfig(cfg, d), log.With(logx.String("comp", "telegram")))
	if err != nil {
		closeStore(store)
		return nil, err
	}
	notif := notifier.New(mapNotifierConfig(cfg, d), tg, log.With(logx.String("comp", "notifier")), bus)

	fetch, err := fetcher.New(mapFetcherConfig(cfg, d), log.With(logx.String("comp", "fetcher")))
	if err != nil {
		closeStore(store)
		return nil, err
	}

	fc, err := mapFormatConfig(cfg)
	if err != nil {
		closeStore(store)
		return nil, err
	}
	fm := format.New(fc)

	mc := mapMonitorConfig(cfg, d)
	mon := monitor.New(mc, fetch, notif, fm,
		monitor.WithLogger(log.With(logx.String("comp", "monitor"))),
		monitor.WithBus(bus),
	)

	beat, err := monitor.NewHeartbeat(cfg.Monitor.Heartbeat, fc.Location, mon, notif, fm, log.With(logx.String("comp", "heartbeat")))
	if err != nil {
		closeStore(store)
		return nil, err
	}

	met := metrics.New()
	met.TrackBus(bus)

	var opsSrv *ops.Server
	if oc := mapOpsConfig(cfg, d); oc.Enabled {
		opsSrv = ops.New(oc, mon.Status, met.Handler(), log.With(logx.String("comp", "ops")))
	}

	return &App{
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		notif:   notif,
		mon:     mon,
		beat:    beat,
		metrics: met,
		ops:     opsSrv,
		sd:      systemd.New(cfg.Systemd.Notify, log.With(logx.String("comp", "systemd"))),
		// A healthy loop completes an iteration at least this often.
		staleAfter: 3*d.PollInterval + mc.ProbeTimeout + mc.FetchTimeout + mc.ProofTimeout + 2*time.Minute,
	}, nil
}

func closeStore(st storage.Store) {
	if st != nil {
		_ = st.Close()
	}
}

// Monitor exposes the running monitor (status, config).
func (a *App) Monitor() *monitor.Monitor { return a.mon }

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.startedAt = time.Now()
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return Validate(cfg) })

	// Consumers first so the first check is observed.
	a.sup.GoRestart("metrics", func(c context.Context) error { return a.metrics.Run(c, a.bus) })
	if a.store != nil {
		a.sup.GoRestart("journal", func(c context.Context) error {
			return storage.Record(c, a.bus, a.store, a.log.With(logx.String("comp", "journal")))
		})
	}
	checks, unsub := a.bus.Subscribe(16, eventbus.TopicMonitorCheck)
	a.sup.Go0("systemd.status", func(c context.Context) {
		defer unsub()
		a.statusLoop(c, checks)
	})
	if a.ops != nil {
		a.sup.GoRestart("ops", a.ops.Run, supervisor.WithMaxRestarts(5))
	}
	if a.beat.Enabled() {
		a.sup.GoRestart("heartbeat", a.beat.Run)
	}

	sub := a.cfgm.Subscribe(4)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch)

	a.sup.Go("monitor", a.mon.Run)
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		if err := a.sd.Watchdog(c, a.healthy); err != nil {
			a.log.Warn("systemd watchdog disabled", logx.Err(err))
		}
	})

	a.sd.Ready()
	a.log.Info("app started", logx.Duration("stale_after", a.staleAfter))
	return nil
}

// healthy reports whether the monitor loop finished an iteration recently.
func (a *App) healthy() bool {
	st := a.mon.Status()
	ref := st.LastCheckAt
	if ref.IsZero() {
		ref = a.startedAt
	}
	return time.Since(ref) < a.staleAfter
}

func (a *App) statusLoop(ctx context.Context, checks <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-checks:
			if !ok {
				return
			}
			a.sd.Status(statusLine(a.mon.Status()))
		}
	}
}

func statusLine(st monitor.Status) string {
	source := "up"
	if !st.SourceUp {
		source = "down"
	}
	return fmt.Sprintf("phase=%s verified=%d source=%s checks=%d", st.Phase, st.VerifiedCount, source, st.Checks)
}

// reloadLoop applies hot-reloadable sections and warns about the rest.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			sections, attrs := config.SummarizeConfigChange(last, next)
			last = next
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}

			a.logs.Apply(mapLogConfig(next))
			if d, err := next.Durations(); err != nil {
				a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
			} else {
				a.notif.Apply(mapNotifierConfig(next, d))
			}

			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
			if restart := config.NeedsRestart(sections); len(restart) > 0 {
				a.log.Warn("restart required for config changes to take effect", logx.String("sections", strings.Join(restart, ",")))
			}
		}
	}
}

// Stop cancels every loop and waits for them within ctx. An in-flight
// monitor iteration is allowed to finish so its notifications go out.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		closeStore(a.store)
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()
	a.sup.Cancel()

	var firstErr error
	a.step(ctx, "supervisor", 90*time.Second, func(c context.Context) error { return a.sup.Wait(c) }, &firstErr)
	a.step(ctx, "storage", 2*time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	}, &firstErr)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return firstErr
}

// step runs one shutdown step bounded by limit and the caller's deadline.
// A step that overruns is abandoned and logged.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error, firstErr *error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("step", name), logx.Err(err))
			if *firstErr == nil {
				*firstErr = err
			}
		}
		a.log.Debug("stop step end", logx.String("step", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("step", name), logx.Duration("elapsed", time.Since(start)))
		if *firstErr == nil {
			*firstErr = fmt.Errorf("stop step %s: %w", name, stepCtx.Err())
		}
	}
}
