package app

import (
	"context"
	"fmt"
	"time"

	"correctionwatch/internal/config"
	"correctionwatch/internal/fetcher"
	"correctionwatch/internal/format"
	"correctionwatch/internal/monitor"
	"correctionwatch/internal/notifier"
	"correctionwatch/internal/storage"
	"correctionwatch/internal/transport/telegram"
	logx "correctionwatch/pkg/logx"
)

// CheckReport is the outcome of one probe and read, without notifications
// or state changes.
type CheckReport struct {
	URL      string
	Probe    monitor.ProbeResult
	Snapshot monitor.ResultSnapshot
	Class    monitor.ValueClass
	// Fetched is false when the probe failed and the read was skipped.
	Fetched bool
}

// Check probes the site and reads the record once.
func Check(ctx context.Context, cfg *config.Config, log logx.Logger) (CheckReport, error) {
	d, err := cfg.Durations()
	if err != nil {
		return CheckReport{}, err
	}
	f, err := fetcher.New(mapFetcherConfig(cfg, d), log)
	if err != nil {
		return CheckReport{}, err
	}

	rep := CheckReport{URL: f.URL(), Probe: f.Probe(ctx)}
	if !rep.Probe.Up {
		return rep, nil
	}
	rep.Snapshot = f.FetchSnapshot(ctx)
	rep.Fetched = true
	if rep.Snapshot.Found {
		rules := mapMonitorConfig(cfg, d).Rules
		rep.Class = monitor.Classify(rep.Snapshot.RawValue, rules.Placeholder, rules.Expected)
	}
	return rep, nil
}

// History returns the last n journal entries, oldest first.
func History(ctx context.Context, cfg *config.Config, n int, log logx.Logger) ([]storage.Entry, error) {
	d, err := cfg.Durations()
	if err != nil {
		return nil, err
	}
	sc, enabled := mapStorageConfig(cfg, d)
	if !enabled {
		return nil, storage.ErrDisabled
	}
	st, err := storage.Open(sc, log)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.Recent(ctx, n)
}

// SendTest delivers a one-line test message to the configured chat.
func SendTest(ctx context.Context, cfg *config.Config, log logx.Logger) (notifier.Delivery, error) {
	d, err := cfg.Durations()
	if err != nil {
		return notifier.Delivery{}, err
	}
	tg, err := telegram.New(mapTelegramConfig(cfg, d), log)
	if err != nil {
		return notifier.Delivery{}, err
	}
	fc, err := mapFormatConfig(cfg)
	if err != nil {
		return notifier.Delivery{}, err
	}
	n := notifier.New(mapNotifierConfig(cfg, d), tg, log, nil)
	text := fmt.Sprintf("✅ <b>Test message</b>\n%s", format.New(fc).Time(time.Now()))
	return n.SendText(ctx, text), nil
}
