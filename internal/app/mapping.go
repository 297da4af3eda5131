package app

import (
	"fmt"
	"strings"
	"time"

	"correctionwatch/internal/config"
	"correctionwatch/internal/fetcher"
	"correctionwatch/internal/format"
	"correctionwatch/internal/monitor"
	"correctionwatch/internal/notifier"
	"correctionwatch/internal/observability/ops"
	"correctionwatch/internal/storage"
	kit "correctionwatch/internal/transport"
	"correctionwatch/internal/transport/telegram"
	logx "correctionwatch/pkg/logx"
)

const parseModeHTML = "HTML"

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapTelegramConfig(cfg *config.Config, d config.Durations) telegram.Config {
	// One Bot API call must fit the largest notifier attempt budget.
	timeout := d.ImageTimeout
	if d.TextTimeout > timeout {
		timeout = d.TextTimeout
	}
	return telegram.Config{
		Token:       strings.TrimSpace(cfg.Telegram.Token),
		URL:         strings.TrimSpace(cfg.Telegram.APIURL),
		HTTPTimeout: timeout,
	}
}

func mapNotifierConfig(cfg *config.Config, d config.Durations) notifier.Config {
	retryMax := 2
	if cfg.Notifier.RetryMax != nil {
		retryMax = *cfg.Notifier.RetryMax
	}
	return notifier.Config{
		RatePerSec:    cfg.Notifier.RatePerSec,
		RetryMax:      retryMax,
		RetryBase:     d.RetryBase,
		RetryMaxDelay: d.RetryMaxDelay,
		TextTimeout:   d.TextTimeout,
		ImageTimeout:  d.ImageTimeout,
		Target: kit.ChatTarget{
			ChatID:   int64(cfg.Telegram.ChatID),
			ThreadID: cfg.Telegram.ThreadID,
		},
		ParseMode:      parseModeHTML,
		DisablePreview: true,
	}
}

func mapFetcherConfig(cfg *config.Config, d config.Durations) fetcher.Config {
	t := cfg.Target
	return fetcher.Config{
		Mode:         fetcher.Mode(strings.ToLower(strings.TrimSpace(cfg.Fetcher.Mode))),
		BaseURL:      strings.TrimSpace(t.BaseURL),
		ProbeURL:     strings.TrimSpace(t.ProbeURL),
		Registration: strings.TrimSpace(t.RegistrationNo),
		SubjectCode:  strings.TrimSpace(t.SubjectCode),
		SubjectName:  strings.TrimSpace(t.SubjectName),
		Exam: fetcher.Exam{
			Name:     t.Exam.Name,
			Semester: t.Exam.Semester,
			Session:  t.Exam.Session,
			Held:     t.Exam.Held,
		},
		ValueColumn:  t.ValueColumn,
		ProbeTimeout: d.ProbeTimeout,
		FetchTimeout: d.FetchTimeout,
		ProofTimeout: d.ProofTimeout,
		WaitTimeout:  d.WaitTimeout,
		UserAgent:    strings.TrimSpace(cfg.Fetcher.UserAgent),
		ChromePath:   strings.TrimSpace(cfg.Fetcher.ChromePath),
	}
}

func mapMonitorConfig(cfg *config.Config, d config.Durations) monitor.Config {
	return monitor.Config{
		Rules: monitor.Rules{
			Placeholder:     strings.TrimSpace(cfg.Target.Placeholder),
			Expected:        strings.TrimSpace(cfg.Target.Expected),
			VerifyThreshold: monitor.DefaultVerifyThreshold,
		},
		Availability: monitor.AvailabilityPolicy{
			PollInterval:     d.PollInterval,
			GracePeriod:      d.GracePeriod,
			ReminderInterval: d.ReminderInterval,
		},
		// The fetcher bounds its own calls; these leave headroom over them.
		ProbeTimeout: d.ProbeTimeout + 5*time.Second,
		FetchTimeout: d.FetchTimeout + d.WaitTimeout + 5*time.Second,
		ProofTimeout: d.ProofTimeout + d.WaitTimeout + 5*time.Second,
		SkipStartup:  cfg.Monitor.SkipStartup,
	}
}

func mapFormatConfig(cfg *config.Config) (format.Config, error) {
	loc, err := format.LoadLocation(strings.TrimSpace(cfg.Monitor.Timezone))
	if err != nil {
		return format.Config{}, fmt.Errorf("monitor.timezone: %w", err)
	}
	return format.Config{
		Registration: strings.TrimSpace(cfg.Target.RegistrationNo),
		SubjectCode:  strings.TrimSpace(cfg.Target.SubjectCode),
		SubjectName:  strings.TrimSpace(cfg.Target.SubjectName),
		ExamName:     strings.TrimSpace(cfg.Target.Exam.Name),
		Location:     loc,
	}, nil
}

func mapOpsConfig(cfg *config.Config, d config.Durations) ops.Config {
	return ops.Config{
		Enabled:       cfg.Ops.Enabled,
		Addr:          strings.TrimSpace(cfg.Ops.Addr),
		Token:         strings.TrimSpace(cfg.Ops.Token),
		AllowInsecure: cfg.Ops.AllowInsecure,
		Pprof:         cfg.Ops.Pprof,
		ReadTimeout:   d.OpsRead,
		WriteTimeout:  d.OpsWrite,
	}
}

// mapStorageConfig reports false when the journal is disabled.
func mapStorageConfig(cfg *config.Config, d config.Durations) (storage.Config, bool) {
	if !cfg.StorageEnabled() {
		return storage.Config{}, false
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: d.StorageBusy,
	}, true
}

// Validate runs the checks that need component packages: cron spec,
// ops bind safety, and the timezone as the formatter resolves it. It is also
// installed as the config reload validator.
func Validate(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	d, err := cfg.Durations()
	if err != nil {
		return err
	}
	if _, err := monitor.ParseHeartbeat(cfg.Monitor.Heartbeat); err != nil {
		return fmt.Errorf("monitor.heartbeat: %w", err)
	}
	if _, err := mapFormatConfig(cfg); err != nil {
		return err
	}
	if oc := mapOpsConfig(cfg, d); oc.Enabled {
		if err := ops.CheckBind(oc); err != nil {
			return fmt.Errorf("ops: %w", err)
		}
	}
	return nil
}
