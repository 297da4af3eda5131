package config

import (
	"reflect"
	"sort"
	"strings"

	logx "correctionwatch/pkg/logx"
)

// Sections that a running process applies without a restart.
var hotSections = map[string]bool{
	"logging":  true,
	"notifier": true,
}

// SummarizeConfigChange returns the changed top-level sections (sorted) and
// safe attrs for logging. Tokens are never included, only whether one is set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 16)

	o, n := oldCfg.Telegram, newCfg.Telegram
	if o.ChatID != n.ChatID || o.ThreadID != n.ThreadID || o.APIURL != n.APIURL || o.Token != n.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int64("telegram.chat_id", int64(n.ChatID)),
			logx.Int("telegram.thread_id", n.ThreadID),
			logx.Bool("telegram.token_changed", o.Token != n.Token),
		)
	}

	if !reflect.DeepEqual(oldCfg.Target, newCfg.Target) {
		changed = append(changed, "target")
		attrs = append(attrs,
			logx.String("target.subject_code", newCfg.Target.SubjectCode),
			logx.String("target.expected", newCfg.Target.Expected),
		)
	}

	if oldCfg.Monitor != newCfg.Monitor {
		changed = append(changed, "monitor")
		attrs = append(attrs,
			logx.String("monitor.poll_interval", strings.TrimSpace(newCfg.Monitor.PollInterval)),
			logx.String("monitor.grace_period", strings.TrimSpace(newCfg.Monitor.GracePeriod)),
			logx.String("monitor.heartbeat", strings.TrimSpace(newCfg.Monitor.Heartbeat)),
		)
	}

	if oldCfg.Fetcher != newCfg.Fetcher {
		changed = append(changed, "fetcher")
		attrs = append(attrs, logx.String("fetcher.mode", newCfg.Fetcher.Mode))
	}

	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		retry := -1
		if newCfg.Notifier.RetryMax != nil {
			retry = *newCfg.Notifier.RetryMax
		}
		attrs = append(attrs,
			logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec),
			logx.Int("notifier.retry_max", retry),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.StorageEnabled() != newCfg.StorageEnabled() || !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		driver := "none"
		if newCfg.Storage != nil && newCfg.StorageEnabled() {
			driver = strings.ToLower(strings.TrimSpace(newCfg.Storage.Driver))
		}
		attrs = append(attrs, logx.String("storage.driver", driver))
	}

	if oldCfg.Ops != newCfg.Ops {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", strings.TrimSpace(newCfg.Ops.Addr)),
			logx.Bool("ops.token_set", strings.TrimSpace(newCfg.Ops.Token) != ""),
			logx.Bool("ops.pprof", newCfg.Ops.Pprof),
		)
	}

	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		attrs = append(attrs, logx.Bool("systemd.notify", newCfg.Systemd.Notify))
	}

	sort.Strings(changed)
	return changed, attrs
}

// NeedsRestart returns the sections of changed that only take effect after
// a restart.
func NeedsRestart(changed []string) []string {
	var out []string
	for _, s := range changed {
		if !hotSections[s] {
			out = append(out, s)
		}
	}
	return out
}
