package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	logx "correctionwatch/pkg/logx"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Validate checks the fields the process cannot start without. All problems
// are reported together.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.Telegram.Token) == "" {
		bad("telegram.token is required")
	}
	if c.Telegram.ChatID == 0 {
		bad("telegram.chat_id is required")
	}
	if c.Telegram.ThreadID < 0 {
		bad("telegram.thread_id must be >= 0")
	}

	t := c.Target
	if base := strings.TrimSpace(t.BaseURL); base == "" {
		bad("target.base_url is required")
	} else if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
		bad("target.base_url %q is not an absolute url", base)
	}
	if p := strings.TrimSpace(t.ProbeURL); p != "" {
		if u, err := url.Parse(p); err != nil || u.Scheme == "" || u.Host == "" {
			bad("target.probe_url %q is not an absolute url", p)
		}
	}
	if strings.TrimSpace(t.RegistrationNo) == "" {
		bad("target.registration_no is required")
	}
	if strings.TrimSpace(t.SubjectCode) == "" {
		bad("target.subject_code is required")
	}
	placeholder, expected := strings.TrimSpace(t.Placeholder), strings.TrimSpace(t.Expected)
	if placeholder == "" {
		bad("target.placeholder is required")
	}
	if expected == "" {
		bad("target.expected is required")
	}
	if placeholder != "" && placeholder == expected {
		bad("target.placeholder and target.expected must differ")
	}
	if t.ValueColumn < 0 {
		bad("target.value_column must be >= 0")
	}

	if _, err := c.Durations(); err != nil {
		errs = append(errs, err)
	}
	if tz := strings.TrimSpace(c.Monitor.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			bad("monitor.timezone %q: %v", tz, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Fetcher.Mode)) {
	case "", "browser", "http":
	default:
		bad("fetcher.mode %q: want browser or http", c.Fetcher.Mode)
	}

	if c.Notifier.RatePerSec < 0 {
		bad("notifier.rate_per_sec must be >= 0")
	}
	if c.Notifier.RetryMax != nil && *c.Notifier.RetryMax < 0 {
		bad("notifier.retry_max must be >= 0")
	}

	if !logx.ValidLevel(c.Logging.Level) {
		bad("logging.level %q is unknown", c.Logging.Level)
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		bad("logging.file.path is required when logging.file.enabled")
	}

	if s := c.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				bad("storage.path is required for driver %q", s.Driver)
			}
		default:
			bad("storage.driver %q: want none, file or sqlite", s.Driver)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// StorageEnabled reports whether an event journal is configured.
func (c *Config) StorageEnabled() bool {
	if c.Storage == nil {
		return false
	}
	d := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	return d != "" && d != "none"
}
