package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a config duration. Empty means 0.
// path is the dotted config key, used in error messages.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Durations resolves every duration field of cfg, applying defaults.
type Durations struct {
	PollInterval     time.Duration
	GracePeriod      time.Duration
	ReminderInterval time.Duration

	ProbeTimeout time.Duration
	FetchTimeout time.Duration
	ProofTimeout time.Duration
	WaitTimeout  time.Duration

	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	TextTimeout   time.Duration
	ImageTimeout  time.Duration

	StorageBusy time.Duration

	OpsRead  time.Duration
	OpsWrite time.Duration
}

const (
	DefaultPollInterval     = 30 * time.Second
	DefaultGracePeriod      = 300 * time.Second
	DefaultReminderInterval = time.Hour

	DefaultProbeTimeout = 10 * time.Second
	DefaultFetchTimeout = 40 * time.Second
	DefaultProofTimeout = 30 * time.Second
	DefaultWaitTimeout  = 30 * time.Second

	DefaultRetryBase     = time.Second
	DefaultRetryMaxDelay = 10 * time.Second
	DefaultTextTimeout   = 20 * time.Second
	DefaultImageTimeout  = 60 * time.Second
)

type durationField struct {
	dst  *time.Duration
	path string
	raw  string
	def  time.Duration
}

func (c *Config) Durations() (Durations, error) {
	var (
		d   Durations
		err error
	)
	fields := []durationField{
		{&d.PollInterval, "monitor.poll_interval", c.Monitor.PollInterval, DefaultPollInterval},
		{&d.GracePeriod, "monitor.grace_period", c.Monitor.GracePeriod, DefaultGracePeriod},
		{&d.ReminderInterval, "monitor.reminder_interval", c.Monitor.ReminderInterval, DefaultReminderInterval},
		{&d.ProbeTimeout, "fetcher.probe_timeout", c.Fetcher.ProbeTimeout, DefaultProbeTimeout},
		{&d.FetchTimeout, "fetcher.fetch_timeout", c.Fetcher.FetchTimeout, DefaultFetchTimeout},
		{&d.ProofTimeout, "fetcher.proof_timeout", c.Fetcher.ProofTimeout, DefaultProofTimeout},
		{&d.WaitTimeout, "fetcher.wait_timeout", c.Fetcher.WaitTimeout, DefaultWaitTimeout},
		{&d.RetryBase, "notifier.retry_base", c.Notifier.RetryBase, DefaultRetryBase},
		{&d.RetryMaxDelay, "notifier.retry_max_delay", c.Notifier.RetryMaxDelay, DefaultRetryMaxDelay},
		{&d.TextTimeout, "notifier.text_timeout", c.Notifier.TextTimeout, DefaultTextTimeout},
		{&d.ImageTimeout, "notifier.image_timeout", c.Notifier.ImageTimeout, DefaultImageTimeout},
		{&d.OpsRead, "ops.read_timeout", c.Ops.ReadTimeout, 0},
		{&d.OpsWrite, "ops.write_timeout", c.Ops.WriteTimeout, 0},
	}
	if c.Storage != nil {
		fields = append(fields, durationField{&d.StorageBusy, "storage.busy_timeout", c.Storage.BusyTimeout, 0})
	}
	for _, f := range fields {
		if *f.dst, err = ParseDurationOrDefault(f.path, f.raw, f.def); err != nil {
			return Durations{}, err
		}
	}
	return d, nil
}
