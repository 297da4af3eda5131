package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Config is the on-disk configuration. Durations are Go duration strings
// ("30s", "1h") and are resolved by the consumers via ParseDurationOrDefault.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Target   TargetConfig   `json:"target"`
	Monitor  MonitorConfig  `json:"monitor"`
	Fetcher  FetcherConfig  `json:"fetcher"`
	Notifier NotifierConfig `json:"notifier"`
	Logging  LoggingConfig  `json:"logging"`

	// Storage is optional; nil means the event journal is disabled.
	Storage *StorageConfig `json:"storage,omitempty"`
	Ops     OpsConfig      `json:"ops"`
	Systemd SystemdConfig  `json:"systemd"`
}

type TelegramConfig struct {
	Token    string `json:"token"`
	ChatID   ChatID `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	// APIURL overrides the Bot API endpoint (local bot API servers).
	APIURL string `json:"api_url,omitempty"`
}

// ChatID accepts both `chat_id: 123` and `chat_id: "123"`.
type ChatID int64

func (c *ChatID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = 0
		return nil
	}
	var s string
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	} else {
		s = string(b)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*c = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("chat_id: %q is not an integer", s)
	}
	*c = ChatID(n)
	return nil
}

func (c ChatID) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(c), 10)), nil
}

type TargetConfig struct {
	BaseURL        string `json:"base_url"`
	ProbeURL       string `json:"probe_url,omitempty"`
	RegistrationNo string `json:"registration_no"`
	SubjectCode    string `json:"subject_code"`
	SubjectName    string `json:"subject_name,omitempty"`
	Exam           Exam   `json:"exam"`

	Placeholder string `json:"placeholder"`
	Expected    string `json:"expected"`
	// ValueColumn is the zero-based cell index of the tracked value.
	// 0 selects the default (3).
	ValueColumn int `json:"value_column,omitempty"`
}

type Exam struct {
	Name     string `json:"name"`
	Semester string `json:"semester"`
	Session  string `json:"session"`
	Held     string `json:"held"`
}

type MonitorConfig struct {
	PollInterval     string `json:"poll_interval,omitempty"`
	GracePeriod      string `json:"grace_period,omitempty"`
	ReminderInterval string `json:"reminder_interval,omitempty"`
	Timezone         string `json:"timezone,omitempty"`
	// Heartbeat is an optional cron spec ("0 9 * * *", "@daily").
	Heartbeat string `json:"heartbeat,omitempty"`
	// SkipStartup suppresses the startup notification.
	SkipStartup bool `json:"skip_startup,omitempty"`
}

type FetcherConfig struct {
	Mode         string `json:"mode,omitempty"`
	ProbeTimeout string `json:"probe_timeout,omitempty"`
	FetchTimeout string `json:"fetch_timeout,omitempty"`
	ProofTimeout string `json:"proof_timeout,omitempty"`
	WaitTimeout  string `json:"wait_timeout,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
	ChromePath   string `json:"chrome_path,omitempty"`
}

// NotifierConfig controls delivery to Telegram.
//
// Defaults (when fields are omitted/zero):
//   - rate_per_sec: 3
//   - retry_max: 2 (three attempts in total)
//   - retry_base: "1s"
//   - retry_max_delay: "10s"
//   - text_timeout: "20s"
//   - image_timeout: "60s"
type NotifierConfig struct {
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      *int   `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	TextTimeout   string `json:"text_timeout,omitempty"`
	ImageTimeout  string `json:"image_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the event journal.
// driver: "none" (default), "file" (JSON lines) or "sqlite".
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// OpsConfig controls the local HTTP endpoint (health, metrics, pprof).
type OpsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`
	// AllowInsecure permits a non-loopback addr without a token.
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	WriteTimeout  string `json:"write_timeout,omitempty"`
}

type SystemdConfig struct {
	// Notify sends READY/WATCHDOG/STOPPING to systemd when NOTIFY_SOCKET is set.
	Notify bool `json:"notify"`
}
