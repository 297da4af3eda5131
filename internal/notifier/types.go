package notifier

import (
	"time"

	kit "correctionwatch/internal/transport"
)

// Config controls delivery.
type Config struct {
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	TextTimeout   time.Duration
	ImageTimeout  time.Duration

	Target         kit.ChatTarget
	ParseMode      string
	DisablePreview bool
}

// Attempts is the total number of send attempts per message.
func (c Config) Attempts() int {
	if c.RetryMax <= 0 {
		return 1
	}
	return 1 + c.RetryMax
}

type Outcome string

const (
	Delivered Outcome = "delivered"
	Failed    Outcome = "failed"
	// Unconfirmed means the last attempt reached Telegram but got no reply.
	// It is not retried.
	Unconfirmed Outcome = "unconfirmed"
)

// Delivery is the result of one logical send, after retries.
type Delivery struct {
	Outcome  Outcome
	Attempts int
	Err      error
}

func (d Delivery) OK() bool { return d.Outcome == Delivered }

func (d Delivery) String() string {
	if d.OK() {
		return string(Delivered)
	}
	out := d.Outcome
	if out == "" {
		out = Failed
	}
	if d.Err != nil {
		return string(out) + ": " + d.Err.Error()
	}
	return string(out)
}

// DeliveryEvent is published on the event bus after every delivery.
// Keep it small; subscribers may log or persist it.
type DeliveryEvent struct {
	Kind     string    `json:"kind"`
	ChatID   int64     `json:"chat_id"`
	ThreadID int       `json:"thread_id,omitempty"`
	Outcome  Outcome   `json:"outcome"`
	Attempts int       `json:"attempts"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}
