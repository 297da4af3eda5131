package monitor

import "time"

// Status is a point-in-time copy of the monitor's state, safe to hand to
// other goroutines.
type Status struct {
	StartedAt   time.Time `json:"started_at"`
	LastCheckAt time.Time `json:"last_check_at"`
	Checks      int64     `json:"checks"`

	Phase         Phase         `json:"phase"`
	VerifiedCount int           `json:"verified_count"`
	LastValue     string        `json:"last_value,omitempty"`
	LastClass     string        `json:"last_class,omitempty"`
	LastStatus    OverallStatus `json:"last_status,omitempty"`
	LastError     string        `json:"last_error,omitempty"`

	SourceUp            bool      `json:"source_up"`
	DownSince           time.Time `json:"down_since,omitempty"`
	DownNotified        bool      `json:"down_notified"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// CheckRecord is published on the bus after every iteration.
type CheckRecord struct {
	At            time.Time     `json:"at"`
	Up            bool          `json:"up"`
	Latency       time.Duration `json:"latency"`
	Found         bool          `json:"found"`
	Value         string        `json:"value,omitempty"`
	Class         string        `json:"class,omitempty"`
	Phase         Phase         `json:"phase"`
	VerifiedCount int           `json:"verified_count"`
	Error         string        `json:"error,omitempty"`
}

// EventRecord is published on the bus after an event has been dispatched.
type EventRecord struct {
	At        time.Time `json:"at"`
	Kind      EventKind `json:"kind"`
	Value     string    `json:"value,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Delivered bool      `json:"delivered"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
}
