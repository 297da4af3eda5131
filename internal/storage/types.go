package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry records one dispatched monitor event.
// Keep it compact and schema-stable.
type Entry struct {
	At        time.Time `json:"at"`
	Kind      string    `json:"kind"`
	Value     string    `json:"value,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Delivered bool      `json:"delivered"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
}
