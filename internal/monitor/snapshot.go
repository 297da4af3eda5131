package monitor

import (
	"fmt"
	"time"
)

// OverallStatus is the whole-record outcome shown on the result page.
// It is informational only and never drives a transition.
type OverallStatus string

const (
	StatusUnknown OverallStatus = "UNKNOWN"
	StatusPass    OverallStatus = "PASS"
	StatusFail    OverallStatus = "FAIL"
)

// ErrorKind separates transport failures from pages that loaded but did not
// contain the tracked record.
type ErrorKind string

const (
	ErrorTransient  ErrorKind = "transient"
	ErrorStructural ErrorKind = "structural"
)

type ErrorDetail struct {
	Kind    ErrorKind
	Message string
}

func (e *ErrorDetail) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ResultSnapshot is one fetch's outcome. Error is set iff Found is false.
type ResultSnapshot struct {
	Found         bool
	RawValue      string
	OverallStatus OverallStatus
	Error         *ErrorDetail
}

// FoundSnapshot builds a snapshot for a located record.
func FoundSnapshot(value string, status OverallStatus) ResultSnapshot {
	if status == "" {
		status = StatusUnknown
	}
	return ResultSnapshot{Found: true, RawValue: value, OverallStatus: status}
}

// FailedSnapshot builds a snapshot for a fetch that did not locate the record.
func FailedSnapshot(kind ErrorKind, format string, args ...any) ResultSnapshot {
	return ResultSnapshot{
		OverallStatus: StatusUnknown,
		Error:         &ErrorDetail{Kind: kind, Message: fmt.Sprintf(format, args...)},
	}
}

// ProbeResult is the outcome of a cheap reachability check.
type ProbeResult struct {
	Up         bool
	HTTPStatus int
	Latency    time.Duration
	Err        error
}

func Reachable() ProbeResult            { return ProbeResult{Up: true} }
func Unreachable(err error) ProbeResult { return ProbeResult{Err: err} }

func (p ProbeResult) String() string {
	if p.Up {
		return "reachable"
	}
	return "unreachable"
}
