package monitor

import "time"

// EventKind names a user-facing event. The set is closed.
type EventKind string

const (
	KindDetected  EventKind = "detected"
	KindConfirmed EventKind = "confirmed"
	KindReverted  EventKind = "reverted"
	KindChanged   EventKind = "changed"
	KindDown      EventKind = "down"
	KindStillDown EventKind = "still_down"
	KindBackUp    EventKind = "back_up"
)

// Event is emitted by a step function at most once per observation.
// Only the variants declared in this file implement it.
type Event interface {
	Kind() EventKind
	isEvent()
}

// Detected is the first non-placeholder numeric value of an episode.
type Detected struct {
	Value  string
	Class  ValueClass
	Status OverallStatus
}

// Confirmed fires once, on the verification threshold'th consecutive
// confirming read.
type Confirmed struct {
	Value  string
	Status OverallStatus
	Checks int
}

// Reverted fires when the placeholder reappears after a detection.
type Reverted struct {
	Value string
}

// Changed is a one-shot notice for a non-numeric, non-placeholder value.
type Changed struct {
	Value  string
	Status OverallStatus
}

// Down fires once per outage, after the grace period.
type Down struct {
	Since    time.Time
	Failures int
}

// StillDown is the periodic reminder during a notified outage.
type StillDown struct {
	Since    time.Time
	Downtime time.Duration
}

// BackUp closes a notified outage.
type BackUp struct {
	Since    time.Time
	Downtime time.Duration
}

func (Detected) Kind() EventKind  { return KindDetected }
func (Confirmed) Kind() EventKind { return KindConfirmed }
func (Reverted) Kind() EventKind  { return KindReverted }
func (Changed) Kind() EventKind   { return KindChanged }
func (Down) Kind() EventKind      { return KindDown }
func (StillDown) Kind() EventKind { return KindStillDown }
func (BackUp) Kind() EventKind    { return KindBackUp }

func (Detected) isEvent()  {}
func (Confirmed) isEvent() {}
func (Reverted) isEvent()  {}
func (Changed) isEvent()   {}
func (Down) isEvent()      {}
func (StillDown) isEvent() {}
func (BackUp) isEvent()    {}

func (e StillDown) Minutes() int { return int(e.Downtime / time.Minute) }
func (e BackUp) Minutes() int    { return int(e.Downtime / time.Minute) }

// EventValue returns the observed value carried by a correction event, or "".
func EventValue(ev Event) string {
	switch e := ev.(type) {
	case Detected:
		return e.Value
	case Confirmed:
		return e.Value
	case Reverted:
		return e.Value
	case Changed:
		return e.Value
	}
	return ""
}
