package monitor

import "time"

const (
	DefaultPollInterval     = 30 * time.Second
	DefaultGracePeriod      = 300 * time.Second
	DefaultReminderInterval = time.Hour
)

// AvailabilityPolicy holds the timing knobs of outage reporting.
type AvailabilityPolicy struct {
	PollInterval     time.Duration
	GracePeriod      time.Duration
	ReminderInterval time.Duration
}

// Threshold is the number of consecutive unreachable probes that must be
// observed before an outage is reported: ceil(grace/poll), at least 1.
func (p AvailabilityPolicy) Threshold() int {
	poll := p.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if p.GracePeriod <= 0 {
		return 1
	}
	n := int((p.GracePeriod + poll - 1) / poll)
	if n < 1 {
		n = 1
	}
	return n
}

// AvailabilityState is owned by the monitor loop for the process lifetime.
// Zero times mean absent.
//
// Invariants: DownNotified implies !DownSince.IsZero();
// DownSince.IsZero() implies !DownNotified and ConsecutiveFailures == 0.
type AvailabilityState struct {
	DownSince           time.Time
	DownNotified        bool
	ConsecutiveFailures int
	LastReminderAt      time.Time
}

// Suspect reports an outage that has started but not yet been reported.
func (s AvailabilityState) Suspect() bool { return !s.DownSince.IsZero() && !s.DownNotified }

// StepAvailability advances st by one probe outcome observed at now and
// returns the event to emit, or nil. At most one event per probe.
func StepAvailability(st *AvailabilityState, probe ProbeResult, now time.Time, p AvailabilityPolicy) Event {
	if probe.Up {
		if st.DownSince.IsZero() {
			st.ConsecutiveFailures = 0
			return nil
		}
		since, notified := st.DownSince, st.DownNotified
		*st = AvailabilityState{}
		if !notified {
			// Recovered inside the grace period; nobody was told it was down.
			return nil
		}
		return BackUp{Since: since, Downtime: now.Sub(since)}
	}

	if st.DownSince.IsZero() {
		st.DownSince = now
	}
	st.ConsecutiveFailures++

	if !st.DownNotified {
		if st.ConsecutiveFailures < p.Threshold() {
			return nil
		}
		st.DownNotified = true
		return Down{Since: st.DownSince, Failures: st.ConsecutiveFailures}
	}

	if p.ReminderInterval <= 0 {
		return nil
	}
	last := st.LastReminderAt
	if last.IsZero() {
		last = st.DownSince
	}
	if now.Sub(last) < p.ReminderInterval {
		return nil
	}
	st.LastReminderAt = now
	return StillDown{Since: st.DownSince, Downtime: now.Sub(st.DownSince)}
}
