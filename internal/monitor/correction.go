package monitor

// DefaultVerifyThreshold is the number of consecutive confirming reads
// required before a correction is declared confirmed.
const DefaultVerifyThreshold = 3

// Rules are the constants a snapshot is classified against.
type Rules struct {
	Placeholder     string
	Expected        string
	VerifyThreshold int
}

func (r Rules) threshold() int {
	if r.VerifyThreshold <= 0 {
		return DefaultVerifyThreshold
	}
	return r.VerifyThreshold
}

// Phase is the user-visible position of the correction episode.
type Phase string

const (
	PhasePending   Phase = "pending"
	PhaseDetected  Phase = "detected"
	PhaseConfirmed Phase = "confirmed"
)

// CorrectionState is owned by the monitor loop for the process lifetime.
// Invariant: VerifiedCount > 0 implies CorrectionFound.
type CorrectionState struct {
	CorrectionFound bool
	VerifiedCount   int
}

func (s CorrectionState) Phase(r Rules) Phase {
	switch {
	case !s.CorrectionFound:
		return PhasePending
	case s.VerifiedCount >= r.threshold():
		return PhaseConfirmed
	default:
		return PhaseDetected
	}
}

// StepCorrection advances st by one snapshot and returns the event to emit,
// or nil. A snapshot that did not locate the record leaves st untouched.
func StepCorrection(st *CorrectionState, snap ResultSnapshot, r Rules) Event {
	if !snap.Found {
		return nil
	}

	class := Classify(snap.RawValue, r.Placeholder, r.Expected)
	switch {
	case class.Candidate():
		if !st.CorrectionFound {
			st.CorrectionFound = true
			st.VerifiedCount = 1
			return Detected{Value: snap.RawValue, Class: class, Status: snap.OverallStatus}
		}
		st.VerifiedCount++
		if st.VerifiedCount == r.threshold() {
			return Confirmed{Value: snap.RawValue, Status: snap.OverallStatus, Checks: st.VerifiedCount}
		}
		return nil

	case class == IsPlaceholder:
		if !st.CorrectionFound {
			return nil
		}
		*st = CorrectionState{}
		return Reverted{Value: snap.RawValue}

	default:
		// Non-numeric values are announced once and never counted.
		if st.CorrectionFound {
			return nil
		}
		st.CorrectionFound = true
		return Changed{Value: snap.RawValue, Status: snap.OverallStatus}
	}
}
