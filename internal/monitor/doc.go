// Package monitor is the detection-and-notification engine.
//
// It owns two independent pieces of state:
//
//   - CorrectionState: whether a corrected value has been seen for the tracked
//     record, and how many consecutive reads have confirmed it.
//   - AvailabilityState: whether the source is currently unreachable, since
//     when, and whether the operator was told.
//
// Both are advanced by pure step functions (StepCorrection, StepAvailability)
// that return at most one Event per observation. Monitor drives them from a
// single goroutine, one check per poll interval, and turns events into
// notifications through a Formatter and a Notifier.
package monitor
