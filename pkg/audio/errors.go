package audio

import "errors"

// Sentinel errors shared across the pipeline. Wrap them with fmt.Errorf and
// %w so callers can classify failures with errors.Is while the message keeps
// the expected-vs-actual detail.
var (
	// ErrInvalidFormat marks a configuration-time format that violates the
	// pipeline limits (non-positive rate, too many channels, unknown kind).
	ErrInvalidFormat = errors.New("audio: invalid format")

	// ErrFormatMismatch marks a buffer arriving at a node in a format the
	// node was not configured for. Never converted implicitly.
	ErrFormatMismatch = errors.New("audio: format mismatch")

	// ErrInvalidConfig marks any other construction-time configuration
	// failure (bad weights, non-positive durations, zero inputs).
	ErrInvalidConfig = errors.New("audio: invalid configuration")

	// ErrSourceUnavailable marks a capture device that could not be opened
	// or that disappeared mid-session.
	ErrSourceUnavailable = errors.New("audio: source unavailable")

	// ErrClosed marks an operation on a node that has already been stopped
	// or closed.
	ErrClosed = errors.New("audio: node closed")

	// ErrReadTimeout is returned by [ReadWithTimeout] when no buffer became
	// available within the deadline.
	ErrReadTimeout = errors.New("audio: read timed out")
)
