// Package audio defines the data model and node contracts for the tapedeck
// processing pipeline: sample formats, timestamped buffers, and the
// Source/Processor/Sink interfaces every concrete node implements.
//
// Samples flow through the pipeline as interleaved float32 planes in the
// range [-1.0, 1.0] regardless of the declared [SampleKind]; the kind only
// matters at the edges (capture in, file encoding out).
package audio

import "fmt"

// SampleKind enumerates the on-the-wire sample representations a stream may
// declare. Processing always happens on float32 planes; the kind is carried
// so that sinks can encode back to the original representation.
type SampleKind string

const (
	KindFloat32 SampleKind = "float32"
	KindInt16   SampleKind = "int16"
	KindInt24   SampleKind = "int24"
	KindInt32   SampleKind = "int32"
)

// IsValid reports whether k is a recognised sample kind.
func (k SampleKind) IsValid() bool {
	switch k {
	case KindFloat32, KindInt16, KindInt24, KindInt32:
		return true
	}
	return false
}

// BitDepth returns the number of bits per encoded sample.
func (k SampleKind) BitDepth() int {
	switch k {
	case KindInt16:
		return 16
	case KindInt24:
		return 24
	default:
		return 32
	}
}

const (
	// MaxSampleRate is the highest sample rate a [Format] may declare.
	MaxSampleRate = 192000

	// MaxChannels is the highest channel count a [Format] may declare.
	MaxChannels = 32
)

// Format describes the shape of an audio stream: sample rate, channel count
// and sample representation. Two formats are compatible only when all three
// fields match exactly; nothing in the pipeline converts implicitly.
type Format struct {
	// SampleRate in Hz (e.g., 48000).
	SampleRate int

	// Channels is the interleaved channel count (1 mono, 2 stereo, ...).
	Channels int

	// Kind is the declared sample representation.
	Kind SampleKind
}

// Validate checks the format against the pipeline limits. It returns an
// error naming the offending field, or nil.
func (f Format) Validate() error {
	if f.SampleRate <= 0 || f.SampleRate > MaxSampleRate {
		return fmt.Errorf("%w: sample_rate %d out of range (0, %d]", ErrInvalidFormat, f.SampleRate, MaxSampleRate)
	}
	if f.Channels <= 0 || f.Channels > MaxChannels {
		return fmt.Errorf("%w: channels %d out of range (0, %d]", ErrInvalidFormat, f.Channels, MaxChannels)
	}
	if !f.Kind.IsValid() {
		return fmt.Errorf("%w: unknown sample kind %q", ErrInvalidFormat, f.Kind)
	}
	return nil
}

// Compatible reports whether f and other match exactly in all three fields.
func (f Format) Compatible(other Format) bool {
	return f == other
}

// Mismatch returns the name of the first field on which f and other differ,
// or "" when the formats are compatible. Used to build format-mismatch
// errors that name the offending field.
func (f Format) Mismatch(other Format) string {
	switch {
	case f.SampleRate != other.SampleRate:
		return "sample_rate"
	case f.Channels != other.Channels:
		return "channels"
	case f.Kind != other.Kind:
		return "kind"
	}
	return ""
}

// String renders the format in a compact human-readable form,
// e.g. "48000Hz stereo float32".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s %s", f.SampleRate, ch, f.Kind)
}

// MismatchError builds a format-mismatch error carrying the expected and
// actual formats and naming the first differing field. Returns nil when the
// formats are compatible.
func MismatchError(expected, actual Format) error {
	field := expected.Mismatch(actual)
	if field == "" {
		return nil
	}
	return fmt.Errorf("%w: %s differs: expected %s, got %s", ErrFormatMismatch, field, expected, actual)
}
