package processors

import (
	"fmt"
	"time"

	"github.com/MrWong99/tapedeck/pkg/audio"
)

var _ audio.Processor = (*SilenceDetector)(nil)

const (
	// DefaultSilenceThresholdDB is a reasonable speech-vs-silence boundary.
	// Usable range runs from about -20 dB (aggressive) to -50 dB (very
	// sensitive).
	DefaultSilenceThresholdDB = -40.0

	// DefaultMinSilence is how long energy must stay below threshold before
	// the stream is declared silent.
	DefaultMinSilence = time.Second
)

// VADState classifies the current stream activity.
type VADState string

const (
	VADActive VADState = "active"
	VADSilent VADState = "silent"
)

// SilenceDetector classifies buffers as silent or active by RMS energy and
// passes them through untouched. To prevent flapping, "silent" is declared
// only after energy stays below the threshold for a minimum duration; a
// single above-threshold buffer flips back to active immediately.
//
// The running silent/active counts and ratio feed downstream cost decisions
// such as skipping transcription of quiet stretches.
type SilenceDetector struct {
	thresholdDB float64
	minSilence  time.Duration

	state VADState
	// belowSamples accumulates per-channel frames of consecutive
	// below-threshold audio; compared against minSilence via the stream
	// sample rate.
	belowSamples int

	silentBuffers uint64
	activeBuffers uint64

	seq   uint64
	stats audio.ProcessorStats
}

// SilenceOption configures a [SilenceDetector] during construction.
type SilenceOption func(*SilenceDetector)

// WithThresholdDB overrides [DefaultSilenceThresholdDB]. The value must be
// negative (dBFS).
func WithThresholdDB(db float64) SilenceOption {
	return func(d *SilenceDetector) {
		d.thresholdDB = db
	}
}

// WithMinSilence overrides [DefaultMinSilence].
func WithMinSilence(dur time.Duration) SilenceOption {
	return func(d *SilenceDetector) {
		d.minSilence = dur
	}
}

// NewSilenceDetector creates a detector in the active state. Fails fast on a
// non-negative threshold or non-positive hold duration.
func NewSilenceDetector(opts ...SilenceOption) (*SilenceDetector, error) {
	d := &SilenceDetector{
		thresholdDB: DefaultSilenceThresholdDB,
		minSilence:  DefaultMinSilence,
		state:       VADActive,
	}
	for _, o := range opts {
		o(d)
	}

	if d.thresholdDB >= 0 {
		return nil, fmt.Errorf("%w: silence threshold %.1f dB must be negative", audio.ErrInvalidConfig, d.thresholdDB)
	}
	if d.minSilence <= 0 {
		return nil, fmt.Errorf("%w: minimum silence duration %v must be positive", audio.ErrInvalidConfig, d.minSilence)
	}
	return d, nil
}

// State returns the current classification.
func (d *SilenceDetector) State() VADState { return d.state }

// SilentBuffers returns how many buffers were classified silent.
func (d *SilenceDetector) SilentBuffers() uint64 { return d.silentBuffers }

// ActiveBuffers returns how many buffers were classified active.
func (d *SilenceDetector) ActiveBuffers() uint64 { return d.activeBuffers }

// SilenceRatio returns the fraction of processed buffers classified silent,
// in [0, 1]. Returns 0 before any buffer has been processed.
func (d *SilenceDetector) SilenceRatio() float64 {
	total := d.silentBuffers + d.activeBuffers
	if total == 0 {
		return 0
	}
	return float64(d.silentBuffers) / float64(total)
}

// Name implements [audio.Processor].
func (d *SilenceDetector) Name() string { return "silence_detector" }

// OutputFormat implements [audio.Processor]; detection is format-transparent.
func (d *SilenceDetector) OutputFormat(in audio.Format) audio.Format { return in }

// Process classifies the buffer and returns it unchanged. The same buffer
// pointer is passed through since the samples are never modified.
func (d *SilenceDetector) Process(in *audio.Buffer) (*audio.Buffer, error) {
	start := time.Now()

	below := in.IsSilent(d.thresholdDB)
	if below {
		d.belowSamples += in.Frames()
		holdSamples := int(d.minSilence.Seconds() * float64(in.Format.SampleRate))
		if d.belowSamples >= holdSamples {
			d.state = VADSilent
		}
	} else {
		// One loud buffer ends the silence immediately.
		d.belowSamples = 0
		d.state = VADActive
	}

	if d.state == VADSilent {
		d.silentBuffers++
	} else {
		d.activeBuffers++
	}

	d.seq++
	d.stats.BuffersProcessed++
	d.stats.SamplesProcessed += uint64(len(in.Samples))
	d.stats.ProcessingTime += time.Since(start)
	return in, nil
}

// Reset returns the detector to the active state and clears the hold timer.
// The silent/active counters survive, matching their role as session-level
// statistics.
func (d *SilenceDetector) Reset() {
	d.state = VADActive
	d.belowSamples = 0
}

// Stats implements [audio.Processor].
func (d *SilenceDetector) Stats() audio.ProcessorStats { return d.stats }
