package processors

import (
	"fmt"
	"time"

	"github.com/MrWong99/tapedeck/pkg/audio"
)

var _ audio.Processor = (*VolumeControl)(nil)

// VolumeControl applies a scalar gain to every sample. Gain can be set
// immediately or ramped linearly over a duration to avoid audible clicks on
// large changes. The format passes through unchanged.
type VolumeControl struct {
	gain float64 // current linear gain

	// Ramp state. rampRemaining counts samples (per channel) left in the
	// active ramp; zero means no ramp.
	rampTarget    float64
	rampStep      float64
	rampRemaining int

	seq   uint64
	stats audio.ProcessorStats
}

// NewVolumeControl creates a volume control with the given initial linear
// gain. Negative gain is rejected.
func NewVolumeControl(gain float64) (*VolumeControl, error) {
	if gain < 0 {
		return nil, fmt.Errorf("%w: volume gain %.3f must be non-negative", audio.ErrInvalidConfig, gain)
	}
	return &VolumeControl{gain: gain}, nil
}

// NewVolumeControlDB creates a volume control from a decibel gain
// (linear = 10^(dB/20)).
func NewVolumeControlDB(db float64) (*VolumeControl, error) {
	return NewVolumeControl(audio.DBToLinear(db))
}

// Gain returns the current linear gain. During a ramp this is the gain that
// will be applied to the next sample.
func (v *VolumeControl) Gain() float64 { return v.gain }

// SetGain sets the linear gain immediately, cancelling any in-flight ramp.
func (v *VolumeControl) SetGain(gain float64) error {
	if gain < 0 {
		return fmt.Errorf("%w: volume gain %.3f must be non-negative", audio.ErrInvalidConfig, gain)
	}
	v.gain = gain
	v.rampRemaining = 0
	return nil
}

// SetGainDB sets the gain from a decibel value immediately.
func (v *VolumeControl) SetGainDB(db float64) error {
	return v.SetGain(audio.DBToLinear(db))
}

// RampGain starts a linear per-sample ramp from the current gain to target
// over the given duration. The sample count is derived from sampleRate, so
// the ramp length in wall-clock time is exact for that stream. A duration of
// zero applies the target immediately.
func (v *VolumeControl) RampGain(target float64, duration time.Duration, sampleRate int) error {
	if target < 0 {
		return fmt.Errorf("%w: volume gain %.3f must be non-negative", audio.ErrInvalidConfig, target)
	}
	if sampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d must be positive", audio.ErrInvalidConfig, sampleRate)
	}
	if duration <= 0 {
		v.gain = target
		v.rampRemaining = 0
		return nil
	}

	samples := int(duration.Seconds() * float64(sampleRate))
	if samples < 1 {
		samples = 1
	}
	v.rampTarget = target
	v.rampStep = (target - v.gain) / float64(samples)
	v.rampRemaining = samples
	return nil
}

// RampGainDB starts a ramp toward a decibel target.
func (v *VolumeControl) RampGainDB(db float64, duration time.Duration, sampleRate int) error {
	return v.RampGain(audio.DBToLinear(db), duration, sampleRate)
}

// Ramping reports whether a gain ramp is in flight.
func (v *VolumeControl) Ramping() bool { return v.rampRemaining > 0 }

// Name implements [audio.Processor].
func (v *VolumeControl) Name() string { return "volume" }

// OutputFormat implements [audio.Processor]; volume is format-transparent.
func (v *VolumeControl) OutputFormat(in audio.Format) audio.Format { return in }

// Process applies the current gain to every sample. During a ramp the gain
// advances once per frame so all channels of a frame get the same gain.
// Unity gain with no ramp copies the input through unchanged.
func (v *VolumeControl) Process(in *audio.Buffer) (*audio.Buffer, error) {
	start := time.Now()

	out := make([]float32, len(in.Samples))
	if v.rampRemaining == 0 && v.gain == 1.0 {
		copy(out, in.Samples)
	} else {
		channels := in.Format.Channels
		if channels < 1 {
			channels = 1
		}
		for i, s := range in.Samples {
			if v.rampRemaining > 0 && i%channels == 0 {
				v.gain += v.rampStep
				v.rampRemaining--
				if v.rampRemaining == 0 {
					v.gain = v.rampTarget
				}
			}
			out[i] = s * float32(v.gain)
		}
	}

	v.seq++
	v.stats.BuffersProcessed++
	v.stats.SamplesProcessed += uint64(len(out))
	v.stats.ProcessingTime += time.Since(start)

	return &audio.Buffer{
		Samples:   out,
		Format:    in.Format,
		Seq:       v.seq,
		Timestamp: in.Timestamp,
	}, nil
}

// Reset cancels any in-flight ramp, keeping the gain it reached.
func (v *VolumeControl) Reset() {
	v.rampRemaining = 0
}

// Stats implements [audio.Processor].
func (v *VolumeControl) Stats() audio.ProcessorStats { return v.stats }
