// Package processors contains the concrete signal-path processors of the
// tapedeck pipeline: mixing, resampling, gain control, silence detection and
// peak normalization. Every type implements [audio.Processor] and is driven
// from a single goroutine; none of them lock.
package processors

import (
	"fmt"
	"time"

	"github.com/MrWong99/tapedeck/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Processor      = (*Mixer)(nil)
	_ audio.MultiProcessor = (*Mixer)(nil)
)

const (
	// MinMixerInputs and MaxMixerInputs bound the declared input count of a
	// [Mixer].
	MinMixerInputs = 2
	MaxMixerInputs = 8
)

// MixMode selects how a [Mixer] combines its inputs.
type MixMode string

const (
	// MixSum adds inputs sample by sample.
	MixSum MixMode = "sum"

	// MixAverage takes the unweighted mean of the inputs.
	MixAverage MixMode = "average"

	// MixWeighted scales each input by its declared weight before summing.
	// Typical recording use: 0.6 microphone + 0.4 system audio.
	MixWeighted MixMode = "weighted"
)

// IsValid reports whether m is a recognised mix mode.
func (m MixMode) IsValid() bool {
	switch m {
	case MixSum, MixAverage, MixWeighted:
		return true
	}
	return false
}

// MixerOption configures a [Mixer] during construction.
type MixerOption func(*Mixer)

// WithWeights sets per-input weights for [MixWeighted] mode. The slice
// length must equal the declared input count and every weight must lie in
// [0, 1]; violations surface as a construction error.
func WithWeights(weights []float64) MixerOption {
	return func(m *Mixer) {
		m.weights = weights
	}
}

// WithoutLimiter disables the output peak limiter. By default the mixer
// clamps its output to [-1.0, 1.0] so that summed inputs cannot clip
// downstream nodes.
func WithoutLimiter() MixerOption {
	return func(m *Mixer) {
		m.limiter = false
	}
}

// Mixer combines exactly N declared inputs into one output stream. All N
// buffers of a tick must share an identical format and length; nothing is
// resampled or padded implicitly.
type Mixer struct {
	inputs  int
	mode    MixMode
	weights []float64
	limiter bool

	seq   uint64
	stats audio.ProcessorStats
}

// NewMixer creates a mixer for the given declared input count and mode.
// Fails fast on an input count outside [MinMixerInputs, MaxMixerInputs], an
// unknown mode, or weights that do not match the input count.
func NewMixer(inputs int, mode MixMode, opts ...MixerOption) (*Mixer, error) {
	if inputs < MinMixerInputs || inputs > MaxMixerInputs {
		return nil, fmt.Errorf("%w: mixer inputs %d out of range [%d, %d]",
			audio.ErrInvalidConfig, inputs, MinMixerInputs, MaxMixerInputs)
	}
	if !mode.IsValid() {
		return nil, fmt.Errorf("%w: unknown mix mode %q", audio.ErrInvalidConfig, mode)
	}

	m := &Mixer{
		inputs:  inputs,
		mode:    mode,
		limiter: true,
	}
	for _, o := range opts {
		o(m)
	}

	if mode == MixWeighted {
		if len(m.weights) != inputs {
			return nil, fmt.Errorf("%w: mixer has %d inputs but %d weights",
				audio.ErrInvalidConfig, inputs, len(m.weights))
		}
		for i, w := range m.weights {
			if w < 0 || w > 1 {
				return nil, fmt.Errorf("%w: mixer weight[%d] %.3f out of range [0, 1]",
					audio.ErrInvalidConfig, i, w)
			}
		}
	} else if m.weights != nil {
		return nil, fmt.Errorf("%w: mixer weights only apply to mode %q", audio.ErrInvalidConfig, MixWeighted)
	}

	return m, nil
}

// Inputs returns the declared input count.
func (m *Mixer) Inputs() int { return m.inputs }

// Mode returns the configured mix mode.
func (m *Mixer) Mode() MixMode { return m.mode }

// Name implements [audio.Processor].
func (m *Mixer) Name() string { return "mixer" }

// OutputFormat implements [audio.Processor]. The mixed output inherits the
// common input format.
func (m *Mixer) OutputFormat(in audio.Format) audio.Format { return in }

// Process implements [audio.Processor] for the degenerate single-buffer
// case; graph drivers use [Mixer.ProcessMulti]. A single buffer never
// satisfies the declared arity, so this always errors.
func (m *Mixer) Process(in *audio.Buffer) (*audio.Buffer, error) {
	return m.ProcessMulti([]*audio.Buffer{in})
}

// ProcessMulti combines exactly the declared number of input buffers into
// one output buffer. Errors name the expected input count or the first
// mismatched format field; the inputs are never modified.
func (m *Mixer) ProcessMulti(in []*audio.Buffer) (*audio.Buffer, error) {
	start := time.Now()

	if len(in) != m.inputs {
		m.stats.Errors++
		return nil, fmt.Errorf("%w: mixer expects %d inputs, got %d",
			audio.ErrInvalidConfig, m.inputs, len(in))
	}

	ref := in[0]
	for _, b := range in[1:] {
		if !ref.Format.Compatible(b.Format) {
			m.stats.Errors++
			return nil, audio.MismatchError(ref.Format, b.Format)
		}
		if len(b.Samples) != len(ref.Samples) {
			m.stats.Errors++
			return nil, fmt.Errorf("%w: mixer input length %d differs from %d",
				audio.ErrInvalidConfig, len(b.Samples), len(ref.Samples))
		}
	}

	out := make([]float32, len(ref.Samples))
	switch m.mode {
	case MixSum:
		for _, b := range in {
			for i, s := range b.Samples {
				out[i] += s
			}
		}
	case MixAverage:
		scale := float32(1) / float32(len(in))
		for _, b := range in {
			for i, s := range b.Samples {
				out[i] += s * scale
			}
		}
	case MixWeighted:
		for n, b := range in {
			w := float32(m.weights[n])
			for i, s := range b.Samples {
				out[i] += s * w
			}
		}
	}

	if m.limiter {
		for i, s := range out {
			if s > 1.0 {
				out[i] = 1.0
			} else if s < -1.0 {
				out[i] = -1.0
			}
		}
	}

	m.seq++
	mixed := &audio.Buffer{
		Samples:   out,
		Format:    ref.Format,
		Seq:       m.seq,
		Timestamp: ref.Timestamp,
	}

	m.stats.BuffersProcessed++
	m.stats.SamplesProcessed += uint64(len(out))
	m.stats.ProcessingTime += time.Since(start)
	return mixed, nil
}

// Reset implements [audio.Processor]. The mixer is stateless between ticks.
func (m *Mixer) Reset() {}

// Stats implements [audio.Processor].
func (m *Mixer) Stats() audio.ProcessorStats { return m.stats }
