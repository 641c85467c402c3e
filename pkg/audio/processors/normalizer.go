package processors

import (
	"fmt"
	"math"
	"time"

	"github.com/MrWong99/tapedeck/pkg/audio"
)

var _ audio.Processor = (*Normalizer)(nil)

// Look-ahead window presets. Short windows react fast at the cost of peak
// accuracy; long windows catch every transient at the cost of latency.
const (
	// LookAheadLowLatency favours responsiveness (5-10 ms band).
	LookAheadLowLatency = 5 * time.Millisecond

	// LookAheadBalanced is the default (20-50 ms band).
	LookAheadBalanced = 20 * time.Millisecond

	// LookAheadAccurate favours peak accuracy (100+ ms band).
	LookAheadAccurate = 100 * time.Millisecond
)

// Normalizer attenuates buffers toward a target peak level using a
// look-ahead window: incoming samples are withheld for the window duration
// so the true upcoming peak is known before gain is chosen.
//
// The applied gain never exceeds unity. The normalizer pulls loud audio down
// toward the target but never amplifies, so a well-behaved stream stays
// within [-1.0, 1.0] and zero input stays zero.
type Normalizer struct {
	targetLinear float64
	lookAhead    time.Duration

	// Fixed by the first processed buffer.
	format           audio.Format
	lookAheadSamples int

	// fifo holds withheld samples; fifoStamp tags the oldest.
	fifo      []float32
	fifoStamp time.Time

	maxPeak        float64
	normalizations uint64

	seq   uint64
	stats audio.ProcessorStats
}

// NormalizerOption configures a [Normalizer] during construction.
type NormalizerOption func(*Normalizer)

// WithLookAhead overrides the [LookAheadBalanced] default window.
func WithLookAhead(dur time.Duration) NormalizerOption {
	return func(n *Normalizer) {
		n.lookAhead = dur
	}
}

// NewNormalizer creates a normalizer targeting targetDB (a negative dBFS
// level, e.g. -3). Fails fast on a positive target or non-positive window.
func NewNormalizer(targetDB float64, opts ...NormalizerOption) (*Normalizer, error) {
	if targetDB > 0 {
		return nil, fmt.Errorf("%w: normalizer target %.1f dB must not be positive", audio.ErrInvalidConfig, targetDB)
	}
	n := &Normalizer{
		targetLinear: audio.DBToLinear(targetDB),
		lookAhead:    LookAheadBalanced,
	}
	for _, o := range opts {
		o(n)
	}
	if n.lookAhead <= 0 {
		return nil, fmt.Errorf("%w: normalizer look-ahead %v must be positive", audio.ErrInvalidConfig, n.lookAhead)
	}
	return n, nil
}

// MaxPeak returns the largest absolute sample value observed so far.
func (n *Normalizer) MaxPeak() float64 { return n.maxPeak }

// Normalizations returns how many emitted buffers had gain below unity
// applied.
func (n *Normalizer) Normalizations() uint64 { return n.normalizations }

// Name implements [audio.Processor].
func (n *Normalizer) Name() string { return "normalizer" }

// OutputFormat implements [audio.Processor]; normalization is
// format-transparent.
func (n *Normalizer) OutputFormat(in audio.Format) audio.Format { return in }

// Process appends the buffer to the look-ahead window and emits whatever the
// window can release. Until the window has filled once, Process returns
// (nil, nil); thereafter each call emits roughly one buffer's worth, gained
// by min(target/windowPeak, 1.0).
func (n *Normalizer) Process(in *audio.Buffer) (*audio.Buffer, error) {
	start := time.Now()

	if n.lookAheadSamples == 0 {
		n.format = in.Format
		frames := int(n.lookAhead.Seconds() * float64(in.Format.SampleRate))
		if frames < 1 {
			frames = 1
		}
		n.lookAheadSamples = frames * in.Format.Channels
	} else if !n.format.Compatible(in.Format) {
		n.stats.Errors++
		return nil, audio.MismatchError(n.format, in.Format)
	}

	if len(n.fifo) == 0 {
		n.fifoStamp = in.Timestamp
	}
	n.fifo = append(n.fifo, in.Samples...)

	n.stats.BuffersProcessed++
	n.stats.SamplesProcessed += uint64(len(in.Samples))

	// Hold everything until one full window is banked beyond this buffer.
	release := len(n.fifo) - n.lookAheadSamples
	if release > len(in.Samples) {
		release = len(in.Samples)
	}
	if release <= 0 {
		n.stats.ProcessingTime += time.Since(start)
		return nil, nil
	}

	gain := n.windowGain()

	out := make([]float32, release)
	for i, s := range n.fifo[:release] {
		out[i] = s * float32(gain)
	}
	n.fifo = n.fifo[release:]

	if gain < 1.0 {
		n.normalizations++
	}

	n.seq++
	emitted := &audio.Buffer{
		Samples:   out,
		Format:    n.format,
		Seq:       n.seq,
		Timestamp: n.fifoStamp,
	}
	n.fifoStamp = in.Timestamp
	n.stats.ProcessingTime += time.Since(start)
	return emitted, nil
}

// Flush releases all withheld samples at the current window gain. Call at
// end of stream; the final partial window is emitted rather than dropped.
// Returns nil when nothing is banked.
func (n *Normalizer) Flush() *audio.Buffer {
	if len(n.fifo) == 0 {
		return nil
	}
	gain := n.windowGain()
	out := make([]float32, len(n.fifo))
	for i, s := range n.fifo {
		out[i] = s * float32(gain)
	}
	if gain < 1.0 {
		n.normalizations++
	}
	n.fifo = nil
	n.seq++
	return &audio.Buffer{
		Samples:   out,
		Format:    n.format,
		Seq:       n.seq,
		Timestamp: n.fifoStamp,
	}
}

// windowGain computes min(target/peak, 1.0) over the banked window and
// updates the observed maximum peak. A silent window keeps unity gain so
// zero input stays zero.
func (n *Normalizer) windowGain() float64 {
	var peak float64
	for _, s := range n.fifo {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	if peak > n.maxPeak {
		n.maxPeak = peak
	}
	if peak == 0 {
		return 1.0
	}
	gain := n.targetLinear / peak
	if gain > 1.0 {
		gain = 1.0
	}
	return gain
}

// Reset drops the banked window so a paused stream resumes without stale
// audio. Peak statistics survive.
func (n *Normalizer) Reset() {
	n.fifo = nil
	n.fifoStamp = time.Time{}
}

// Stats implements [audio.Processor].
func (n *Normalizer) Stats() audio.ProcessorStats { return n.stats }
