package processors

import (
	"fmt"
	"math"
	"time"

	"github.com/MrWong99/tapedeck/pkg/audio"
)

var _ audio.Processor = (*Resampler)(nil)

const (
	// resamplerTaps is the one-sided length of the windowed-sinc kernel.
	resamplerTaps = 16

	// DefaultChunkFrames is the input accumulation size per conversion run.
	DefaultChunkFrames = 1024

	// MaxChunkFrames bounds the configurable chunk size.
	MaxChunkFrames = 16384
)

// Resampler converts a fixed source sample rate to a fixed target rate,
// preserving channel count and sample kind. Input is accumulated into fixed
// chunks before conversion, so early calls return (nil, nil) and output
// buffer sizes vary call to call; the total output duration converges on the
// total input duration.
//
// Interpolation is band-limited: a Hann-windowed sinc kernel, with the
// cutoff scaled down when converting to a lower rate. Converting a rate to
// itself is a transparent pass-through.
type Resampler struct {
	srcRate, dstRate int
	ratio            float64 // src samples advanced per output sample
	cutoff           float64 // normalised kernel cutoff, min(1, dst/src)
	chunkFrames      int

	// Fixed by the first processed buffer.
	format    audio.Format
	outFormat audio.Format

	// queues holds deinterleaved pending input per channel; phase is the
	// fractional input-sample position of the next output sample, relative
	// to the queue start.
	queues [][]float32
	phase  float64
	stamp  time.Time

	// avgProcess is an exponential moving average of per-call conversion
	// time, weighted (old*9 + new)/10.
	avgProcess time.Duration

	seq   uint64
	stats audio.ProcessorStats
}

// ResamplerOption configures a [Resampler] during construction.
type ResamplerOption func(*Resampler)

// WithChunkFrames overrides [DefaultChunkFrames]. The value must lie in
// (0, MaxChunkFrames].
func WithChunkFrames(frames int) ResamplerOption {
	return func(r *Resampler) {
		r.chunkFrames = frames
	}
}

// NewResampler creates a resampler converting srcRate to dstRate. Both rates
// must lie in (0, audio.MaxSampleRate].
func NewResampler(srcRate, dstRate int, opts ...ResamplerOption) (*Resampler, error) {
	if srcRate <= 0 || srcRate > audio.MaxSampleRate {
		return nil, fmt.Errorf("%w: source rate %d out of range (0, %d]", audio.ErrInvalidConfig, srcRate, audio.MaxSampleRate)
	}
	if dstRate <= 0 || dstRate > audio.MaxSampleRate {
		return nil, fmt.Errorf("%w: target rate %d out of range (0, %d]", audio.ErrInvalidConfig, dstRate, audio.MaxSampleRate)
	}

	r := &Resampler{
		srcRate:     srcRate,
		dstRate:     dstRate,
		ratio:       float64(srcRate) / float64(dstRate),
		cutoff:      math.Min(1, float64(dstRate)/float64(srcRate)),
		chunkFrames: DefaultChunkFrames,
	}
	for _, o := range opts {
		o(r)
	}
	if r.chunkFrames <= 0 || r.chunkFrames > MaxChunkFrames {
		return nil, fmt.Errorf("%w: chunk size %d out of range (0, %d]", audio.ErrInvalidConfig, r.chunkFrames, MaxChunkFrames)
	}
	return r, nil
}

// SourceRate returns the configured input rate.
func (r *Resampler) SourceRate() int { return r.srcRate }

// TargetRate returns the configured output rate.
func (r *Resampler) TargetRate() int { return r.dstRate }

// AverageProcessingTime returns the smoothed per-call conversion time.
func (r *Resampler) AverageProcessingTime() time.Duration { return r.avgProcess }

// Name implements [audio.Processor].
func (r *Resampler) Name() string { return "resampler" }

// OutputFormat implements [audio.Processor]: same channels and kind at the
// target rate.
func (r *Resampler) OutputFormat(in audio.Format) audio.Format {
	out := in
	out.SampleRate = r.dstRate
	return out
}

// Process accumulates the buffer and converts once a full chunk is banked.
// Buffers must arrive at the configured source rate; anything else is a
// format mismatch. Returns (nil, nil) while accumulating.
func (r *Resampler) Process(in *audio.Buffer) (*audio.Buffer, error) {
	start := time.Now()

	if r.queues == nil {
		if in.Format.SampleRate != r.srcRate {
			r.stats.Errors++
			expect := in.Format
			expect.SampleRate = r.srcRate
			return nil, audio.MismatchError(expect, in.Format)
		}
		r.format = in.Format
		r.outFormat = r.OutputFormat(in.Format)
		r.queues = make([][]float32, in.Format.Channels)
	} else if !r.format.Compatible(in.Format) {
		r.stats.Errors++
		return nil, audio.MismatchError(r.format, in.Format)
	}

	r.stats.BuffersProcessed++
	r.stats.SamplesProcessed += uint64(len(in.Samples))

	// Identity ratio is a transparent copy; no chunking, no delay.
	if r.srcRate == r.dstRate {
		out := in.Clone()
		r.seq++
		out.Seq = r.seq
		r.observe(time.Since(start))
		return out, nil
	}

	if len(r.queues[0]) == 0 {
		r.stamp = in.Timestamp
	}
	channels := r.format.Channels
	frames := len(in.Samples) / channels
	for c := range channels {
		for f := range frames {
			r.queues[c] = append(r.queues[c], in.Samples[f*channels+c])
		}
	}

	if len(r.queues[0]) < r.chunkFrames+2*resamplerTaps {
		r.observe(time.Since(start))
		return nil, nil
	}

	out := r.convert()
	r.observe(time.Since(start))
	if out == nil {
		return nil, nil
	}
	return out, nil
}

// convert drains as many output samples as the banked input supports,
// keeping a kernel's worth of history for the next run.
func (r *Resampler) convert() *audio.Buffer {
	qLen := len(r.queues[0])
	channels := r.format.Channels

	var out []float32
	for int(r.phase)+resamplerTaps < qLen {
		for c := range channels {
			out = append(out, r.interpolate(r.queues[c], r.phase))
		}
		r.phase += r.ratio
	}
	if out == nil {
		return nil
	}

	// Drop consumed input, keeping history for kernel continuity.
	if drop := int(r.phase) - resamplerTaps; drop > 0 {
		for c := range channels {
			r.queues[c] = r.queues[c][drop:]
		}
		r.phase -= float64(drop)
	}

	r.seq++
	b := &audio.Buffer{
		Samples:   out,
		Format:    r.outFormat,
		Seq:       r.seq,
		Timestamp: r.stamp,
	}
	r.stamp = time.Time{}
	return b
}

// Flush pads the banked input with silence, converts the remainder, and
// returns it. Call at end of stream; the trailing partial chunk is emitted
// rather than dropped. Returns nil when nothing is banked.
func (r *Resampler) Flush() *audio.Buffer {
	if r.queues == nil || len(r.queues[0]) == 0 || r.srcRate == r.dstRate {
		return nil
	}

	// Emit output positions covering the real input only; the zero padding
	// just feeds the kernel tail.
	realLen := len(r.queues[0])
	pad := make([]float32, 2*resamplerTaps)
	for c := range r.queues {
		r.queues[c] = append(r.queues[c], pad...)
	}

	channels := r.format.Channels
	var out []float32
	for r.phase < float64(realLen) {
		for c := range channels {
			out = append(out, r.interpolate(r.queues[c], r.phase))
		}
		r.phase += r.ratio
	}

	r.queues = make([][]float32, channels)
	r.phase = 0
	if out == nil {
		return nil
	}

	r.seq++
	return &audio.Buffer{
		Samples:   out,
		Format:    r.outFormat,
		Seq:       r.seq,
		Timestamp: r.stamp,
	}
}

// interpolate evaluates the Hann-windowed sinc kernel centred on pos.
// Coefficients are renormalised so a constant input stays constant.
func (r *Resampler) interpolate(q []float32, pos float64) float32 {
	center := int(pos)
	var sum, coefSum float64
	for j := center - resamplerTaps + 1; j <= center+resamplerTaps; j++ {
		x := pos - float64(j)
		c := r.cutoff * sinc(r.cutoff*x) * hann(x/float64(resamplerTaps))
		coefSum += c
		if j >= 0 && j < len(q) {
			sum += c * float64(q[j])
		}
	}
	if coefSum == 0 {
		return 0
	}
	return float32(sum / coefSum)
}

// observe folds a call duration into the EMA and cumulative counters.
func (r *Resampler) observe(d time.Duration) {
	r.stats.ProcessingTime += d
	r.avgProcess = (r.avgProcess*9 + d) / 10
}

// Reset drops all banked input so a paused stream resumes without stale
// audio.
func (r *Resampler) Reset() {
	if r.queues != nil {
		r.queues = make([][]float32, r.format.Channels)
	}
	r.phase = 0
	r.stamp = time.Time{}
}

// Stats implements [audio.Processor].
func (r *Resampler) Stats() audio.ProcessorStats { return r.stats }

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// hann is the raised-cosine window on [-1, 1], zero outside.
func hann(u float64) float64 {
	if u <= -1 || u >= 1 {
		return 0
	}
	return 0.5 * (1 + math.Cos(math.Pi*u))
}
