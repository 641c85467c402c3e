package audio

import (
	"math"
	"time"
)

// Buffer is a block of interleaved float32 samples tagged with its [Format],
// a monotonically increasing sequence number, and the wall-clock time it was
// produced. Buffers are treated as immutable once produced: processors
// allocate a new buffer for their output and fan-out delivers a [Buffer.Clone]
// per destination, never a shared slice.
type Buffer struct {
	// Samples holds interleaved samples in [-1.0, 1.0].
	Samples []float32

	// Format describes the stream this buffer belongs to.
	Format Format

	// Seq increases by one per buffer produced by the originating source.
	Seq uint64

	// Timestamp marks when the buffer was produced.
	Timestamp time.Time
}

// NewBuffer constructs a buffer over samples. The slice is taken over, not
// copied.
func NewBuffer(samples []float32, format Format, seq uint64) *Buffer {
	return &Buffer{
		Samples:   samples,
		Format:    format,
		Seq:       seq,
		Timestamp: time.Now(),
	}
}

// NewSilentBuffer constructs an all-zero buffer of frames frames.
func NewSilentBuffer(format Format, frames int, seq uint64) *Buffer {
	return NewBuffer(make([]float32, frames*format.Channels), format, seq)
}

// Len returns the total interleaved sample count.
func (b *Buffer) Len() int {
	return len(b.Samples)
}

// Frames returns the per-channel frame count.
func (b *Buffer) Frames() int {
	if b.Format.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Format.Channels
}

// Duration returns the playback duration the buffer represents.
func (b *Buffer) Duration() time.Duration {
	if b.Format.SampleRate == 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.Format.SampleRate)
}

// Clone returns a structurally independent copy of b. Mutating the clone's
// samples never affects the original.
func (b *Buffer) Clone() *Buffer {
	samples := make([]float32, len(b.Samples))
	copy(samples, b.Samples)
	return &Buffer{
		Samples:   samples,
		Format:    b.Format,
		Seq:       b.Seq,
		Timestamp: b.Timestamp,
	}
}

// RMS returns the root-mean-square energy of the buffer across all channels.
// Returns 0 for an empty buffer.
func (b *Buffer) RMS() float64 {
	if len(b.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range b.Samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(b.Samples)))
}

// Peak returns the largest absolute sample value in the buffer.
func (b *Buffer) Peak() float64 {
	var peak float64
	for _, s := range b.Samples {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	return peak
}

// IsSilent reports whether the buffer's RMS energy is below thresholdDB
// (a negative dBFS value, e.g. -40).
func (b *Buffer) IsSilent(thresholdDB float64) bool {
	return LinearToDB(b.RMS()) < thresholdDB
}

// DBToLinear converts a decibel gain to a linear multiplier
// (linear = 10^(dB/20)).
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// LinearToDB converts a linear amplitude to decibels. Zero or negative input
// maps to -inf dB, reported as a very large negative value so comparisons
// against any practical threshold behave sensibly.
func LinearToDB(linear float64) float64 {
	if linear <= 0 {
		return -math.MaxFloat64
	}
	return 20 * math.Log10(linear)
}
