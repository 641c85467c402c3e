package sinks

import (
	"fmt"

	"github.com/MrWong99/tapedeck/pkg/audio"
)

var _ audio.Sink = (*BufferSink)(nil)

// DefaultMaxBuffers caps a [BufferSink] at roughly five seconds of 10 ms
// buffers when no explicit capacity is configured.
const DefaultMaxBuffers = 512

// BufferSink collects buffers in memory up to a capacity, dropping the
// oldest on overflow. It backs live-preview and test assertions. The sink's
// format is fixed by the first write; later writes in any other format are
// rejected.
type BufferSink struct {
	name string
	max  int

	format    audio.Format
	hasFormat bool
	buffers   []*audio.Buffer
	dropped   uint64
	closed    bool
	stats     audio.SinkStats
}

// NewBufferSink creates a collector holding at most max buffers; max <= 0
// selects [DefaultMaxBuffers].
func NewBufferSink(name string, max int) *BufferSink {
	if max <= 0 {
		max = DefaultMaxBuffers
	}
	return &BufferSink{name: name, max: max}
}

// Write implements [audio.Sink]. The first write pins the sink's format.
func (s *BufferSink) Write(b *audio.Buffer) error {
	if s.closed {
		return audio.ErrClosed
	}
	if !s.hasFormat {
		s.format = b.Format
		s.hasFormat = true
	} else if !s.format.Compatible(b.Format) {
		s.stats.Errors++
		return audio.MismatchError(s.format, b.Format)
	}

	if len(s.buffers) >= s.max {
		s.buffers = s.buffers[1:]
		s.dropped++
	}
	s.buffers = append(s.buffers, b)
	s.stats.BuffersWritten++
	s.stats.SamplesWritten += uint64(len(b.Samples))
	return nil
}

// Len returns the number of currently held buffers.
func (s *BufferSink) Len() int { return len(s.buffers) }

// Dropped returns how many buffers were evicted due to the capacity cap.
func (s *BufferSink) Dropped() uint64 { return s.dropped }

// Drain returns and clears all held buffers in arrival order.
func (s *BufferSink) Drain() []*audio.Buffer {
	out := s.buffers
	s.buffers = nil
	return out
}

// Samples concatenates the samples of all held buffers without draining
// them, in arrival order.
func (s *BufferSink) Samples() []float32 {
	var total int
	for _, b := range s.buffers {
		total += len(b.Samples)
	}
	out := make([]float32, 0, total)
	for _, b := range s.buffers {
		out = append(out, b.Samples...)
	}
	return out
}

// Flush implements [audio.Sink]; held buffers stay available for Drain.
func (s *BufferSink) Flush() error { return nil }

// Close implements [audio.Sink].
func (s *BufferSink) Close() error {
	if s.closed {
		return fmt.Errorf("buffer sink %q: %w", s.name, audio.ErrClosed)
	}
	s.closed = true
	return nil
}

// Name implements [audio.Sink].
func (s *BufferSink) Name() string { return s.name }

// Stats implements [audio.Sink].
func (s *BufferSink) Stats() audio.SinkStats { return s.stats }
