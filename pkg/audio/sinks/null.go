// Package sinks contains the concrete [audio.Sink] implementations of the
// tapedeck pipeline: a WAV file writer, an in-memory collector for live
// preview, a discard sink, and a fan-out wrapper that tees a stream to
// several destinations.
package sinks

import (
	"github.com/MrWong99/tapedeck/pkg/audio"
)

var _ audio.Sink = (*NullSink)(nil)

// NullSink counts and discards every buffer. Useful for benchmarks and for
// keeping a graph branch alive without side effects.
type NullSink struct {
	name   string
	closed bool
	stats  audio.SinkStats
}

// NewNullSink creates a discard sink.
func NewNullSink(name string) *NullSink {
	return &NullSink{name: name}
}

// Write implements [audio.Sink].
func (n *NullSink) Write(b *audio.Buffer) error {
	if n.closed {
		return audio.ErrClosed
	}
	n.stats.BuffersWritten++
	n.stats.SamplesWritten += uint64(len(b.Samples))
	return nil
}

// Flush implements [audio.Sink].
func (n *NullSink) Flush() error { return nil }

// Close implements [audio.Sink].
func (n *NullSink) Close() error {
	n.closed = true
	return nil
}

// Name implements [audio.Sink].
func (n *NullSink) Name() string { return n.name }

// Stats implements [audio.Sink].
func (n *NullSink) Stats() audio.SinkStats { return n.stats }
