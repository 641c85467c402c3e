package sinks

import (
	"errors"
	"fmt"

	"github.com/MrWong99/tapedeck/pkg/audio"
)

var _ audio.Sink = (*MultiSink)(nil)

// MultiSink tees one stream to several destinations. Every child receives a
// structurally independent copy of each buffer, so no destination can
// observe another's mutations. Child errors are collected per call; a write
// fails only when every child fails.
type MultiSink struct {
	name     string
	children []audio.Sink
	stats    audio.SinkStats
}

// NewMultiSink creates a fan-out over the given children. At least one
// child is required.
func NewMultiSink(name string, children ...audio.Sink) (*MultiSink, error) {
	if len(children) == 0 {
		return nil, fmt.Errorf("%w: multi sink %q needs at least one child", audio.ErrInvalidConfig, name)
	}
	return &MultiSink{name: name, children: children}, nil
}

// Write delivers an independent clone to each child. Per-child failures are
// joined and returned, but the remaining children are still written; only
// all children failing counts as a full error for the stats.
func (m *MultiSink) Write(b *audio.Buffer) error {
	var errs []error
	for _, c := range m.children {
		if err := c.Write(b.Clone()); err != nil {
			errs = append(errs, fmt.Errorf("sink %q: %w", c.Name(), err))
		}
	}
	if len(errs) == len(m.children) {
		m.stats.Errors++
	}
	if errs == nil {
		m.stats.BuffersWritten++
		m.stats.SamplesWritten += uint64(len(b.Samples))
	}
	return errors.Join(errs...)
}

// Flush flushes every child, joining failures.
func (m *MultiSink) Flush() error {
	var errs []error
	for _, c := range m.children {
		if err := c.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("sink %q: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every child in reverse order, joining failures.
func (m *MultiSink) Close() error {
	var errs []error
	for i := len(m.children) - 1; i >= 0; i-- {
		if err := m.children[i].Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink %q: %w", m.children[i].Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Name implements [audio.Sink].
func (m *MultiSink) Name() string { return m.name }

// Stats implements [audio.Sink].
func (m *MultiSink) Stats() audio.SinkStats { return m.stats }
