// Package mock provides in-memory mock implementations of the
// [audio.Source], [audio.Processor], and [audio.Sink] interfaces for use in
// unit tests.
//
// The mocks record every method call so that tests can assert on call counts
// and arguments, and they expose exported fields that the test can set to
// control return values. Unlike real sources they are not time-aware: every
// Read yields the next scripted buffer immediately, which keeps graph tests
// deterministic.
//
// Typical usage:
//
//	src := &mock.Source{
//	    FormatResult: audio.Format{SampleRate: 48000, Channels: 1, Kind: audio.KindFloat32},
//	    Buffers:      []*audio.Buffer{buf1, buf2},
//	}
//	sink := &mock.Sink{}
package mock

import (
	"github.com/MrWong99/tapedeck/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Source    = (*Source)(nil)
	_ audio.Processor = (*Processor)(nil)
	_ audio.Sink      = (*Sink)(nil)
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a scripted [audio.Source]. Reads return the Buffers entries in
// order, then (nil, nil). Set ReadError to make every subsequent Read fail.
type Source struct {
	// NameResult is returned by Name. Defaults to "mock-source".
	NameResult string

	// FormatResult is returned by Format.
	FormatResult audio.Format

	// Buffers are handed out by Read, one per call.
	Buffers []*audio.Buffer

	// StartError and StopError are returned by Start/Stop.
	StartError error
	StopError  error

	// ReadError, when set, is returned by every Read.
	ReadError error

	// CallCountRead records how many times Read was called.
	CallCountRead int

	active bool
	next   int
	stats  audio.SourceStats
}

func (s *Source) Start() error {
	if s.StartError != nil {
		return s.StartError
	}
	s.active = true
	return nil
}

func (s *Source) Read() (*audio.Buffer, error) {
	s.CallCountRead++
	if s.ReadError != nil {
		s.stats.Errors++
		return nil, s.ReadError
	}
	if s.next >= len(s.Buffers) {
		return nil, nil
	}
	buf := s.Buffers[s.next]
	s.next++
	s.stats.BuffersProduced++
	s.stats.SamplesProduced += uint64(len(buf.Samples))
	return buf, nil
}

func (s *Source) Stop() error {
	s.active = false
	return s.StopError
}

func (s *Source) Format() audio.Format { return s.FormatResult }

func (s *Source) Active() bool { return s.active }

func (s *Source) Name() string {
	if s.NameResult == "" {
		return "mock-source"
	}
	return s.NameResult
}

func (s *Source) Stats() audio.SourceStats { return s.stats }

// ─── Processor ────────────────────────────────────────────────────────────────

// Processor is a configurable [audio.Processor]. By default it passes
// buffers through unchanged; set ProcessFunc to transform them or
// ProcessError to fail.
type Processor struct {
	// NameResult is returned by Name. Defaults to "mock-processor".
	NameResult string

	// ProcessFunc, when set, replaces the default pass-through behaviour.
	ProcessFunc func(in *audio.Buffer) (*audio.Buffer, error)

	// ProcessError, when set, is returned by every Process call.
	ProcessError error

	// CallCountProcess and CallCountReset record call counts.
	CallCountProcess int
	CallCountReset   int

	stats audio.ProcessorStats
}

func (p *Processor) Process(in *audio.Buffer) (*audio.Buffer, error) {
	p.CallCountProcess++
	if p.ProcessError != nil {
		p.stats.Errors++
		return nil, p.ProcessError
	}
	p.stats.BuffersProcessed++
	p.stats.SamplesProcessed += uint64(len(in.Samples))
	if p.ProcessFunc != nil {
		return p.ProcessFunc(in)
	}
	return in, nil
}

func (p *Processor) Reset() { p.CallCountReset++ }

func (p *Processor) OutputFormat(in audio.Format) audio.Format { return in }

func (p *Processor) Name() string {
	if p.NameResult == "" {
		return "mock-processor"
	}
	return p.NameResult
}

func (p *Processor) Stats() audio.ProcessorStats { return p.stats }

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink records every written buffer. Set WriteError, FlushError, or
// CloseError to make the corresponding call fail.
type Sink struct {
	// NameResult is returned by Name. Defaults to "mock-sink".
	NameResult string

	// Written holds every buffer passed to Write, in order.
	Written []*audio.Buffer

	// WriteError, FlushError, and CloseError control failure injection.
	WriteError error
	FlushError error
	CloseError error

	// CallCountFlush and CallCountClose record call counts.
	CallCountFlush int
	CallCountClose int

	stats audio.SinkStats
}

func (s *Sink) Write(b *audio.Buffer) error {
	if s.WriteError != nil {
		s.stats.Errors++
		return s.WriteError
	}
	s.Written = append(s.Written, b)
	s.stats.BuffersWritten++
	s.stats.SamplesWritten += uint64(len(b.Samples))
	return nil
}

func (s *Sink) Flush() error {
	s.CallCountFlush++
	return s.FlushError
}

func (s *Sink) Close() error {
	s.CallCountClose++
	return s.CloseError
}

func (s *Sink) Name() string {
	if s.NameResult == "" {
		return "mock-sink"
	}
	return s.NameResult
}

func (s *Sink) Stats() audio.SinkStats { return s.stats }
