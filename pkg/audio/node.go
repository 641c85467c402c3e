package audio

import "time"

// Source produces buffers. Concrete sources are either live capture adapters
// or synthetic generators used in tests and calibration.
//
// Sources are driven from a single goroutine (the graph tick loop); they need
// no internal locking beyond what a capture backend imposes.
type Source interface {
	// Start begins production. Must be called before the first Read.
	Start() error

	// Read returns the next buffer, or (nil, nil) when no buffer is
	// available yet. Time-aware sources never return more audio than
	// elapsed wall-clock time justifies; callers that need a buffer now
	// should use [ReadWithTimeout] rather than spinning.
	Read() (*Buffer, error)

	// Stop ends production and releases backing resources. Read after Stop
	// returns [ErrClosed].
	Stop() error

	// Format returns the fixed output format of this source.
	Format() Format

	// Active reports whether the source is started and producing.
	Active() bool

	// Name returns a short identifier used in logs and errors.
	Name() string

	// Stats returns a snapshot of the source's counters.
	Stats() SourceStats
}

// Processor transforms buffers one at a time. A processor may hold internal
// state across calls (ramp position, look-ahead window, accumulators) but
// must not block beyond its own bounded computation.
type Processor interface {
	// Process transforms a buffer. A processor that is accumulating state
	// (look-ahead, resample chunk) may return (nil, nil) until it has
	// enough input to emit.
	Process(in *Buffer) (*Buffer, error)

	// Reset clears transient state (ramps, look-ahead, accumulators)
	// without destroying configuration, so a paused stream resumes cleanly.
	Reset()

	// OutputFormat returns the format this processor emits for the given
	// input format. Pass-through processors return in unchanged.
	OutputFormat(in Format) Format

	// Name returns a short identifier used in logs and errors.
	Name() string

	// Stats returns a snapshot of the processor's counters.
	Stats() ProcessorStats
}

// MultiProcessor is a [Processor] with a declared input arity greater than
// one. The graph collects one buffer per input edge and delivers them in
// connection order.
type MultiProcessor interface {
	Processor

	// Inputs returns the declared input count.
	Inputs() int

	// ProcessMulti combines exactly Inputs() buffers into one output.
	// Supplying any other count is an error naming the expected count.
	ProcessMulti(in []*Buffer) (*Buffer, error)
}

// Sink consumes buffers. Sinks accept only buffers whose format exactly
// matches their configuration; a write in any other format is rejected.
type Sink interface {
	// Write consumes one buffer.
	Write(b *Buffer) error

	// Flush forces any buffered output to its destination.
	Flush() error

	// Close flushes and releases the sink. Write after Close returns
	// [ErrClosed].
	Close() error

	// Name returns a short identifier used in logs and errors.
	Name() string

	// Stats returns a snapshot of the sink's counters.
	Stats() SinkStats
}

// SourceStats holds per-source counters, mutated only by the owning source.
type SourceStats struct {
	BuffersProduced uint64
	SamplesProduced uint64
	Errors          uint64
}

// ProcessorStats holds per-processor counters, mutated only by the owning
// processor.
type ProcessorStats struct {
	BuffersProcessed uint64
	SamplesProcessed uint64

	// ProcessingTime is the cumulative time spent inside Process calls.
	ProcessingTime time.Duration

	Errors uint64
}

// SinkStats holds per-sink counters, mutated only by the owning sink.
type SinkStats struct {
	BuffersWritten uint64
	SamplesWritten uint64
	Errors         uint64
}
