// Package health provides a background monitor for running capture
// pipelines.
//
// A [Monitor] samples a [Collector] at a fixed period and delivers [Report]
// values over a channel. Each session owns its monitor; there is no shared
// global state, so two sessions never see each other's reports. The owner
// decides what to do with a degraded report, typically log it and bump
// metrics.
package health

import (
	"context"
	"time"
)

// DefaultPeriod is the sampling interval used when none is configured.
const DefaultPeriod = time.Second

// Status classifies a report.
type Status string

const (
	// StatusOK means the pipeline is ticking and all sources deliver.
	StatusOK Status = "ok"

	// StatusDegraded means the pipeline runs but some sources fail or
	// buffers are being dropped.
	StatusDegraded Status = "degraded"

	// StatusStalled means no tick has completed since the previous sample.
	StatusStalled Status = "stalled"
)

// Report is one health sample of a running pipeline.
type Report struct {
	// Time is when the sample was taken.
	Time time.Time

	// Status summarises the sample.
	Status Status

	// Ticks is the pipeline's tick counter at sample time.
	Ticks uint64

	// SourceErrors is the total source read failures across all sources.
	SourceErrors uint64

	// Dropped is the total buffers lost to full pipeline queues.
	Dropped uint64

	// MutedSources lists sources currently substituted with silence.
	MutedSources []string
}

// Collector produces the raw numbers for one sample. Implementations must be
// safe to call from the monitor goroutine; typically the session wraps its
// graph stats behind a mutex.
type Collector func() Report

// Monitor samples a collector periodically and classifies progress between
// samples.
type Monitor struct {
	collect Collector
	period  time.Duration
	reports chan Report

	lastTicks   uint64
	haveBase    bool
	lastErrors  uint64
	lastDropped uint64
}

// NewMonitor creates a monitor for the given collector. A non-positive
// period falls back to [DefaultPeriod].
func NewMonitor(collect Collector, period time.Duration) *Monitor {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Monitor{
		collect: collect,
		period:  period,
		reports: make(chan Report, 1),
	}
}

// C returns the report channel. The monitor never blocks on a slow consumer;
// when the channel is full the stale report is replaced by the fresh one.
func (m *Monitor) C() <-chan Report {
	return m.reports
}

// Run samples until ctx is cancelled, then closes the report channel. Call
// it in its own goroutine.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()
	defer close(m.reports)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.publish(m.sample())
		}
	}
}

// sample collects and classifies one report.
func (m *Monitor) sample() Report {
	r := m.collect()
	if r.Time.IsZero() {
		r.Time = time.Now()
	}

	switch {
	case m.haveBase && r.Ticks == m.lastTicks:
		r.Status = StatusStalled
	case len(r.MutedSources) > 0,
		m.haveBase && r.SourceErrors > m.lastErrors,
		m.haveBase && r.Dropped > m.lastDropped:
		r.Status = StatusDegraded
	default:
		r.Status = StatusOK
	}

	m.lastTicks = r.Ticks
	m.lastErrors = r.SourceErrors
	m.lastDropped = r.Dropped
	m.haveBase = true
	return r
}

// publish delivers r, dropping the previous report if nobody consumed it.
func (m *Monitor) publish(r Report) {
	for {
		select {
		case m.reports <- r:
			return
		default:
			select {
			case <-m.reports:
			default:
			}
		}
	}
}
