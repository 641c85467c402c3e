// Package session controls the lifecycle of capture pipelines: building a
// graph from configuration, driving it on a wall-clock ticker, and tearing
// it down best-effort.
//
// A [Manager] owns any number of concurrent sessions keyed by id. Each
// session runs its tick loop and health monitor in an errgroup; Pause and
// Resume gate ticking without touching pipeline state, so a resumed session
// continues exactly where it left off.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/tapedeck/internal/config"
	"github.com/MrWong99/tapedeck/internal/health"
	"github.com/MrWong99/tapedeck/internal/observe"
	"github.com/MrWong99/tapedeck/pkg/audio/graph"
	"github.com/MrWong99/tapedeck/pkg/audio/processors"
)

// State describes a session's lifecycle phase.
type State string

const (
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

// Stats is a point-in-time snapshot of one session.
type Stats struct {
	// ID is the session identifier.
	ID string

	// State is the lifecycle phase at snapshot time.
	State State

	// StartedAt is when the session started.
	StartedAt time.Time

	// Ticks is how many pipeline ticks have run.
	Ticks uint64

	// Nodes holds per-node counters in pipeline order.
	Nodes []graph.NodeStats

	// Warnings holds non-fatal teardown errors; only populated on the final
	// snapshot returned by [Manager.Stop].
	Warnings []error
}

// ManagerConfig holds the dependencies for a [Manager].
type ManagerConfig struct {
	// Factory builds sources for session configs. Defaults to
	// [DefaultSourceFactory].
	Factory SourceFactory

	// Metrics receives per-tick measurements. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// HealthPeriod is the sampling interval of each session's health
	// monitor. Defaults to [health.DefaultPeriod].
	HealthPeriod time.Duration
}

// Manager owns the running sessions. All exported methods are safe for
// concurrent use.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*running

	factory      SourceFactory
	metrics      *observe.Metrics
	healthPeriod time.Duration
}

// NewManager creates a Manager with the given dependencies.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Factory == nil {
		cfg.Factory = DefaultSourceFactory
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.HealthPeriod <= 0 {
		cfg.HealthPeriod = health.DefaultPeriod
	}
	return &Manager{
		sessions:     make(map[string]*running),
		factory:      cfg.Factory,
		metrics:      cfg.Metrics,
		healthPeriod: cfg.HealthPeriod,
	}
}

// running is one live session. Its mutex guards the graph and pause flag
// against concurrent access from the tick loop, the health collector, and
// snapshot calls.
type running struct {
	id        string
	startedAt time.Time
	interval  time.Duration

	mu       sync.Mutex
	pipe     *Pipeline
	paused   bool
	lastVAD   processors.VADState
	prevErrs  map[string]uint64
	prevBufs  int64
	prevSmps  int64
	prevDrops uint64

	cancel context.CancelFunc
	eg     *errgroup.Group
}

// Start builds, validates, and launches the pipeline described by cfg under
// the given id. Configuration and source startup problems fail fast; after a
// successful return the session ticks in the background until [Manager.Stop]
// or ctx cancellation.
func (m *Manager) Start(ctx context.Context, id string, cfg config.SessionConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; ok {
		return fmt.Errorf("session %q is already running", id)
	}

	pipe, err := Build(cfg, m.factory)
	if err != nil {
		return fmt.Errorf("session %q: %w", id, err)
	}
	if err := pipe.Graph.Start(); err != nil {
		return fmt.Errorf("session %q: %w", id, err)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	eg, egCtx := errgroup.WithContext(sessionCtx)

	r := &running{
		id:        id,
		startedAt: time.Now().UTC(),
		interval:  cfg.BufferDuration(),
		pipe:      pipe,
		lastVAD:   processors.VADActive,
		prevErrs:  make(map[string]uint64),
		cancel:    cancel,
		eg:        eg,
	}

	monitor := health.NewMonitor(r.collectHealth, m.healthPeriod)
	eg.Go(func() error {
		monitor.Run(egCtx)
		return nil
	})
	eg.Go(func() error {
		for report := range monitor.C() {
			if report.Status != health.StatusOK {
				slog.Warn("session health",
					"session_id", id,
					"status", report.Status,
					"ticks", report.Ticks,
					"source_errors", report.SourceErrors,
					"dropped", report.Dropped,
					"muted", report.MutedSources,
				)
			}
		}
		return nil
	})
	eg.Go(func() error {
		r.loop(egCtx, m.metrics)
		return nil
	})

	m.sessions[id] = r
	m.metrics.ActiveSessions.Add(ctx, 1)

	slog.Info("session started",
		"session_id", id,
		"sources", len(cfg.Sources),
		"sinks", len(cfg.Sinks),
		"buffer", r.interval,
	)
	return nil
}

// Pause suspends ticking. Sources keep running and pipeline state is
// preserved; buffered audio stays where it is until Resume.
func (m *Manager) Pause(id string) error {
	r, err := m.get(id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.paused = true
	r.mu.Unlock()
	slog.Info("session paused", "session_id", id)
	return nil
}

// Resume continues ticking a paused session exactly where it left off.
func (m *Manager) Resume(id string) error {
	r, err := m.get(id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.paused = false
	r.mu.Unlock()
	slog.Info("session resumed", "session_id", id)
	return nil
}

// Stop ends the session: the tick loop is cancelled, remaining banked audio
// is flushed through the pipeline, and sources and sinks are shut down
// best-effort. Partial teardown failures appear as warnings in the returned
// snapshot; the error is non-nil only when teardown failed completely.
func (m *Manager) Stop(ctx context.Context, id string) (Stats, error) {
	m.mu.Lock()
	r, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return Stats{}, fmt.Errorf("session %q is not running", id)
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	r.cancel()
	_ = r.eg.Wait()

	r.mu.Lock()
	if err := r.pipe.Graph.Flush(); err != nil {
		slog.Warn("session: flush", "session_id", id, "err", err)
	}
	warnings, err := r.pipe.Graph.Stop()
	for _, w := range warnings {
		slog.Warn("session: teardown", "session_id", id, "err", w)
	}
	st := r.snapshotLocked(StateStopped)
	st.Warnings = warnings
	r.mu.Unlock()

	m.metrics.ActiveSessions.Add(ctx, -1)
	slog.Info("session stopped", "session_id", id, "ticks", st.Ticks, "warnings", len(warnings))

	if err != nil {
		return st, fmt.Errorf("session %q: %w", id, err)
	}
	return st, nil
}

// Stats returns a snapshot of the session, or false when the id is unknown.
// It never blocks on a running tick for longer than one buffer interval.
func (m *Manager) Stats(id string) (Stats, bool) {
	r, err := m.get(id)
	if err != nil {
		return Stats{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	state := StateRunning
	if r.paused {
		state = StatePaused
	}
	return r.snapshotLocked(state), true
}

// Active returns the ids of all running sessions.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) get(id string) (*running, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q is not running", id)
	}
	return r, nil
}

// loop drives the pipeline on a wall-clock ticker until ctx is cancelled.
func (r *running) loop(ctx context.Context, metrics *observe.Metrics) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx, metrics)
		}
	}
}

// tick runs one pipeline step and records its measurements.
func (r *running) tick(ctx context.Context, metrics *observe.Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paused {
		return
	}

	start := time.Now()
	err := r.pipe.Graph.Tick()
	elapsed := time.Since(start)

	var buffers, samples int64
	var drops uint64
	for _, st := range r.pipe.Graph.Stats() {
		drops += st.Dropped
		switch st.Role {
		case graph.RoleSink:
			buffers += int64(st.Sink.BuffersWritten)
			samples += int64(st.Sink.SamplesWritten)
		case graph.RoleSource:
			if st.Source.Errors > r.prevErrs[st.Name] {
				metrics.RecordSourceError(ctx, r.id, st.Name)
				r.prevErrs[st.Name] = st.Source.Errors
			}
		}
	}
	metrics.RecordTick(ctx, r.id, elapsed, buffers-r.prevBufs, samples-r.prevSmps)
	r.prevBufs, r.prevSmps = buffers, samples
	if drops > r.prevDrops {
		metrics.RecordDrops(ctx, r.id, int64(drops-r.prevDrops))
		r.prevDrops = drops
	}

	if det := r.pipe.Detector; det != nil {
		if state := det.State(); state != r.lastVAD {
			metrics.RecordSilenceTransition(ctx, r.id, string(state))
			slog.Info("session: silence state changed", "session_id", r.id, "state", state)
			r.lastVAD = state
		}
	}

	if err != nil {
		slog.Debug("session: tick errors", "session_id", r.id, "err", err)
	}
}

// collectHealth samples the graph for the health monitor.
func (r *running) collectHealth() health.Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := health.Report{
		Time:         time.Now(),
		Ticks:        r.pipe.Graph.Ticks(),
		MutedSources: r.pipe.Graph.MutedSources(),
	}
	for _, st := range r.pipe.Graph.Stats() {
		if st.Role == graph.RoleSource {
			report.SourceErrors += st.Source.Errors
		}
		report.Dropped += st.Dropped
	}
	return report
}

func (r *running) snapshotLocked(state State) Stats {
	return Stats{
		ID:        r.id,
		State:     state,
		StartedAt: r.startedAt,
		Ticks:     r.pipe.Graph.Ticks(),
		Nodes:     r.pipe.Graph.Stats(),
	}
}
