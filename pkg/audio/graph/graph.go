// Package graph wires sources, processors and sinks into a directed acyclic
// pipeline and drives it one tick at a time.
//
// A graph is owned by exactly one recording session and ticked from a single
// goroutine; none of its methods are safe for concurrent use except where
// documented. Buffers travel along per-edge queues, so a producer feeding
// several consumers hands each of them an independent copy.
package graph

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/tapedeck/pkg/audio"
)

// NodeID identifies a node within one graph. IDs are stable for the graph's
// lifetime and never reused.
type NodeID uint64

// String renders the id for logs and errors.
func (id NodeID) String() string { return fmt.Sprintf("node-%d", id) }

// Role classifies a node's position in the pipeline.
type Role string

const (
	RoleSource    Role = "source"
	RoleProcessor Role = "processor"
	RoleSink      Role = "sink"
)

// maxQueueDepth bounds every per-edge queue. A consumer that stalls for
// longer than this many buffers loses the oldest audio rather than growing
// without bound.
const maxQueueDepth = 64

// ErrCycle is returned by Connect when the new edge would close a loop.
var ErrCycle = errors.New("graph: connection would create a cycle")

// ErrUnknownNode is returned when an id does not belong to this graph.
var ErrUnknownNode = errors.New("graph: unknown node")

// node is the internal wrapper around one pipeline participant.
type node struct {
	id   NodeID
	role Role

	source audio.Source
	proc   audio.Processor
	sink   audio.Sink

	// outFormat is the resolved output format: fixed at add time for
	// sources, derived from the upstream format when a processor gets its
	// first input edge.
	outFormat    audio.Format
	hasOutFormat bool

	// Source degradation state.
	muted      bool
	lastFrames int
}

// name returns the underlying node's self-reported name.
func (n *node) name() string {
	switch n.role {
	case RoleSource:
		return n.source.Name()
	case RoleProcessor:
		return n.proc.Name()
	default:
		return n.sink.Name()
	}
}

// edge identifies a directed connection.
type edge struct {
	from, to NodeID
}

// NodeStats is one entry of a [Graph.Stats] snapshot.
type NodeStats struct {
	ID   NodeID
	Name string
	Role Role

	Source    audio.SourceStats
	Processor audio.ProcessorStats
	Sink      audio.SinkStats

	// Dropped counts buffers lost to the queue depth guard on this node's
	// outgoing edges.
	Dropped uint64
}

// Graph owns all nodes and connections of one pipeline instance.
type Graph struct {
	nextID NodeID
	nodes  map[NodeID]*node

	// inputs holds the ordered upstream list per consumer; outputs the
	// downstream list per producer. queues buffers in flight per edge.
	inputs  map[NodeID][]NodeID
	outputs map[NodeID][]NodeID
	queues  map[edge][]*audio.Buffer
	dropped map[NodeID]uint64

	order   []NodeID // topological order, rebuilt on Connect
	ticks   uint64
	started bool
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:   make(map[NodeID]*node),
		inputs:  make(map[NodeID][]NodeID),
		outputs: make(map[NodeID][]NodeID),
		queues:  make(map[edge][]*audio.Buffer),
		dropped: make(map[NodeID]uint64),
	}
}

// AddSource registers a source and returns its id. The source's format must
// validate.
func (g *Graph) AddSource(s audio.Source) (NodeID, error) {
	if err := s.Format().Validate(); err != nil {
		return 0, fmt.Errorf("add source %q: %w", s.Name(), err)
	}
	n := &node{role: RoleSource, source: s, outFormat: s.Format(), hasOutFormat: true}
	return g.add(n), nil
}

// AddProcessor registers a processor and returns its id.
func (g *Graph) AddProcessor(p audio.Processor) NodeID {
	return g.add(&node{role: RoleProcessor, proc: p})
}

// AddSink registers a sink and returns its id.
func (g *Graph) AddSink(s audio.Sink) NodeID {
	return g.add(&node{role: RoleSink, sink: s})
}

func (g *Graph) add(n *node) NodeID {
	g.nextID++
	n.id = g.nextID
	g.nodes[n.id] = n
	g.order = append(g.order, n.id)
	return n.id
}

// Connect adds a directed edge from producer to consumer after validating
// roles, arity, format compatibility and acyclicity. Invalid connections
// are rejected with a descriptive error and leave the graph unchanged.
func (g *Graph) Connect(from, to NodeID) error {
	src, ok := g.nodes[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, from)
	}
	dst, ok := g.nodes[to]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, to)
	}

	if src.role == RoleSink {
		return fmt.Errorf("%w: sink %q cannot produce", audio.ErrInvalidConfig, src.name())
	}
	if dst.role == RoleSource {
		return fmt.Errorf("%w: source %q cannot consume", audio.ErrInvalidConfig, dst.name())
	}
	for _, existing := range g.inputs[to] {
		if existing == from {
			return fmt.Errorf("%w: %q already feeds %q", audio.ErrInvalidConfig, src.name(), dst.name())
		}
	}

	// Arity: plain processors take one input, mixers their declared count.
	if dst.role == RoleProcessor {
		limit := 1
		if mp, ok := dst.proc.(audio.MultiProcessor); ok {
			limit = mp.Inputs()
		}
		if len(g.inputs[to]) >= limit {
			return fmt.Errorf("%w: %q accepts %d input(s), already connected",
				audio.ErrInvalidConfig, dst.name(), limit)
		}
	}

	if !src.hasOutFormat {
		return fmt.Errorf("%w: %q has no resolved format yet; connect its input first",
			audio.ErrInvalidConfig, src.name())
	}

	// Format compatibility against the consumer's expectation.
	if err := g.checkFormat(src, dst); err != nil {
		return err
	}

	// Tentatively add and reject on cycle.
	g.inputs[to] = append(g.inputs[to], from)
	g.outputs[from] = append(g.outputs[from], to)
	order, err := g.topoSort()
	if err != nil {
		g.inputs[to] = g.inputs[to][:len(g.inputs[to])-1]
		g.outputs[from] = g.outputs[from][:len(g.outputs[from])-1]
		return err
	}
	g.order = order

	// Resolve the consumer's output format on its first input.
	if dst.role == RoleProcessor && !dst.hasOutFormat {
		dst.outFormat = dst.proc.OutputFormat(src.outFormat)
		dst.hasOutFormat = true
	}
	return nil
}

// checkFormat validates the producer's resolved format against what the
// consumer expects.
func (g *Graph) checkFormat(src, dst *node) error {
	switch dst.role {
	case RoleProcessor:
		// All inputs of one processor must share a format; in practice this
		// bites mixers, whose inputs are never resampled implicitly.
		if prior := g.inputs[dst.id]; len(prior) > 0 {
			first := g.nodes[prior[0]]
			if !first.outFormat.Compatible(src.outFormat) {
				return fmt.Errorf("connect %q -> %q: %w",
					src.name(), dst.name(), audio.MismatchError(first.outFormat, src.outFormat))
			}
		}
	case RoleSink:
		// Sinks with a declared format are validated here; sinks that pin
		// their format on first write validate themselves.
		type formatted interface{ Format() audio.Format }
		if fs, ok := dst.sink.(formatted); ok {
			if want := fs.Format(); !want.Compatible(src.outFormat) {
				return fmt.Errorf("connect %q -> %q: %w",
					src.name(), dst.name(), audio.MismatchError(want, src.outFormat))
			}
		}
	}
	return nil
}

// topoSort returns a producer-before-consumer ordering, or [ErrCycle].
func (g *Graph) topoSort() ([]NodeID, error) {
	indegree := make(map[NodeID]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = len(g.inputs[id])
	}

	var ready []NodeID
	for id := range g.nodes {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	// Deterministic order for equal-rank nodes.
	sortIDs(ready)

	var order []NodeID
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		next := append([]NodeID(nil), g.outputs[id]...)
		sortIDs(next)
		for _, out := range next {
			indegree[out]--
			if indegree[out] == 0 {
				ready = append(ready, out)
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil, ErrCycle
	}
	return order, nil
}

func sortIDs(ids []NodeID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}

// Validate checks that the assembled graph is runnable: at least one source
// and one sink, every mixer fully connected, every plain processor and sink
// fed. Call after assembly, before Start.
func (g *Graph) Validate() error {
	var errs []error
	var nSources, nSinks int

	for _, id := range g.order {
		n := g.nodes[id]
		switch n.role {
		case RoleSource:
			nSources++
		case RoleSink:
			nSinks++
			if len(g.inputs[id]) == 0 {
				errs = append(errs, fmt.Errorf("sink %q has no input", n.name()))
			}
		case RoleProcessor:
			if mp, ok := n.proc.(audio.MultiProcessor); ok {
				if got := len(g.inputs[id]); got != mp.Inputs() {
					errs = append(errs, fmt.Errorf("mixer %q needs %d inputs, has %d",
						n.name(), mp.Inputs(), got))
				}
			} else if len(g.inputs[id]) == 0 {
				errs = append(errs, fmt.Errorf("processor %q has no input", n.name()))
			}
			if len(g.outputs[id]) == 0 {
				errs = append(errs, fmt.Errorf("processor %q output is not consumed", n.name()))
			}
		}
	}

	if nSources == 0 {
		errs = append(errs, errors.New("graph has no sources"))
	}
	if nSinks == 0 {
		errs = append(errs, errors.New("graph has no sinks"))
	}
	return errors.Join(errs...)
}

// Start starts every source. Fails fast on the first source that refuses to
// start, stopping the ones already started.
func (g *Graph) Start() error {
	if g.started {
		return fmt.Errorf("%w: graph already started", audio.ErrInvalidConfig)
	}
	var started []audio.Source
	for _, id := range g.order {
		n := g.nodes[id]
		if n.role != RoleSource {
			continue
		}
		if err := n.source.Start(); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				if stopErr := started[i].Stop(); stopErr != nil {
					slog.Warn("graph: source stop during failed start", "source", started[i].Name(), "err", stopErr)
				}
			}
			return fmt.Errorf("start source %q: %w", n.source.Name(), err)
		}
		started = append(started, n.source)
	}
	g.started = true
	return nil
}

// Tick drives one processing step: every source is read once, processors run
// in producer-before-consumer order, and final buffers are delivered to the
// sinks. Node errors are isolated: a failing source is muted and replaced
// with silence so its mixer keeps full arity, while a failing processor or
// sink drops that buffer. All node errors are joined into the returned error for
// the caller to log. The graph itself keeps running.
func (g *Graph) Tick() error {
	g.ticks++
	var errs []error

	for _, id := range g.order {
		n := g.nodes[id]
		switch n.role {
		case RoleSource:
			g.tickSource(n, &errs)
		case RoleProcessor:
			g.tickProcessor(n, &errs)
		case RoleSink:
			g.tickSink(n, &errs)
		}
	}
	return errors.Join(errs...)
}

// Ticks returns how many times Tick has run.
func (g *Graph) Ticks() uint64 { return g.ticks }

func (g *Graph) tickSource(n *node, errs *[]error) {
	buf, err := n.source.Read()
	if err != nil {
		// Degrade this input: keep the graph and its siblings running on
		// substituted silence so downstream arity holds.
		if !n.muted {
			slog.Warn("graph: source failed, muting", "source", n.source.Name(), "err", err)
			n.muted = true
		}
		*errs = append(*errs, fmt.Errorf("source %q: %w", n.source.Name(), err))
		if n.lastFrames > 0 {
			g.fanOut(n, audio.NewSilentBuffer(n.outFormat, n.lastFrames, g.ticks))
		}
		return
	}
	if buf == nil {
		return
	}
	if n.muted {
		slog.Info("graph: source recovered", "source", n.source.Name())
		n.muted = false
	}
	n.lastFrames = buf.Frames()
	g.fanOut(n, buf)
}

func (g *Graph) tickProcessor(n *node, errs *[]error) {
	if mp, ok := n.proc.(audio.MultiProcessor); ok {
		g.tickMixer(n, mp, errs)
		return
	}

	up := g.inputs[n.id]
	if len(up) == 0 {
		return
	}
	e := edge{from: up[0], to: n.id}
	for len(g.queues[e]) > 0 {
		in := g.queues[e][0]
		g.queues[e] = g.queues[e][1:]

		out, err := n.proc.Process(in)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("processor %q: %w", n.proc.Name(), err))
			continue
		}
		if out != nil {
			g.fanOut(n, out)
		}
	}
}

// tickMixer fires only when every input edge has a buffer queued; otherwise
// the queued inputs wait for the stragglers.
func (g *Graph) tickMixer(n *node, mp audio.MultiProcessor, errs *[]error) {
	up := g.inputs[n.id]
	if len(up) != mp.Inputs() {
		return
	}

	for {
		in := make([]*audio.Buffer, 0, len(up))
		for _, from := range up {
			e := edge{from: from, to: n.id}
			if len(g.queues[e]) == 0 {
				return
			}
			in = append(in, g.queues[e][0])
		}
		for _, from := range up {
			e := edge{from: from, to: n.id}
			g.queues[e] = g.queues[e][1:]
		}

		out, err := mp.ProcessMulti(in)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("mixer %q: %w", mp.Name(), err))
			continue
		}
		if out != nil {
			g.fanOut(n, out)
		}
	}
}

func (g *Graph) tickSink(n *node, errs *[]error) {
	for _, from := range g.inputs[n.id] {
		e := edge{from: from, to: n.id}
		for len(g.queues[e]) > 0 {
			buf := g.queues[e][0]
			g.queues[e] = g.queues[e][1:]
			if err := n.sink.Write(buf); err != nil {
				*errs = append(*errs, fmt.Errorf("sink %q: %w", n.sink.Name(), err))
			}
		}
	}
}

// fanOut appends buf to each outgoing edge queue of n. The first consumer
// gets the original, every further consumer an independent clone. Queues at
// capacity lose their oldest buffer.
func (g *Graph) fanOut(n *node, buf *audio.Buffer) {
	outs := g.outputs[n.id]
	for i, to := range outs {
		b := buf
		if i > 0 {
			b = buf.Clone()
		}
		e := edge{from: n.id, to: to}
		if len(g.queues[e]) >= maxQueueDepth {
			g.queues[e] = g.queues[e][1:]
			g.dropped[n.id]++
			slog.Debug("graph: queue full, dropping oldest",
				"from", n.name(), "to", g.nodes[to].name(), "dropped", g.dropped[n.id])
		}
		g.queues[e] = append(g.queues[e], b)
	}
}

// Flush runs end-of-stream draining: processors exposing a Flush method
// (resampler chunk remainder, normalizer look-ahead) emit their banked
// audio, which flows through the rest of the pipeline to the sinks.
func (g *Graph) Flush() error {
	type flusher interface{ Flush() *audio.Buffer }

	var errs []error
	for _, id := range g.order {
		n := g.nodes[id]
		if n.role != RoleProcessor {
			continue
		}
		// Ingest queued input first: an upstream flusher's tail must land in
		// this node's bank before the bank itself is drained, or it would
		// stay stuck there after the one flush pass.
		g.tickProcessor(n, &errs)
		if f, ok := n.proc.(flusher); ok {
			if buf := f.Flush(); buf != nil {
				g.fanOut(n, buf)
			}
		}
	}
	for _, id := range g.order {
		if n := g.nodes[id]; n.role == RoleSink {
			g.tickSink(n, &errs)
		}
	}
	return errors.Join(errs...)
}

// Reset clears every processor's transient state and drops in-flight
// buffers. Used on resume after a pause that is meant to discard, not on a
// plain pause (which simply stops ticking).
func (g *Graph) Reset() {
	for _, n := range g.nodes {
		if n.role == RoleProcessor {
			n.proc.Reset()
		}
	}
	for e := range g.queues {
		delete(g.queues, e)
	}
}

// Stop ends the pipeline best-effort: every source is stopped and every sink
// flushed and closed even when earlier nodes fail. Partial failures come
// back as warnings; the returned error is non-nil only when every single
// node failed to stop.
func (g *Graph) Stop() (warnings []error, err error) {
	var attempted, failed int

	for _, id := range g.order {
		n := g.nodes[id]
		switch n.role {
		case RoleSource:
			attempted++
			if stopErr := n.source.Stop(); stopErr != nil {
				failed++
				warnings = append(warnings, fmt.Errorf("stop source %q: %w", n.source.Name(), stopErr))
			}
		case RoleSink:
			attempted++
			var sinkErrs []error
			if flushErr := n.sink.Flush(); flushErr != nil && !errors.Is(flushErr, audio.ErrClosed) {
				sinkErrs = append(sinkErrs, fmt.Errorf("flush sink %q: %w", n.sink.Name(), flushErr))
			}
			if closeErr := n.sink.Close(); closeErr != nil {
				sinkErrs = append(sinkErrs, fmt.Errorf("close sink %q: %w", n.sink.Name(), closeErr))
			}
			if len(sinkErrs) > 0 {
				failed++
				warnings = append(warnings, sinkErrs...)
			}
		}
	}

	g.started = false
	if attempted > 0 && failed == attempted {
		return warnings, fmt.Errorf("graph stop: all %d nodes failed: %w", attempted, errors.Join(warnings...))
	}
	return warnings, nil
}

// MutedSources lists the names of sources currently substituted with
// silence.
func (g *Graph) MutedSources() []string {
	var muted []string
	for _, id := range g.order {
		n := g.nodes[id]
		if n.role == RoleSource && n.muted {
			muted = append(muted, n.source.Name())
		}
	}
	return muted
}

// Stats returns a snapshot of every node's counters in topological order.
func (g *Graph) Stats() []NodeStats {
	out := make([]NodeStats, 0, len(g.order))
	for _, id := range g.order {
		n := g.nodes[id]
		st := NodeStats{
			ID:      id,
			Name:    n.name(),
			Role:    n.role,
			Dropped: g.dropped[id],
		}
		switch n.role {
		case RoleSource:
			st.Source = n.source.Stats()
		case RoleProcessor:
			st.Processor = n.proc.Stats()
		case RoleSink:
			st.Sink = n.sink.Stats()
		}
		out = append(out, st)
	}
	return out
}
