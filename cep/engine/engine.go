// Package engine runs the NFA compiled by cep/compiler against a
// timestamped event stream, maintaining the live set of in-flight
// computations and their shared buffer.
package engine

import (
	"github.com/cepflow/cepflow/cep/dewey"
	"github.com/cepflow/cepflow/cep/nfa"
	"github.com/cepflow/cepflow/cep/sharedbuffer"
)

// Option configures an NFA at construction time.
type Option[V any] func(*NFA[V])

// WithMaxComputations caps the number of live computations the engine
// tolerates; exceeding it on a Process call returns ErrStateOverflow and
// rolls the round back. Zero (the default) means unbounded.
func WithMaxComputations[V any](max int) Option[V] {
	return func(n *NFA[V]) { n.maxComputations = max }
}

// WithObserver attaches a load observer invoked after every successful
// Process call.
func WithObserver[V any](obs Observer) Option[V] {
	return func(n *NFA[V]) { n.observer = obs }
}

// NFA runs one compiled graph against one event stream.
type NFA[V any] struct {
	graph  *nfa.Graph[V]
	buffer *sharedbuffer.Buffer[V]

	computations     []*Computation[V]
	eventCounter     uint64
	lastTimestamp    int64
	hasLastTimestamp bool

	maxComputations int
	observer        Observer
}

// New builds an NFA runtime for graph.
func New[V any](graph *nfa.Graph[V], opts ...Option[V]) *NFA[V] {
	n := &NFA[V]{
		graph:  graph,
		buffer: sharedbuffer.New[V](),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// IsEmpty reports whether the engine currently holds no in-flight
// computations.
func (n *NFA[V]) IsEmpty() bool {
	return len(n.computations) == 0
}

// Process advances the automaton by one event. event may be nil to
// advance the watermark without supplying a new event, which still
// expires any computation that has exceeded the pattern's window.
//
// On success it returns every match completed this round and every
// partial match that timed out this round. On a ConditionError or
// ErrStateOverflow the engine's state (computations and shared buffer)
// is left exactly as it was before the call.
func (n *NFA[V]) Process(event *V, timestamp int64) ([]Match[V], []Timeout[V], error) {
	if n.hasLastTimestamp && timestamp < n.lastTimestamp {
		return nil, nil, ErrTimeRegression
	}

	// The buffer is snapshotted before any mutation this round —
	// including the window pre-filter below — so any later rollback
	// (a stage condition error, or a computation-count overflow)
	// undoes the whole round, not just the expand phase.
	snap := n.buffer.Snapshot()

	if event == nil {
		survivors, timeouts := n.expireWindow(n.computations, timestamp)
		n.computations = survivors
		n.lastTimestamp = timestamp
		n.hasLastTimestamp = true
		n.buffer.Prune(n.windowFloor(timestamp))
		n.reportLoad()
		return nil, timeouts, nil
	}

	// A computation already outside the window is expired before it
	// gets a chance to act on this event at all: window membership is
	// evaluated once, at the moment a computation would next advance,
	// not retroactively after it has already taken the event.
	alive, earlyTimeouts := n.expireWindow(n.computations, timestamp)

	counter := n.eventCounter
	working := make([]*Computation[V], 0, len(alive)+1)
	working = append(working, alive...)
	working = append(working, &Computation[V]{state: n.graph.Start, version: dewey.New(), startTime: timestamp})

	var nextGen, finals []*Computation[V]
	for _, c := range working {
		children, err := n.expand(c, event, timestamp, counter)
		if err != nil {
			n.buffer.Restore(snap)
			return nil, nil, &ConditionError{Err: err}
		}
		if c.hasPrev {
			n.buffer.DecRef(c.prevNode)
		}
		for _, child := range children {
			switch child.state.Kind {
			case nfa.Stop:
				if child.hasPrev {
					n.buffer.DecRef(child.prevNode)
				}
			case nfa.Final:
				finals = append(finals, child)
			default:
				nextGen = append(nextGen, child)
			}
		}
	}

	if n.maxComputations > 0 && len(nextGen) > n.maxComputations {
		n.buffer.Restore(snap)
		return nil, nil, ErrStateOverflow
	}

	var matches []Match[V]
	for _, c := range finals {
		matches = append(matches, n.extractMatches(c)...)
		if c.hasPrev {
			n.buffer.DecRef(c.prevNode)
		}
	}

	n.eventCounter++
	n.lastTimestamp = timestamp
	n.hasLastTimestamp = true
	n.computations = nextGen
	n.buffer.Prune(n.windowFloor(timestamp))
	n.reportLoad()

	return matches, earlyTimeouts, nil
}

// expireWindow splits comps into those still inside the pattern window
// at timestamp and those that have exceeded it. A computation is alive
// only while strictly less than WindowNanos old: the boundary is
// exclusive so that a match spanning exactly the window length is
// treated as already-expired rather than squeaking through (see
// DESIGN.md's discussion of the window scenario). Expired computations
// that hold a shared-buffer reference are released; if the graph
// reports timeouts, each is also turned into a Timeout (one per
// surviving extraction path).
func (n *NFA[V]) expireWindow(comps []*Computation[V], timestamp int64) (survivors []*Computation[V], timeouts []Timeout[V]) {
	if n.graph.WindowNanos <= 0 {
		return comps, nil
	}
	survivors = make([]*Computation[V], 0, len(comps))
	for _, c := range comps {
		if timestamp-c.startTime < n.graph.WindowNanos {
			survivors = append(survivors, c)
			continue
		}
		if n.graph.HandleTimeouts {
			for _, m := range n.extractMatches(c) {
				timeouts = append(timeouts, Timeout[V]{Match: m, StartTime: c.startTime, ExpiredAt: timestamp})
			}
		}
		if c.hasPrev {
			n.buffer.DecRef(c.prevNode)
		}
	}
	return survivors, timeouts
}

func (n *NFA[V]) extractMatches(c *Computation[V]) []Match[V] {
	if !c.hasPrev {
		return nil
	}
	paths := n.buffer.ExtractPaths(c.prevNode, c.version)
	return buildMatches(paths)
}

func (n *NFA[V]) windowFloor(timestamp int64) int64 {
	if n.graph.WindowNanos <= 0 {
		return 0
	}
	return timestamp - n.graph.WindowNanos
}

func (n *NFA[V]) reportLoad() {
	if n.observer != nil {
		n.observer.Observe(len(n.computations), n.buffer.Len())
	}
}
