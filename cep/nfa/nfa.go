// Package nfa holds the compiled automaton shape produced by cep/compiler:
// states, their guarded edges and the top-level graph, window and
// timeout-handling flag. The runtime that walks this graph lives in
// cep/engine.
package nfa

import "github.com/cepflow/cepflow/cep/condition"

// Kind classifies a State's role in the computation lifecycle.
type Kind int

const (
	// Normal states represent a computation waiting on, or partway
	// through, a stage.
	Normal Kind = iota
	// Start is the synthetic entry point: every incoming event is
	// evaluated against a fresh computation rooted here.
	Start
	// Final marks a complete match; reaching it extracts the matched
	// event sequence and discards the computation.
	Final
	// Stop marks a dead branch; reaching it discards the computation
	// and releases its shared-buffer reference.
	Stop
)

func (k Kind) String() string {
	switch k {
	case Normal:
		return "normal"
	case Start:
		return "start"
	case Final:
		return "final"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// Action classifies what an Edge does with the event under evaluation.
type Action int

const (
	// Take consumes the event, appends it to the match under the
	// edge's StageName and moves to Target.
	Take Action = iota
	// Ignore does not consume the event; it only moves to Target, used
	// for self-loops (skip continuity) and dead-branch routing.
	Ignore
	// Proceed is an epsilon transition: it fires without inspecting
	// the event at all, modelling optionality and group exit.
	Proceed
)

func (a Action) String() string {
	switch a {
	case Take:
		return "take"
	case Ignore:
		return "ignore"
	case Proceed:
		return "proceed"
	default:
		return "unknown"
	}
}

// Edge is a guarded transition out of a State. Condition is nil for
// unconditional edges (Proceed, and the unconditional Ignore self-loop
// skip-till-any compiles). StageName is only meaningful on Take edges:
// it names the pattern stage the consumed event is recorded under, which
// is deliberately independent of Target's identity (see DESIGN.md).
type Edge[V any] struct {
	Target    *State[V]
	Condition condition.Predicate[V]
	Action    Action
	StageName string
}

// State is one node of the compiled automaton.
type State[V any] struct {
	// Name identifies the state for diagnostics; for Normal states it
	// is usually (but not necessarily) the stage name reached through
	// it.
	Name  string
	Kind  Kind
	Edges []Edge[V]
}

// Graph is a fully compiled pattern: a start state plus window/timeout
// policy. Stop is kept for completeness and diagnostics even though
// nothing holds an outgoing edge from it.
type Graph[V any] struct {
	Start *State[V]
	Stop  *State[V]

	// WindowNanos bounds how long a computation may live after its
	// Start-time before it is pruned; zero means unbounded.
	WindowNanos int64
	// HandleTimeouts controls whether a window-pruned computation is
	// reported as a partial match rather than silently discarded.
	HandleTimeouts bool
}
