// Package compiler folds a pattern.Pattern into the nfa.Graph the
// runtime engine walks. Stages are compiled right to left: each stage's
// entry state is built knowing the already-compiled entry of the stage
// that follows it.
package compiler

import (
	"errors"
	"fmt"

	"github.com/cepflow/cepflow/cep/condition"
	"github.com/cepflow/cepflow/cep/nfa"
	"github.com/cepflow/cepflow/cep/pattern"
)

// ErrEmptyPattern is returned when compiling a pattern with no stages.
var ErrEmptyPattern = errors.New("compiler: pattern has no stages")

// InvalidPatternError reports a stage the compiler cannot turn into an
// automaton fragment.
type InvalidPatternError struct {
	Stage  string
	Reason string
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("compiler: stage %q: %s", e.Stage, e.Reason)
}

// Compile turns p into a runnable automaton. handleTimeouts controls
// whether the resulting graph reports window-expired partial matches
// (see nfa.Graph.HandleTimeouts).
func Compile[V any](p *pattern.Pattern[V], handleTimeouts bool) (*nfa.Graph[V], error) {
	if p == nil || len(p.Stages) == 0 {
		return nil, ErrEmptyPattern
	}

	stop := &nfa.State[V]{Name: "$stop", Kind: nfa.Stop}
	final := &nfa.State[V]{Name: "$final", Kind: nfa.Final}

	next := final
	for i := len(p.Stages) - 1; i >= 0; i-- {
		stage := p.Stages[i]
		if stage.Condition == nil {
			stage.Condition = condition.Always[V]
		}
		isHead := i == 0

		var entry *nfa.State[V]
		switch stage.Quantifier.Kind {
		case pattern.Single:
			entry = buildSingle(stage, next, stop, isHead)
		case pattern.OneOrMore:
			entry = buildOneOrMore(stage, next, stop, isHead)
		case pattern.TimesRange:
			var err error
			entry, err = buildTimesRange(stage, next, stop, isHead)
			if err != nil {
				return nil, err
			}
		default:
			return nil, &InvalidPatternError{Stage: stage.Name, Reason: "unknown quantifier kind"}
		}
		next = entry
	}

	start := &nfa.State[V]{Name: "$start", Kind: nfa.Start}
	start.Edges = []nfa.Edge[V]{{Target: next, Action: nfa.Proceed}}

	return &nfa.Graph[V]{
		Start:          start,
		Stop:           stop,
		WindowNanos:    int64(p.Window),
		HandleTimeouts: handleTimeouts,
	}, nil
}

// addOuterContinuityEdge attaches the extra edge that governs how many
// non-matching events may be skipped while entry waits to be satisfied.
// It is omitted entirely for the pattern's first stage: there is no
// predecessor to skip events in front of, each incoming event spawns its
// own fresh computation instead (see nfa.Start / engine.Process).
func addOuterContinuityEdge[V any](entry *nfa.State[V], cond condition.Predicate[V], continuity pattern.Continuity, stop *nfa.State[V]) {
	switch continuity {
	case pattern.Strict:
		entry.Edges = append(entry.Edges, nfa.Edge[V]{Target: stop, Condition: condition.Not(cond), Action: nfa.Ignore})
	case pattern.SkipTillNext:
		entry.Edges = append(entry.Edges, nfa.Edge[V]{Target: entry, Condition: condition.Not(cond), Action: nfa.Ignore})
	case pattern.SkipTillAny:
		entry.Edges = append(entry.Edges, nfa.Edge[V]{Target: entry, Action: nfa.Ignore})
	}
}

func buildSingle[V any](stage pattern.Stage[V], next *nfa.State[V], stop *nfa.State[V], isHead bool) *nfa.State[V] {
	entry := &nfa.State[V]{Name: stage.Name, Kind: nfa.Normal}
	entry.Edges = append(entry.Edges, nfa.Edge[V]{Target: next, Condition: stage.Condition, Action: nfa.Take, StageName: stage.Name})
	if !isHead {
		addOuterContinuityEdge(entry, stage.Condition, stage.Continuity, stop)
	}
	if stage.Quantifier.Optional {
		entry.Edges = append(entry.Edges, nfa.Edge[V]{Target: next, Action: nfa.Proceed})
	}
	return entry
}

func buildOneOrMore[V any](stage pattern.Stage[V], next *nfa.State[V], stop *nfa.State[V], isHead bool) *nfa.State[V] {
	loop := &nfa.State[V]{Name: stage.Name, Kind: nfa.Normal}
	loop.Edges = append(loop.Edges, nfa.Edge[V]{Target: loop, Condition: stage.Condition, Action: nfa.Take, StageName: stage.Name})
	loop.Edges = append(loop.Edges, nfa.Edge[V]{Target: next, Action: nfa.Proceed})
	addOuterContinuityEdge(loop, stage.Condition, stage.Quantifier.InnerContinuity, stop)

	entry := &nfa.State[V]{Name: stage.Name + "$head", Kind: nfa.Normal}
	entry.Edges = append(entry.Edges, nfa.Edge[V]{Target: loop, Condition: stage.Condition, Action: nfa.Take, StageName: stage.Name})
	if !isHead {
		addOuterContinuityEdge(entry, stage.Condition, stage.Continuity, stop)
	}
	if stage.Quantifier.Optional {
		entry.Edges = append(entry.Edges, nfa.Edge[V]{Target: next, Action: nfa.Proceed})
	}
	return entry
}

func buildTimesRange[V any](stage pattern.Stage[V], next *nfa.State[V], stop *nfa.State[V], isHead bool) (*nfa.State[V], error) {
	to := stage.Quantifier.To
	from := stage.Quantifier.From
	if to < 1 || from < 1 || from > to {
		return nil, &InvalidPatternError{Stage: stage.Name, Reason: fmt.Sprintf("invalid times range [%d,%d]", from, to)}
	}

	copies := make([]*nfa.State[V], to)
	for j := range copies {
		copies[j] = &nfa.State[V]{Name: stage.Name, Kind: nfa.Normal}
	}
	for j := 0; j < to; j++ {
		target := next
		if j < to-1 {
			target = copies[j+1]
		}
		copies[j].Edges = append(copies[j].Edges, nfa.Edge[V]{Target: target, Condition: stage.Condition, Action: nfa.Take, StageName: stage.Name})

		continuity := stage.Quantifier.InnerContinuity
		skipOuterEdge := false
		if j == 0 {
			continuity = stage.Continuity
			skipOuterEdge = isHead
		}
		if !skipOuterEdge {
			addOuterContinuityEdge(copies[j], stage.Condition, continuity, stop)
		}
	}
	// Arriving at copies[k] (before its own Take edge fires) means k
	// occurrences have already been taken. Once k is within [from,to-1]
	// that is already a valid occurrence count, so copies[from..to-1]
	// also get an early-exit Proceed to next; the to-th occurrence is
	// covered by the mandatory Take edge at copies[to-1].
	for j := from; j <= to-1; j++ {
		copies[j].Edges = append(copies[j].Edges, nfa.Edge[V]{Target: next, Action: nfa.Proceed})
	}

	entry := copies[0]
	if stage.Quantifier.Optional {
		entry.Edges = append(entry.Edges, nfa.Edge[V]{Target: next, Action: nfa.Proceed})
	}
	return entry, nil
}
