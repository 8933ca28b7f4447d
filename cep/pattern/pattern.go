// Package pattern provides the fluent builder used to describe a CEP
// pattern as an ordered chain of stages, each with its own guard,
// continuity and quantifier, compiled by cep/compiler into an NFA.
package pattern

import (
	"time"

	"github.com/cepflow/cepflow/cep/condition"
)

// Continuity governs how many non-matching events may be skipped while
// waiting to satisfy a stage.
type Continuity int

const (
	// Strict requires the very next event to satisfy the stage; any
	// other event kills the computation.
	Strict Continuity = iota
	// SkipTillNext lets non-matching events be silently skipped; the
	// first qualifying event is taken and all others for this wait are
	// ignored (no branching).
	SkipTillNext
	// SkipTillAny lets every qualifying event be taken, branching a new
	// computation per match while the original keeps scanning.
	SkipTillAny
)

// QuantifierKind classifies how many times a stage's condition must be
// satisfied to complete it.
type QuantifierKind int

const (
	// Single requires exactly one occurrence (the default).
	Single QuantifierKind = iota
	// TimesRange requires between From and To occurrences inclusive;
	// Times(n) is TimesRange(n, n).
	TimesRange
	// OneOrMore requires at least one occurrence with no upper bound.
	OneOrMore
)

// Quantifier describes repetition for a single stage.
type Quantifier struct {
	Kind QuantifierKind
	From int
	To   int
	// Optional allows the entire (possibly repeated) stage to be
	// skipped altogether.
	Optional bool
	// InnerContinuity governs skipping between repeated occurrences of
	// the same stage; meaningless when Kind is Single.
	InnerContinuity Continuity
}

// Stage is one named, guarded step of a Pattern.
type Stage[V any] struct {
	Name       string
	Condition  condition.Predicate[V]
	Continuity Continuity
	Quantifier Quantifier
}

// Pattern is a fully described, not-yet-compiled sequence of stages plus
// its window policy.
type Pattern[V any] struct {
	Stages []Stage[V]
	Window time.Duration
}
