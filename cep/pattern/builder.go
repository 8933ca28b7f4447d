package pattern

import (
	"errors"
	"fmt"
	"time"

	"github.com/cepflow/cepflow/cep/condition"
)

// ErrNoStages is returned by Build when no stage was ever begun.
var ErrNoStages = errors.New("pattern: at least one stage is required")

// ErrDuplicateStageName is returned by Build when two stages share a name.
var ErrDuplicateStageName = errors.New("pattern: duplicate stage name")

// Builder assembles a Pattern one stage at a time. Begin opens the first
// stage; Next/FollowedBy/FollowedByAny each open a new stage joined to
// the previous one by the named continuity. Where/Subtype/quantifier/
// continuity-modifier calls all apply to the most recently opened stage.
type Builder[V any] struct {
	stages []Stage[V]
	window time.Duration
	err    error
}

// Begin starts a new pattern with its first, unconditioned stage named
// name.
func Begin[V any](name string) *Builder[V] {
	b := &Builder[V]{}
	b.stages = append(b.stages, Stage[V]{Name: name})
	return b
}

func (b *Builder[V]) current() *Stage[V] {
	return &b.stages[len(b.stages)-1]
}

func (b *Builder[V]) openStage(name string, continuity Continuity) *Builder[V] {
	if b.err != nil {
		return b
	}
	b.stages = append(b.stages, Stage[V]{Name: name, Continuity: continuity})
	return b
}

// Where ANDs cond onto the current stage's guard.
func (b *Builder[V]) Where(cond condition.Predicate[V]) *Builder[V] {
	if b.err != nil {
		return b
	}
	cur := b.current()
	if cur.Condition == nil {
		cur.Condition = cond
	} else {
		cur.Condition = condition.And(cur.Condition, cond)
	}
	return b
}

// Subtype is sugar for Where(condition.Subtype(assignable)).
func (b *Builder[V]) Subtype(assignable func(V) bool) *Builder[V] {
	return b.Where(condition.Subtype(assignable))
}

// Next opens a stage joined to the previous one with strict continuity.
func (b *Builder[V]) Next(name string) *Builder[V] {
	return b.openStage(name, Strict)
}

// FollowedBy opens a stage joined with skip-till-next continuity.
func (b *Builder[V]) FollowedBy(name string) *Builder[V] {
	return b.openStage(name, SkipTillNext)
}

// FollowedByAny opens a stage joined with skip-till-any continuity.
func (b *Builder[V]) FollowedByAny(name string) *Builder[V] {
	return b.openStage(name, SkipTillAny)
}

// Optional allows the current stage (or its whole repetition group) to
// be skipped entirely.
func (b *Builder[V]) Optional() *Builder[V] {
	if b.err != nil {
		return b
	}
	b.current().Quantifier.Optional = true
	return b
}

// Times requires exactly n occurrences of the current stage.
func (b *Builder[V]) Times(n int) *Builder[V] {
	return b.TimesRange(n, n)
}

// TimesRange requires between from and to (inclusive) occurrences of the
// current stage.
func (b *Builder[V]) TimesRange(from, to int) *Builder[V] {
	if b.err != nil {
		return b
	}
	if from < 1 || to < from {
		b.err = fmt.Errorf("pattern: invalid times range [%d,%d] on stage %q", from, to, b.current().Name)
		return b
	}
	cur := b.current()
	cur.Quantifier.Kind = TimesRange
	cur.Quantifier.From = from
	cur.Quantifier.To = to
	if cur.Quantifier.InnerContinuity == 0 && cur.Continuity != Strict {
		cur.Quantifier.InnerContinuity = SkipTillNext
	}
	return b
}

// OneOrMore requires at least one occurrence of the current stage, with
// no upper bound.
func (b *Builder[V]) OneOrMore() *Builder[V] {
	if b.err != nil {
		return b
	}
	cur := b.current()
	cur.Quantifier.Kind = OneOrMore
	cur.Quantifier.From = 1
	cur.Quantifier.To = 0
	if cur.Quantifier.InnerContinuity == 0 {
		cur.Quantifier.InnerContinuity = SkipTillNext
	}
	return b
}

// Consecutive tightens the inner continuity of a quantified stage to
// Strict: repeated occurrences must be back to back.
func (b *Builder[V]) Consecutive() *Builder[V] {
	if b.err != nil {
		return b
	}
	b.current().Quantifier.InnerContinuity = Strict
	return b
}

// AllowCombinations loosens the inner continuity of a quantified stage
// to SkipTillAny: any subset of qualifying events, in order, may be
// combined into the repetition.
func (b *Builder[V]) AllowCombinations() *Builder[V] {
	if b.err != nil {
		return b
	}
	b.current().Quantifier.InnerContinuity = SkipTillAny
	return b
}

// Within bounds how long, from the match's first event, the whole
// pattern may take to complete.
func (b *Builder[V]) Within(d time.Duration) *Builder[V] {
	if b.err != nil {
		return b
	}
	b.window = d
	return b
}

// Build validates and returns the assembled Pattern, or the first error
// recorded while building it.
func (b *Builder[V]) Build() (*Pattern[V], error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.stages) == 0 {
		return nil, ErrNoStages
	}
	seen := make(map[string]bool, len(b.stages))
	for _, s := range b.stages {
		if seen[s.Name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateStageName, s.Name)
		}
		seen[s.Name] = true
	}
	return &Pattern[V]{Stages: append([]Stage[V](nil), b.stages...), Window: b.window}, nil
}
