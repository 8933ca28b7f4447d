// Package condition defines the stage-guard predicates evaluated by the
// NFA runtime against candidate events.
package condition

// Predicate reports whether an event satisfies a stage's guard. A non-nil
// error aborts the in-flight processing round (see engine.ConditionError).
type Predicate[V any] func(V) (bool, error)

// And combines predicates with short-circuiting conjunction.
func And[V any](preds ...Predicate[V]) Predicate[V] {
	return func(v V) (bool, error) {
		for _, p := range preds {
			ok, err := p(v)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}
}

// Or combines predicates with short-circuiting disjunction.
func Or[V any](preds ...Predicate[V]) Predicate[V] {
	return func(v V) (bool, error) {
		for _, p := range preds {
			ok, err := p(v)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
}

// Not negates a predicate, propagating evaluation errors unchanged.
func Not[V any](p Predicate[V]) Predicate[V] {
	return func(v V) (bool, error) {
		ok, err := p(v)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
}

// Subtype builds a predicate from a type-narrowing check, mirroring the
// subtype-constrained stages of the original pattern builder.
func Subtype[V any](assignable func(V) bool) Predicate[V] {
	return func(v V) (bool, error) {
		return assignable(v), nil
	}
}

// Always is the unconditional guard the compiler gives a stage that has no
// Where condition. Skip-till-any self-loops and plain epsilon transitions
// carry a nil condition instead.
func Always[V any](V) (bool, error) {
	return true, nil
}
