package engine

import (
	"github.com/cepflow/cepflow/cep/dewey"
	"github.com/cepflow/cepflow/cep/nfa"
	"github.com/cepflow/cepflow/cep/sharedbuffer"
)

// Computation is one in-flight attempt at completing a pattern: a
// position in the compiled graph, a pointer into the shared buffer for
// everything consumed so far, and the version used to disambiguate its
// lineage from any sibling branch that shares a buffer ancestor.
type Computation[V any] struct {
	state     *nfa.State[V]
	hasPrev   bool
	prevNode  sharedbuffer.EntryID
	version   dewey.Number
	startTime int64
}

// expand advances c by exactly one event, following the standard
// epsilon-closure / move / epsilon-closure construction: c's Proceed
// (epsilon) edges are chased to find every position it could occupy
// without having looked at the event yet; each such position then takes
// its single Take-or-Ignore step against the event; finally the
// resulting positions have their own Proceed edges chased before
// resting for the next round. A position's Take/Ignore edges are never
// evaluated twice against the same event — only the epsilon chains
// around that one step repeat.
//
// Every Computation this function hands back to the caller owns exactly
// one shared-buffer reference on its prevNode (when hasPrev), matching
// the invariant that each such computation is independently DecRef'd
// exactly once — either immediately (Final/Stop) or later, when it is
// itself retired as a future round's parent. c's own reference is left
// alone; it is the caller's to release once expand returns.
func (n *NFA[V]) expand(c *Computation[V], event *V, timestamp int64, counter uint64) ([]*Computation[V], error) {
	before, err := n.epsilonClose(c, event)
	if err != nil {
		return nil, err
	}

	var results []*Computation[V]
	for _, cur := range before {
		// A Final reached by Proceed before this event was already
		// emitted in the round that produced c.
		if cur.state.Kind == nfa.Final && cur != c {
			if cur.hasPrev {
				n.buffer.DecRef(cur.prevNode)
			}
			continue
		}
		if cur.state.Kind == nfa.Final || cur.state.Kind == nfa.Stop {
			results = append(results, cur)
			continue
		}
		moved, err := n.move(cur, event, timestamp, counter)
		if err != nil {
			return nil, err
		}
		// cur is either c itself (ref owned by the caller) or a clone
		// epsilonClose minted and ref'd on our behalf; move only reads
		// cur, so that clone's ref is released the moment it has
		// produced its children.
		if cur != c && cur.hasPrev {
			n.buffer.DecRef(cur.prevNode)
		}
		for _, m := range moved {
			after, err := n.epsilonClose(m, event)
			if err != nil {
				return nil, err
			}
			results = append(results, after...)
		}
	}
	return results, nil
}

// epsilonClose returns cur plus every computation reachable from it by
// following zero or more Proceed edges, without touching the event's
// Take/Ignore edges at all. cur's own reference is untouched; every
// cloned descendant shares cur's prevNode but is given its own
// shared-buffer reference, since each clone becomes an independent
// Computation the caller may retire separately from cur and from its
// siblings.
func (n *NFA[V]) epsilonClose(cur *Computation[V], event *V) ([]*Computation[V], error) {
	var out []*Computation[V]
	seen := map[*nfa.State[V]]bool{}

	var walk func(c *Computation[V]) error
	walk = func(c *Computation[V]) error {
		out = append(out, c)
		if seen[c.state] {
			return nil
		}
		seen[c.state] = true
		for _, e := range c.state.Edges {
			if e.Action != nfa.Proceed {
				continue
			}
			ok := true
			if e.Condition != nil {
				var err error
				ok, err = e.Condition(*event)
				if err != nil {
					return err
				}
			}
			if !ok {
				continue
			}
			child := &Computation[V]{state: e.Target, hasPrev: c.hasPrev, prevNode: c.prevNode, version: c.version, startTime: c.startTime}
			if child.hasPrev {
				n.buffer.IncRef(child.prevNode)
			}
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(cur); err != nil {
		return nil, err
	}
	return out, nil
}

// move evaluates cur's Take and Ignore edges once against event and
// returns the resulting children, not yet epsilon-closed. A
// self-targeting Ignore edge that also fires alongside a Take marks a
// skip-till-any branch point: the Take sibling gets a fresh version via
// AddStage().Increase() so the shared buffer can later separate it from
// the computation that kept waiting. Repeated forks off an unchanged
// "still waiting" lineage deliberately reuse the same sibling label —
// see DESIGN.md for why that is faithful rather than a bug.
func (n *NFA[V]) move(cur *Computation[V], event *V, timestamp int64, counter uint64) ([]*Computation[V], error) {
	var takeEdges, ignoreEdges []nfa.Edge[V]
	for _, e := range cur.state.Edges {
		switch e.Action {
		case nfa.Take:
			takeEdges = append(takeEdges, e)
		case nfa.Ignore:
			ignoreEdges = append(ignoreEdges, e)
		}
	}

	selfIgnoreFired := false
	for _, e := range ignoreEdges {
		if e.Target != cur.state {
			continue
		}
		ok := true
		if e.Condition != nil {
			var err error
			ok, err = e.Condition(*event)
			if err != nil {
				return nil, err
			}
		}
		if ok {
			selfIgnoreFired = true
			break
		}
	}

	var out []*Computation[V]

	for _, e := range takeEdges {
		ok, err := e.Condition(*event)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		version := cur.version.Increase()
		if selfIgnoreFired {
			version = cur.version.AddStage().Increase()
		}
		entryID := n.buffer.Put(e.StageName, *event, counter, timestamp, cur.prevNode, cur.hasPrev, version)
		n.buffer.IncRef(entryID)
		out = append(out, &Computation[V]{state: e.Target, hasPrev: true, prevNode: entryID, version: version, startTime: cur.startTime})
	}

	for _, e := range ignoreEdges {
		ok := true
		if e.Condition != nil {
			var err error
			ok, err = e.Condition(*event)
			if err != nil {
				return nil, err
			}
		}
		if !ok {
			continue
		}
		child := &Computation[V]{state: e.Target, hasPrev: cur.hasPrev, prevNode: cur.prevNode, version: cur.version, startTime: cur.startTime}
		if child.hasPrev {
			n.buffer.IncRef(child.prevNode)
		}
		out = append(out, child)
	}

	return out, nil
}
