// Package sharedbuffer implements the reference-counted DAG of consumed
// events that NFA computations point into instead of copying their match
// prefix at every step. Entries are deduplicated by (stage, arrival
// counter) so that many computations converging on the same physical
// event share a single stored copy of it.
package sharedbuffer

import "github.com/cepflow/cepflow/cep/dewey"

// EntryID identifies one stored event within a Buffer.
type EntryID uint64

type dedupKey struct {
	stage   string
	counter uint64
}

type predecessorEdge struct {
	parent  EntryID
	version dewey.Number
}

type entry[V any] struct {
	id           EntryID
	stage        string
	counter      uint64
	event        V
	timestamp    int64
	predecessors []predecessorEdge
	refCount     int
}

// Buffer is the shared event DAG for a single running NFA. It is not
// safe for concurrent use; callers serialize access the same way the
// engine serializes event processing.
type Buffer[V any] struct {
	entries map[EntryID]*entry[V]
	dedup   map[dedupKey]EntryID
	nextID  EntryID
}

// New returns an empty buffer.
func New[V any]() *Buffer[V] {
	return &Buffer[V]{
		entries: make(map[EntryID]*entry[V]),
		dedup:   make(map[dedupKey]EntryID),
	}
}

// Put records that event (tagged with stage and the global arrival
// counter) was reached from parent via version. If an entry already
// exists for (stage, counter) — because another computation reached the
// very same physical event under the same stage this round — the new
// lineage is recorded as an additional predecessor edge on the existing
// entry rather than creating a duplicate. When hasParent is false this
// is a root entry (the pattern's first stage) and no predecessor edge is
// recorded.
func (b *Buffer[V]) Put(stage string, event V, counter uint64, timestamp int64, parent EntryID, hasParent bool, version dewey.Number) EntryID {
	key := dedupKey{stage: stage, counter: counter}
	if id, ok := b.dedup[key]; ok {
		if hasParent {
			b.entries[id].predecessors = append(b.entries[id].predecessors, predecessorEdge{parent: parent, version: version})
			b.IncRef(parent)
		}
		return id
	}
	b.nextID++
	id := b.nextID
	e := &entry[V]{id: id, stage: stage, counter: counter, event: event, timestamp: timestamp}
	if hasParent {
		e.predecessors = append(e.predecessors, predecessorEdge{parent: parent, version: version})
		b.IncRef(parent)
	}
	b.entries[id] = e
	b.dedup[key] = id
	return id
}

// IncRef marks id as directly held by one more computation (or child
// edge).
func (b *Buffer[V]) IncRef(id EntryID) {
	if e, ok := b.entries[id]; ok {
		e.refCount++
	}
}

// DecRef releases one hold on id. Once its ref count drops to zero the
// entry is removed and its own predecessors are released in turn.
func (b *Buffer[V]) DecRef(id EntryID) {
	e, ok := b.entries[id]
	if !ok {
		return
	}
	e.refCount--
	if e.refCount > 0 {
		return
	}
	delete(b.entries, id)
	delete(b.dedup, dedupKey{stage: e.stage, counter: e.counter})
	for _, pred := range e.predecessors {
		b.DecRef(pred.parent)
	}
}

// Len reports the number of live entries, exposed for the metrics
// observer.
func (b *Buffer[V]) Len() int {
	return len(b.entries)
}

// Path is one fully-resolved predecessor chain: the ordered, per-stage
// events that make up a candidate match.
type Path[V any] struct {
	Stage string
	Event V
}

// ExtractPaths walks backward from id, following only predecessor edges
// whose recorded version is compatible with version, and returns every
// surviving root-to-id path in oldest-first order. Multiple paths are
// returned when sibling branches (skip-till-any forks) converge on a
// shared ancestor.
func (b *Buffer[V]) ExtractPaths(id EntryID, version dewey.Number) [][]Path[V] {
	e, ok := b.entries[id]
	if !ok {
		return nil
	}
	var prefixes [][]Path[V]
	if len(e.predecessors) == 0 {
		prefixes = [][]Path[V]{{}}
	} else {
		for _, pred := range e.predecessors {
			if !version.IsCompatibleWith(pred.version) {
				continue
			}
			sub := b.ExtractPaths(pred.parent, pred.version)
			prefixes = append(prefixes, sub...)
		}
	}
	out := make([][]Path[V], 0, len(prefixes))
	for _, prefix := range prefixes {
		path := make([]Path[V], len(prefix)+1)
		copy(path, prefix)
		path[len(prefix)] = Path[V]{Stage: e.stage, Event: e.event}
		out = append(out, path)
	}
	return out
}

// Prune force-removes entries older than minTimestamp that are no
// longer referenced by any live computation. Entries still referenced
// are left alone: the engine is responsible for expiring the
// computations that hold them before their window elapses, so a
// well-behaved caller never needs Prune to reclaim a live entry.
func (b *Buffer[V]) Prune(minTimestamp int64) {
	for id, e := range b.entries {
		if e.timestamp < minTimestamp && e.refCount == 0 {
			delete(b.entries, id)
		}
	}
}

// Snapshot is an opaque copy of the buffer's state, taken before a round
// of event processing so a condition-evaluation error partway through
// can be rolled back cleanly instead of leaving partial edges behind.
type Snapshot[V any] struct {
	entries map[EntryID]*entry[V]
	dedup   map[dedupKey]EntryID
	nextID  EntryID
}

// Snapshot captures the current buffer state for later Restore.
func (b *Buffer[V]) Snapshot() Snapshot[V] {
	entries := make(map[EntryID]*entry[V], len(b.entries))
	for id, e := range b.entries {
		clone := *e
		clone.predecessors = append([]predecessorEdge(nil), e.predecessors...)
		entries[id] = &clone
	}
	dedup := make(map[dedupKey]EntryID, len(b.dedup))
	for k, v := range b.dedup {
		dedup[k] = v
	}
	return Snapshot[V]{entries: entries, dedup: dedup, nextID: b.nextID}
}

// Restore reverts the buffer to a previously captured Snapshot.
func (b *Buffer[V]) Restore(s Snapshot[V]) {
	b.entries = s.entries
	b.dedup = s.dedup
	b.nextID = s.nextID
}
