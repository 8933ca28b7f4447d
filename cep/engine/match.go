package engine

import "github.com/cepflow/cepflow/cep/sharedbuffer"

// Match maps each stage name to the ordered list of events taken at
// that stage.
type Match[V any] map[string][]V

// Timeout is a partial match whose pattern window elapsed before it
// could complete.
type Timeout[V any] struct {
	Match     Match[V]
	StartTime int64
	ExpiredAt int64
}

func buildMatches[V any](paths [][]sharedbuffer.Path[V]) []Match[V] {
	matches := make([]Match[V], 0, len(paths))
	for _, path := range paths {
		m := make(Match[V])
		for _, step := range path {
			m[step.Stage] = append(m[step.Stage], step.Event)
		}
		matches = append(matches, m)
	}
	return matches
}
