package cepflow

import (
	conditionpkg "github.com/cepflow/cepflow/cep/condition"
	compilerpkg "github.com/cepflow/cepflow/cep/compiler"
	enginepkg "github.com/cepflow/cepflow/cep/engine"
	metricspkg "github.com/cepflow/cepflow/cep/metrics"
	patternpkg "github.com/cepflow/cepflow/cep/pattern"
	runtimepkg "github.com/cepflow/cepflow/internal/runtime"

	"github.com/prometheus/client_golang/prometheus"
)

type (
	// Pattern is a fully described, not-yet-compiled sequence of typed
	// event stages plus a window policy. Build one with BeginPattern.
	Pattern[V any] = patternpkg.Pattern[V]
	// PatternBuilder assembles a Pattern one stage at a time.
	PatternBuilder[V any] = patternpkg.Builder[V]
	// Condition guards whether an event satisfies a pattern stage.
	Condition[V any] = conditionpkg.Predicate[V]

	// NFA runs one compiled pattern against a timestamped event stream.
	NFA[V any] = enginepkg.NFA[V]
	// Match maps each pattern stage name to the events taken for it.
	Match[V any] = enginepkg.Match[V]
	// Timeout is a partial match whose window elapsed before completing.
	Timeout[V any] = enginepkg.Timeout[V]
	// EngineOption configures an NFA at construction time.
	EngineOption[V any] = enginepkg.Option[V]
	// EngineObserver is notified of engine load after every successful
	// Process call.
	EngineObserver = enginepkg.Observer

	// PatternHandlerRegistration wires a Pattern to the router; the
	// pattern is compiled at registration.
	PatternHandlerRegistration[V any] = runtimepkg.PatternHandlerRegistration[V]

	// PatternMetrics is a Prometheus-backed EngineObserver.
	PatternMetrics = metricspkg.PatternMetrics
)

// BeginPattern starts a new pattern with its first, unconditioned stage
// named name.
func BeginPattern[V any](name string) *PatternBuilder[V] {
	return patternpkg.Begin[V](name)
}

// CompilePattern turns p into a runnable automaton. handleTimeouts
// controls whether the resulting NFA reports window-expired partial
// matches.
func CompilePattern[V any](p *Pattern[V], handleTimeouts bool) (*NFA[V], error) {
	graph, err := compilerpkg.Compile(p, handleTimeouts)
	if err != nil {
		return nil, err
	}
	return enginepkg.New(graph), nil
}

// NewNFA compiles p the same way CompilePattern does and builds the NFA
// runtime with opts applied.
func NewNFA[V any](p *Pattern[V], handleTimeouts bool, opts ...EngineOption[V]) (*NFA[V], error) {
	graph, err := compilerpkg.Compile(p, handleTimeouts)
	if err != nil {
		return nil, err
	}
	return enginepkg.New(graph, opts...), nil
}

// WithMaxComputations caps the number of live computations an NFA
// tolerates before Process returns an overflow error and rolls back.
func WithMaxComputations[V any](max int) EngineOption[V] {
	return enginepkg.WithMaxComputations[V](max)
}

// WithObserver attaches a load observer invoked after every successful
// Process call.
func WithObserver[V any](obs EngineObserver) EngineOption[V] {
	return enginepkg.WithObserver[V](obs)
}

// NewPatternMetrics creates a Prometheus-backed EngineObserver for the
// named pattern. registerer may be nil to use the default registerer.
func NewPatternMetrics(patternName string, registerer prometheus.Registerer) *PatternMetrics {
	return metricspkg.NewPatternMetrics(patternName, registerer)
}

// RegisterPatternHandler compiles cfg.Pattern and registers a handler
// that runs every consumed message through the resulting automaton,
// publishing completed matches (and, if TimeoutQueue is set, timed-out
// partial matches) back out.
func RegisterPatternHandler[V any](svc *Service, cfg PatternHandlerRegistration[V]) error {
	return runtimepkg.RegisterPatternHandler(svc, cfg)
}
