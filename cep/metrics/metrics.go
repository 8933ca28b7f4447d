// Package metrics provides a Prometheus-backed engine.Observer so a
// running pattern handler's load is visible the same way every other
// cepflow component reports load: a small set of labeled collectors
// under the "cepflow" namespace.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PatternMetrics observes a single pattern handler's live computation
// count and shared buffer size after every processed event.
type PatternMetrics struct {
	mu sync.Mutex

	pattern string

	computationsCurrent *prometheus.GaugeVec
	bufferEntriesTotal  *prometheus.GaugeVec
	eventsProcessed     *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

func newPatternGaugeVec(name, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cepflow",
			Subsystem: "pattern",
			Name:      name,
			Help:      help,
		},
		[]string{"pattern"},
	)
}

func newPatternCounterVec(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cepflow",
			Subsystem: "pattern",
			Name:      name,
			Help:      help,
		},
		[]string{"pattern"},
	)
}

// NewPatternMetrics creates a collector set for the named pattern.
// registerer may be nil, in which case prometheus.DefaultRegisterer is
// used.
func NewPatternMetrics(patternName string, registerer prometheus.Registerer) *PatternMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &PatternMetrics{
		pattern:             patternName,
		registerer:          registerer,
		computationsCurrent: newPatternGaugeVec("computations_current", "Current number of in-flight computations for a pattern handler"),
		bufferEntriesTotal:  newPatternGaugeVec("buffer_entries_current", "Current number of entries retained in a pattern handler's shared buffer"),
		eventsProcessed:     newPatternCounterVec("events_processed_total", "Total number of events processed by a pattern handler"),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *PatternMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.computationsCurrent,
		m.bufferEntriesTotal,
		m.eventsProcessed,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// Observe implements engine.Observer.
func (m *PatternMetrics) Observe(computations, bufferEntries int) {
	m.eventsProcessed.WithLabelValues(m.pattern).Inc()
	m.computationsCurrent.WithLabelValues(m.pattern).Set(float64(computations))
	m.bufferEntriesTotal.WithLabelValues(m.pattern).Set(float64(bufferEntries))
}
