package engine

// Observer receives a snapshot of engine load after every successful
// Process call.
// The ambient stack implements it with Prometheus gauges; tests can
// implement it with a plain counter.
type Observer interface {
	Observe(computations, bufferEntries int)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(computations, bufferEntries int)

// Observe calls f.
func (f ObserverFunc) Observe(computations, bufferEntries int) {
	f(computations, bufferEntries)
}
