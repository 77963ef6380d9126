package metrics

import "sync"

// MultiMetrics is a metrics provider that sends metrics to zero or more other
// metrics providers.
//
// It implements and intercepts the Store method since the children don't need
// to know about it, and also records the values that Get returns. Even if there
// are no metrics providers configured, this allows us to use the metrics
// package to store values that can be retrieved later.
type MultiMetrics struct {
	children []Metrics
	// values keeps a map of all the non-histogram metrics and their current
	// value so that we can retrieve them with Get()
	values map[string]float64
	lock   sync.RWMutex
}

// NewMultiMetrics fans out to children. Even with no children the values
// are kept so Get works.
func NewMultiMetrics(children ...Metrics) *MultiMetrics {
	return &MultiMetrics{
		children: children,
		values:   make(map[string]float64),
	}
}

var _ Metrics = (*MultiMetrics)(nil)

// AddChild must be called before anything is registered.
func (m *MultiMetrics) AddChild(met Metrics) {
	m.children = append(m.children, met)
}

func (m *MultiMetrics) Register(metadata Metadata) {
	for _, ch := range m.children {
		ch.Register(metadata)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.values[metadata.Name]; !ok {
		m.values[metadata.Name] = 0
	}
}

func (m *MultiMetrics) Increment(name string) { // for counters
	for _, ch := range m.children {
		ch.Increment(name)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.values[name]++
}

func (m *MultiMetrics) Gauge(name string, val any) { // for gauges
	for _, ch := range m.children {
		ch.Gauge(name, val)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.values[name] = ConvertNumeric(val)
}

func (m *MultiMetrics) Count(name string, n any) { // for counters
	for _, ch := range m.children {
		ch.Count(name, n)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.values[name] += ConvertNumeric(n)
}

func (m *MultiMetrics) Histogram(name string, obs any) { // for histogram
	for _, ch := range m.children {
		ch.Histogram(name, obs)
	}
}

func (m *MultiMetrics) Up(name string) { // for updown
	for _, ch := range m.children {
		ch.Up(name)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.values[name]++
}

func (m *MultiMetrics) Down(name string) { // for updown
	for _, ch := range m.children {
		ch.Down(name)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.values[name]--
}

func (m *MultiMetrics) Get(name string) (float64, bool) { // for reading back a counter or a gauge
	m.lock.RLock()
	defer m.lock.RUnlock()
	v, ok := m.values[name]
	return v, ok
}

func (m *MultiMetrics) Store(name string, val float64) { // for storing a rarely-changing value not sent as a metric
	m.lock.Lock()
	defer m.lock.Unlock()
	m.values[name] = val
}
