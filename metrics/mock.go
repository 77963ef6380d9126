package metrics

import "sync"

// MockMetrics collects metrics that were registered and changed to allow tests to
// verify expected behavior
type MockMetrics struct {
	Registrations     map[string]MetricType
	CounterIncrements map[string]int
	GaugeRecords      map[string]float64
	Histograms        map[string][]float64
	UpDowns           map[string]int
	Constants         map[string]float64

	lock sync.Mutex
}

var _ Metrics = (*MockMetrics)(nil)

// Start initializes all metrics or resets all metrics to zero
func (m *MockMetrics) Start() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.Registrations = make(map[string]MetricType)
	m.CounterIncrements = make(map[string]int)
	m.GaugeRecords = make(map[string]float64)
	m.Histograms = make(map[string][]float64)
	m.UpDowns = make(map[string]int)
	m.Constants = make(map[string]float64)
}

func (m *MockMetrics) Register(metadata Metadata) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.Registrations[metadata.Name] = metadata.Type
}

func (m *MockMetrics) Increment(name string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.CounterIncrements[name] += 1
}

func (m *MockMetrics) Gauge(name string, val any) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.GaugeRecords[name] = ConvertNumeric(val)
}

func (m *MockMetrics) Count(name string, val any) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.CounterIncrements[name] += int(ConvertNumeric(val))
}

func (m *MockMetrics) Histogram(name string, val any) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.Histograms[name] = append(m.Histograms[name], ConvertNumeric(val))
}

func (m *MockMetrics) Up(name string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.UpDowns[name] += 1
}

func (m *MockMetrics) Down(name string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.UpDowns[name] -= 1
}

func (m *MockMetrics) Store(name string, val float64) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.Constants[name] = val
}

func (m *MockMetrics) Get(name string) (float64, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if v, ok := m.CounterIncrements[name]; ok {
		return float64(v), true
	}
	if v, ok := m.GaugeRecords[name]; ok {
		return v, true
	}
	if v, ok := m.UpDowns[name]; ok {
		return float64(v), true
	}
	v, ok := m.Constants[name]
	return v, ok
}
