package health

import "sync"

type MockHealthReporter struct {
	isAlive bool
	isReady bool
	status  map[string]bool
	mutex   sync.Mutex
}

var _ Reporter = (*MockHealthReporter)(nil)

func (m *MockHealthReporter) SetAlive(isAlive bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.isAlive = isAlive
}

func (m *MockHealthReporter) IsAlive() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.isAlive
}

func (m *MockHealthReporter) SetReady(isReady bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.isReady = isReady
}

func (m *MockHealthReporter) IsReady() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.isReady
}

func (m *MockHealthReporter) Status() map[string]bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.status
}
