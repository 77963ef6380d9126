package config

import "sync"

// MockConfig will respond with whatever config it's set to do during
// initialization
type MockConfig struct {
	GetHashVal                    string
	GetLoggerTypeVal              string
	GetLoggerLevelVal             Level
	GetPrometheusMetricsConfigVal PrometheusMetricsConfig
	GetPublisherConfigVal         PublisherConfig
	GetOutputConfigVal            OutputConfig
	GetStreamsVal                 []StreamConfig

	Mux sync.RWMutex
}

var _ Config = (*MockConfig)(nil)

func (m *MockConfig) GetHash() string {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.GetHashVal
}

func (m *MockConfig) GetLoggerType() string {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.GetLoggerTypeVal
}

func (m *MockConfig) GetLoggerLevel() Level {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.GetLoggerLevelVal
}

func (m *MockConfig) GetPrometheusMetricsConfig() PrometheusMetricsConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.GetPrometheusMetricsConfigVal
}

func (m *MockConfig) GetPublisherConfig() PublisherConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.GetPublisherConfigVal
}

func (m *MockConfig) GetOutputConfig() OutputConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.GetOutputConfigVal
}

func (m *MockConfig) GetStreams() []StreamConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.GetStreamsVal
}
