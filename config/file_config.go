package config

import (
	"sync"

	"github.com/pkg/errors"
)

type fileConfig struct {
	mux  sync.RWMutex
	conf *configContents
	hash string
	opts *CmdEnv
}

var _ Config = (*fileConfig)(nil)

// NewConfig loads, defaults and validates the config named by opts. Nothing
// is started; a config that fails validation is returned as an error
// listing every problem found.
func NewConfig(opts *CmdEnv) (Config, error) {
	if len(opts.ConfigLocations) == 0 {
		return nil, errors.New("no config location given")
	}
	var contents configContents
	hash, err := readConfigInto(&contents, opts.ConfigLocations, opts)
	if err != nil {
		return nil, err
	}
	if err := contents.validate(); err != nil {
		return nil, err
	}
	return &fileConfig{
		conf: &contents,
		hash: hash,
		opts: opts,
	}, nil
}

func (f *fileConfig) GetHash() string {
	f.mux.RLock()
	defer f.mux.RUnlock()
	return f.hash
}

func (f *fileConfig) GetLoggerType() string {
	f.mux.RLock()
	defer f.mux.RUnlock()
	return f.conf.Logger.Type
}

func (f *fileConfig) GetLoggerLevel() Level {
	f.mux.RLock()
	defer f.mux.RUnlock()
	return f.conf.Logger.Level
}

func (f *fileConfig) GetPrometheusMetricsConfig() PrometheusMetricsConfig {
	f.mux.RLock()
	defer f.mux.RUnlock()
	return f.conf.PrometheusMetrics
}

func (f *fileConfig) GetPublisherConfig() PublisherConfig {
	f.mux.RLock()
	defer f.mux.RUnlock()
	return f.conf.Publisher
}

func (f *fileConfig) GetOutputConfig() OutputConfig {
	f.mux.RLock()
	defer f.mux.RUnlock()
	return f.conf.Output
}

func (f *fileConfig) GetStreams() []StreamConfig {
	f.mux.RLock()
	defer f.mux.RUnlock()
	streams := make([]StreamConfig, len(f.conf.Streams))
	copy(streams, f.conf.Streams)
	return streams
}
