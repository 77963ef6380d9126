package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/honeycombio/firehose/config"
	"github.com/honeycombio/firehose/logger"
)

// PromMetrics keeps its own registry so that several instances (one per test,
// for example) never collide on the global one. Serving it is left to the
// admin router, which mounts Handler at /metrics.
type PromMetrics struct {
	Config config.Config `inject:""`
	Logger logger.Logger `inject:""`
	// metrics keeps a record of all the registered metrics so we can increment
	// them by name
	metrics  map[string]any
	registry *prometheus.Registry
	lock     sync.RWMutex

	prefix string
}

var _ Metrics = (*PromMetrics)(nil)

func (p *PromMetrics) Start() error {
	if p.Logger == nil {
		p.Logger = &logger.NullLogger{}
	}
	p.Logger.Debug().Logf("Starting PromMetrics")
	defer func() { p.Logger.Debug().Logf("Finished starting PromMetrics") }()

	p.lock.Lock()
	defer p.lock.Unlock()
	p.prefix = "firehose"
	p.metrics = make(map[string]any)
	p.registry = prometheus.NewRegistry()
	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Register creates the collector for a metric. Registering the same name
// twice is a no-op.
func (p *PromMetrics) Register(metadata Metadata) {
	p.lock.Lock()
	defer p.lock.Unlock()

	// don't attempt to add the metric again as this will cause a panic
	if _, exists := p.metrics[metadata.Name]; exists {
		return
	}

	help := metadata.Description
	if help == "" {
		help = metadata.Name
	}

	var newmet prometheus.Collector
	switch metadata.Type {
	case Counter:
		newmet = prometheus.NewCounter(prometheus.CounterOpts{
			Name:      metadata.Name,
			Namespace: p.prefix,
			Help:      help,
		})
	case Gauge, UpDown:
		newmet = prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      metadata.Name,
			Namespace: p.prefix,
			Help:      help,
		})
	case Histogram:
		newmet = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:      metadata.Name,
			Namespace: p.prefix,
			Help:      help,
			// 16 buckets, first upper bound of 1, each following upper bound is 4x the previous
			Buckets: prometheus.ExponentialBuckets(1, 4, 16),
		})
	default:
		return
	}

	if err := p.registry.Register(newmet); err != nil {
		p.Logger.Error().WithString("name", metadata.Name).Logf("failed to register metric: %v", err)
		return
	}
	p.metrics[metadata.Name] = newmet
}

func (p *PromMetrics) Increment(name string) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if counter, ok := p.metrics[name].(prometheus.Counter); ok {
		counter.Inc()
	}
}

func (p *PromMetrics) Count(name string, n any) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if counter, ok := p.metrics[name].(prometheus.Counter); ok {
		counter.Add(ConvertNumeric(n))
	}
}

func (p *PromMetrics) Gauge(name string, val any) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if gauge, ok := p.metrics[name].(prometheus.Gauge); ok {
		gauge.Set(ConvertNumeric(val))
	}
}

func (p *PromMetrics) Histogram(name string, obs any) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if hist, ok := p.metrics[name].(prometheus.Histogram); ok {
		hist.Observe(ConvertNumeric(obs))
	}
}

func (p *PromMetrics) Up(name string) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if gauge, ok := p.metrics[name].(prometheus.Gauge); ok {
		gauge.Inc()
	}
}

func (p *PromMetrics) Down(name string) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if gauge, ok := p.metrics[name].(prometheus.Gauge); ok {
		gauge.Dec()
	}
}

// Get and Store are served by MultiMetrics.
func (p *PromMetrics) Get(name string) (float64, bool) { return 0, false }
func (p *PromMetrics) Store(name string, val float64)  {}
