package metrics

// MetricsPrefixer wraps a Metrics object and is a Metrics object itself, but
// adds a prefix to every name. Each stream gets one so a single Metrics
// object collects and reports everything, and can be queried for it.
type MetricsPrefixer struct {
	Metrics Metrics `inject:"metrics"`
	prefix  string
}

var _ Metrics = (*MetricsPrefixer)(nil)

// NewMetricsPrefixer returns a prefixer writing to m. The prefix is
// sanitized so it's always a valid metric name fragment.
func NewMetricsPrefixer(m Metrics, prefix string) *MetricsPrefixer {
	prefixer := &MetricsPrefixer{Metrics: m}

	if prefix != "" {
		prefixer.prefix = SanitizeName(prefix) + "_"
	}
	return prefixer
}

func (p *MetricsPrefixer) Register(metadata Metadata) {
	metadata.Name = p.prefix + metadata.Name
	p.Metrics.Register(metadata)
}

func (p *MetricsPrefixer) Increment(name string) {
	p.Metrics.Increment(p.prefix + name)
}

func (p *MetricsPrefixer) Gauge(name string, val any) {
	p.Metrics.Gauge(p.prefix+name, val)
}

func (p *MetricsPrefixer) Count(name string, val any) {
	p.Metrics.Count(p.prefix+name, val)
}

func (p *MetricsPrefixer) Histogram(name string, obs any) {
	p.Metrics.Histogram(p.prefix+name, obs)
}

func (p *MetricsPrefixer) Up(name string) {
	p.Metrics.Up(p.prefix + name)
}

func (p *MetricsPrefixer) Down(name string) {
	p.Metrics.Down(p.prefix + name)
}

func (p *MetricsPrefixer) Get(name string) (float64, bool) {
	return p.Metrics.Get(p.prefix + name)
}

func (p *MetricsPrefixer) Store(name string, val float64) {
	p.Metrics.Store(p.prefix+name, val)
}
