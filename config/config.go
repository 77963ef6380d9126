package config

// Config defines the interface the rest of the code uses to get items from the
// config. Streams read their own StreamConfig once at creation.
type Config interface {
	// GetHash returns the MD5 hash of the loaded config files.
	GetHash() string

	// GetLoggerType returns the type of the logger to use. Valid types are in
	// the logger package.
	GetLoggerType() string

	// GetLoggerLevel returns the level of the logger to use.
	GetLoggerLevel() Level

	GetPrometheusMetricsConfig() PrometheusMetricsConfig

	GetPublisherConfig() PublisherConfig

	GetOutputConfig() OutputConfig

	// GetStreams returns the configured streams with defaults applied.
	GetStreams() []StreamConfig
}

type configContents struct {
	Logger            LoggerConfig            `yaml:"Logger"`
	PrometheusMetrics PrometheusMetricsConfig `yaml:"PrometheusMetrics"`
	Publisher         PublisherConfig         `yaml:"Publisher"`
	Output            OutputConfig            `yaml:"Output"`
	Streams           []StreamConfig          `yaml:"Streams"`
}

type LoggerConfig struct {
	Type  string `yaml:"Type" default:"stdout"`
	Level Level  `yaml:"Level" default:"info" cmdenv:"LogLevel"`
}

type PrometheusMetricsConfig struct {
	Enabled bool `yaml:"Enabled"`
	// ListenAddr also serves the /alive and /ready health endpoints.
	ListenAddr string `yaml:"ListenAddr" default:"localhost:2112" cmdenv:"MetricsListenAddr"`
}

type PublisherConfig struct {
	Type  string      `yaml:"Type" default:"local"`
	Redis RedisConfig `yaml:"Redis"`
}

type RedisConfig struct {
	Host     string `yaml:"Host" default:"localhost:6379" cmdenv:"RedisHost"`
	Username string `yaml:"Username" cmdenv:"RedisUsername"`
	Password string `yaml:"Password" cmdenv:"RedisPassword"`
	Database int    `yaml:"Database"`
	UseTLS   bool   `yaml:"UseTLS"`
	// Prefix namespaces the channels records are published on, as
	// "<prefix>:<stream name>".
	Prefix string `yaml:"Prefix"`
}

type OutputConfig struct {
	// Disabled turns off the local writer; records are still published.
	Disabled bool `yaml:"Disabled"`
	// Path is a file to append records to; empty means stdout.
	Path        string `yaml:"Path" cmdenv:"OutputPath"`
	Compression string `yaml:"Compression" default:"none"`
	Format      string `yaml:"Format" default:"raw"`
	// Select is a gjson path; when set only the selected value is written.
	Select string `yaml:"Select"`
	// Validate drops records that aren't valid JSON.
	Validate bool `yaml:"Validate"`
	// DedupeField is a gjson path whose value identifies a record; repeats
	// seen within the last DedupeCacheSize records are dropped.
	DedupeField     string `yaml:"DedupeField"`
	DedupeCacheSize int    `yaml:"DedupeCacheSize" default:"10000"`
}
