package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestNewConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
Streams:
  - Name: tweets
    Params:
      track: golang
  - Name: plain
    Host: localhost
    Port: 8080
    SSL: false
    AutoReconnect: false
    InactivityTimeout: 5s
`)
	c, err := NewConfig(&CmdEnv{ConfigLocations: []string{path}})
	require.NoError(t, err)

	assert.NotEmpty(t, c.GetHash())
	assert.Equal(t, "stdout", c.GetLoggerType())
	assert.Equal(t, InfoLevel, c.GetLoggerLevel())
	assert.Equal(t, "local", c.GetPublisherConfig().Type)
	assert.Equal(t, "localhost:6379", c.GetPublisherConfig().Redis.Host)
	assert.Equal(t, "localhost:2112", c.GetPrometheusMetricsConfig().ListenAddr)
	assert.Equal(t, "raw", c.GetOutputConfig().Format)
	assert.Equal(t, 10000, c.GetOutputConfig().DedupeCacheSize)

	streams := c.GetStreams()
	require.Len(t, streams, 2)
	tweets := streams[0]
	assert.Equal(t, "stream.example.com", tweets.Host)
	assert.Equal(t, 443, tweets.Port)
	assert.Equal(t, "/1/statuses/filter.json", tweets.Path)
	assert.Equal(t, "GET", tweets.Method)
	assert.True(t, tweets.TLSEnabled())
	assert.True(t, tweets.AutoReconnectEnabled())
	assert.Equal(t, Duration(90*time.Second), tweets.InactivityTimeout)
	assert.Equal(t, Duration(time.Second), tweets.WatchdogInterval)
	assert.Equal(t, map[string]string{"track": "golang"}, tweets.Params)

	plain := streams[1]
	assert.Equal(t, "localhost:8080", plain.Addr())
	assert.False(t, plain.TLSEnabled())
	assert.False(t, plain.AutoReconnectEnabled())
	assert.Equal(t, Duration(5*time.Second), plain.InactivityTimeout)
}

func TestNewConfigCommandLineWins(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[Logger]
Level = "debug"

[Output]
Path = "from-file.log"

[[Streams]]
Name = "only"
`)
	c, err := NewConfig(&CmdEnv{ConfigLocations: []string{path}, LogLevel: ErrorLevel, OutputPath: "from-flag.log"})
	require.NoError(t, err)
	assert.Equal(t, ErrorLevel, c.GetLoggerLevel())
	assert.Equal(t, "from-flag.log", c.GetOutputConfig().Path)
}

func TestNewConfigReportsEveryFailure(t *testing.T) {
	path := writeConfig(t, "config.json", `{
  "Logger": {"Type": "stdot"},
  "Output": {"Compression": "lz4"},
  "Streams": [
    {"Name": "a", "Method": "PUT"},
    {"Name": "a", "Auth": {"Basic": "nocolon"}}
  ]
}`)
	_, err := NewConfig(&CmdEnv{ConfigLocations: []string{path}})
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Failures, 5)
	assert.Contains(t, err.Error(), `did you mean "stdout"?`)
	assert.Contains(t, err.Error(), "Output.Compression")
	assert.Contains(t, err.Error(), `duplicate Name "a"`)
	assert.Contains(t, err.Error(), "Method")
	assert.Contains(t, err.Error(), "user:password")
}

func TestNewConfigNeedsALocation(t *testing.T) {
	_, err := NewConfig(&CmdEnv{})
	assert.Error(t, err)
}
