package app

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/creasty/defaults"
	"github.com/facebookgo/inject"
	"github.com/facebookgo/startstop"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/honeycombio/firehose/config"
	"github.com/honeycombio/firehose/internal/health"
	"github.com/honeycombio/firehose/logger"
	"github.com/honeycombio/firehose/metrics"
	"github.com/honeycombio/firehose/pubsub"
	"github.com/honeycombio/firehose/stream"
)

type syncBuffer struct {
	mux sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mux.Lock()
	defer b.mux.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mux.Lock()
	defer b.mux.Unlock()
	return b.buf.String()
}

func newStartedApp(t *testing.T, out config.OutputConfig, streams ...config.StreamConfig) (*App, *stream.MockTransport, *metrics.MockMetrics, *syncBuffer) {
	t.Helper()
	require.NoError(t, defaults.Set(&out))
	c := &config.MockConfig{
		GetLoggerTypeVal:   "none",
		GetOutputConfigVal: out,
		GetStreamsVal:      streams,
	}

	transport := stream.NewMockTransport()
	stdout := &syncBuffer{}
	a := App{
		Transport: transport,
		Stdout:    stdout,
		Version:   "test",
	}

	m := &metrics.MockMetrics{}
	m.Start()

	var g inject.Graph
	err := g.Provide(
		&inject.Object{Value: c},
		&inject.Object{Value: &logger.NullLogger{}},
		&inject.Object{Value: m, Name: "metrics"},
		&inject.Object{Value: clockwork.NewFakeClock()},
		&inject.Object{Value: &health.Health{}},
		&inject.Object{Value: &pubsub.LocalPubSub{}},
		&inject.Object{Value: &a},
	)
	require.NoError(t, err)
	require.NoError(t, g.Populate())
	require.NoError(t, startstop.Start(g.Objects(), nil))
	t.Cleanup(func() {
		startstop.Stop(g.Objects(), nil)
	})
	return &a, transport, m, stdout
}

func counter(m *metrics.MockMetrics, name string) float64 {
	v, _ := m.Get(name)
	return v
}

const okHeaders = "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\n\r\n"

func TestAppPublishesAndWritesRecords(t *testing.T) {
	a, transport, m, stdout := newStartedApp(t,
		config.OutputConfig{Validate: true, DedupeField: "id"},
		config.StreamConfig{Name: "tweets"},
	)

	conn := transport.WaitForConn(2 * time.Second)
	require.NotNil(t, conn)
	conn.SendString(okHeaders)
	conn.SendString(`{"id":1,"text":"a"}` + "\r" + `{"id":1,"text":"dup"}` + "\r" + `{"id":` + "\r" + `{"id":2,"text":"b"}` + "\r")

	require.Eventually(t, func() bool {
		return counter(m, "records_published") == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(1), counter(m, "records_dropped"))
	assert.Equal(t, float64(1), counter(m, "records_invalid"))
	assert.Equal(t, float64(1), counter(m, "stream_tweets_item_errors"))
	assert.Equal(t, float64(2), counter(m, "records_written"))

	require.NoError(t, a.Stop())
	assert.Equal(t, `{"id":1,"text":"a"}`+"\n"+`{"id":2,"text":"b"}`+"\n", stdout.String())
	assert.Contains(t, conn.Written(), "User-Agent: firehose/test\r\n")
	assert.Equal(t, "dev", stream.Version, "the app's version stays with its own streams")

	select {
	case <-a.Done():
	default:
		t.Fatal("app should be done once stopped")
	}
}

func TestAppOutputDisabled(t *testing.T) {
	a, transport, m, stdout := newStartedApp(t,
		config.OutputConfig{Disabled: true, Select: "text"},
		config.StreamConfig{Name: "one"},
		config.StreamConfig{Name: "two"},
	)

	var convs []*stream.MockConn
	for range 2 {
		c := transport.WaitForConn(2 * time.Second)
		require.NotNil(t, c)
		convs = append(convs, c)
	}
	for _, c := range convs {
		c.SendString(okHeaders + `{"text":"hi"}` + "\r" + `{"other":1}` + "\r")
	}

	require.Eventually(t, func() bool {
		return counter(m, "records_published") == 2 && counter(m, "records_dropped") == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, counter(m, "records_written"))

	require.NoError(t, a.Stop())
	assert.Empty(t, stdout.String())
	require.Len(t, a.Streams(), 2)
	for _, s := range a.Streams() {
		assert.Equal(t, stream.StateClosed, s.State())
	}
}

func TestAppDoneWhenStreamsGiveUp(t *testing.T) {
	a, transport, _, _ := newStartedApp(t,
		config.OutputConfig{Disabled: true},
		config.StreamConfig{Name: "once", AutoReconnect: config.Bool(false)},
	)

	conn := transport.WaitForConn(2 * time.Second)
	require.NotNil(t, conn)
	conn.SendString(okHeaders)
	conn.Hangup()

	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("app never noticed the stream stopped")
	}
	assert.Equal(t, stream.StateStopped, a.Streams()[0].State())
}

func TestAppRejectsBadStream(t *testing.T) {
	c := &config.MockConfig{
		GetOutputConfigVal: config.OutputConfig{Disabled: true, Format: "raw"},
		GetStreamsVal:      []config.StreamConfig{{Name: "bad", Auth: config.AuthConfig{Type: "kerberos"}}},
	}
	m := &metrics.MockMetrics{}
	m.Start()
	a := &App{
		Config:  c,
		Logger:  &logger.NullLogger{},
		Metrics: m,
		PubSub:  &pubsub.LocalPubSub{},
		Clock:   clockwork.NewFakeClock(),
	}
	err := a.Start()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "kerberos"))
	assert.NoError(t, a.Stop())
}
