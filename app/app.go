package app

import (
	"context"
	"io"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc"

	"github.com/honeycombio/firehose/config"
	"github.com/honeycombio/firehose/internal/health"
	"github.com/honeycombio/firehose/logger"
	"github.com/honeycombio/firehose/metrics"
	"github.com/honeycombio/firehose/output"
	"github.com/honeycombio/firehose/pubsub"
	"github.com/honeycombio/firehose/stream"
)

// App runs every configured stream. Each record goes through the stream's
// output filter and is published on a topic named after the stream; unless
// output is disabled, the app also subscribes to those topics and writes
// what arrives to stdout or the output file.
type App struct {
	Config  config.Config   `inject:""`
	Logger  logger.Logger   `inject:""`
	Metrics metrics.Metrics `inject:"metrics"`
	Health  health.Recorder `inject:""`
	PubSub  pubsub.PubSub   `inject:""`
	Clock   clockwork.Clock `inject:""`

	// Transport, when set, replaces the network transport of every stream.
	Transport stream.Transport
	// Stdout is where records go when no output path is configured.
	Stdout io.Writer

	// Version is the build ID, reported in the User-Agent of every stream.
	Version string

	streams []*stream.Stream
	mux     sync.RWMutex
	writer  *output.Writer
	subs    []pubsub.Subscription
	ctx     context.Context
	cancel  context.CancelFunc
	wg      conc.WaitGroup
	done    chan struct{}
}

var appMetrics = []metrics.Metadata{
	{Name: "records_published", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "records that passed the output filter and were published"},
	{Name: "records_dropped", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "duplicate records and records without the selected field"},
	{Name: "records_invalid", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "records the output filter rejected"},
	{Name: "publish_errors", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "records that couldn't be published"},
	{Name: "records_written", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "records written to the output"},
	{Name: "write_errors", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "records that couldn't be written to the output"},
	{Name: "streams_running", Type: metrics.UpDown, Unit: metrics.Dimensionless, Description: "streams that haven't stopped"},
}

// Start creates and starts the streams. It returns once they're connecting;
// Done reports when all of them have stopped.
func (a *App) Start() error {
	a.Logger.Debug().Logf("Starting up App...")
	for _, m := range appMetrics {
		a.Metrics.Register(m)
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	outCfg := a.Config.GetOutputConfig()
	if !outCfg.Disabled {
		stdout := a.Stdout
		if stdout == nil {
			stdout = os.Stdout
		}
		w, err := output.NewWriter(outCfg.Path, outCfg.Compression, stdout)
		if err != nil {
			return err
		}
		w.Clock = a.Clock
		w.Logger = a.Logger
		if err := w.Start(); err != nil {
			return err
		}
		a.writer = w
	}

	for _, sc := range a.Config.GetStreams() {
		s, err := a.newStream(sc, outCfg)
		if err != nil {
			a.Stop()
			return err
		}
		a.mux.Lock()
		a.streams = append(a.streams, s)
		a.mux.Unlock()
	}

	a.done = make(chan struct{})
	var startErr error
	for _, s := range a.streams {
		if err := s.Start(); err != nil {
			startErr = errors.Wrapf(err, "starting stream %s", s.Name())
			break
		}
		a.Metrics.Up("streams_running")
		a.wg.Go(func() {
			defer a.Metrics.Down("streams_running")
			if err := s.Wait(); err != nil {
				a.Logger.Error().WithString("stream", s.Name()).WithField("error", err.Error()).Logf("stream stopped")
			}
		})
	}
	go func() {
		a.wg.Wait()
		close(a.done)
	}()
	if startErr != nil {
		a.Stop()
		return startErr
	}

	a.Logger.Info().WithField("streams", len(a.streams)).Logf("App started")
	return nil
}

func (a *App) newStream(sc config.StreamConfig, outCfg config.OutputConfig) (*stream.Stream, error) {
	filter, err := output.NewFilter(outCfg)
	if err != nil {
		return nil, err
	}
	s, err := stream.New(sc)
	if err != nil {
		return nil, err
	}
	if a.Transport != nil {
		s.Transport = a.Transport
	}
	s.Clock = a.Clock
	s.Logger = a.Logger
	s.Metrics = a.Metrics
	s.Health = a.Health
	if a.Version != "" {
		s.UserAgent = stream.UserAgentFor(a.Version)
	}

	topic := s.Name()
	s.EachItem(func(record []byte) error {
		return a.handleRecord(topic, filter, record)
	})
	s.OnReconnect(func(delay time.Duration, attempt int) {
		a.Logger.Debug().WithString("stream", topic).WithField("delay", delay.String()).WithField("attempt", attempt).Logf("reconnect scheduled")
	})
	s.OnMaxReconnects(func(delay time.Duration, attempt int) {
		a.Logger.Error().WithString("stream", topic).WithField("attempt", attempt).Logf("stream gave up after too many reconnects")
	})
	s.OnNoData(func() {
		a.Logger.Warn().WithString("stream", topic).Logf("stream went quiet")
	})

	if a.writer != nil {
		a.subs = append(a.subs, a.PubSub.Subscribe(a.ctx, topic, a.writeRecord))
	}
	return s, nil
}

// handleRecord filters and publishes one record. Its errors are all
// recoverable; a broken publisher shouldn't tear the connection down.
func (a *App) handleRecord(topic string, filter *output.Filter, record []byte) error {
	out, keep, err := filter.Apply(record)
	if err != nil {
		a.Metrics.Increment("records_invalid")
		return err
	}
	if !keep {
		a.Metrics.Increment("records_dropped")
		return nil
	}
	if err := a.PubSub.Publish(a.ctx, topic, string(out)); err != nil {
		a.Metrics.Increment("publish_errors")
		return stream.Recoverable(errors.Wrapf(err, "publishing to %s", topic))
	}
	a.Metrics.Increment("records_published")
	return nil
}

func (a *App) writeRecord(ctx context.Context, msg string) {
	if err := a.writer.Write([]byte(msg)); err != nil {
		a.Metrics.Increment("write_errors")
		a.Logger.Error().WithField("error", err.Error()).Logf("failed to write record")
		return
	}
	a.Metrics.Increment("records_written")
}

// Done is closed when every stream has stopped, whether closed by Stop or
// because it gave up.
func (a *App) Done() <-chan struct{} {
	return a.done
}

// Streams returns the running streams.
func (a *App) Streams() []*stream.Stream {
	a.mux.RLock()
	defer a.mux.RUnlock()
	return slices.Clone(a.streams)
}

func (a *App) closeAll() {
	for _, s := range a.streams {
		s.Close()
	}
}

// Stop closes every stream and waits for them, then flushes the output.
// Calling it more than once is harmless.
func (a *App) Stop() error {
	a.Logger.Debug().Logf("Shutting down App...")
	a.closeAll()
	if a.done != nil {
		<-a.done
	}
	if a.cancel != nil {
		a.cancel()
	}
	for _, sub := range a.subs {
		sub.Close()
	}
	if a.writer != nil {
		return a.writer.Stop()
	}
	return nil
}
