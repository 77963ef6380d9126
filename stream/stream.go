package stream

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"github.com/honeycombio/firehose/config"
	"github.com/honeycombio/firehose/internal/health"
	"github.com/honeycombio/firehose/logger"
	"github.com/honeycombio/firehose/metrics"
)

// ItemHandler receives one record at a time, in order. A nil return or an
// ordinary error moves on to the next record; an error wrapped with Fatal
// stops the stream.
type ItemHandler func(record []byte) error

// BackoffHandler is told the delay and attempt number of a reconnect.
type BackoffHandler func(delay time.Duration, attempt int)

var streamMetrics = []metrics.Metadata{
	{Name: "records_received", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "records delivered to the item handler"},
	{Name: "bytes_received", Type: metrics.Counter, Unit: metrics.Bytes, Description: "bytes read from the connection, including headers and framing"},
	{Name: "item_errors", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "recoverable errors returned by the item handler"},
	{Name: "connect_attempts", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "connection attempts started"},
	{Name: "transport_failures", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "connections lost, refused or stalled"},
	{Name: "application_failures", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "responses with a non-2xx status"},
	{Name: "reconnects", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "reconnects scheduled"},
	{Name: "stalls", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "times the watchdog found the connection silent"},
	{Name: "max_reconnects", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "times the linear backoff ran out"},
	{Name: "streaming", Type: metrics.Gauge, Unit: metrics.Dimensionless, Description: "whether the stream is currently streaming (1) or not (0)"},
	{Name: "backoff_delay", Type: metrics.Gauge, Unit: metrics.Milliseconds, Description: "delay before the pending reconnect"},
}

// Stream is one long-lived streaming HTTP connection. Build it with New,
// register callbacks, then Start it. Everything about the connection is owned
// by a single goroutine; callbacks run on that goroutine, one at a time.
type Stream struct {
	// These may be replaced between New and Start.
	Transport Transport
	Clock     clockwork.Clock
	Logger    logger.Logger
	Metrics   metrics.Metrics
	Health    health.Recorder
	// UserAgent replaces the default User-Agent; the config's UserAgent
	// still wins over both.
	UserAgent string

	config   config.StreamConfig
	endpoint Endpoint
	id       string

	mux             sync.RWMutex
	eachItem        ItemHandler
	onMaxReconnects BackoffHandler
	onReconnect     BackoffHandler
	onNoData        func()
	state           State
	code            int
	header          http.Header
	err             error
	reconnects      int
	started         bool
	closeRequested  bool
	finished        bool

	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}

	// owned by the loop goroutine
	events    chan event
	stopped   chan struct{}
	attempts  sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	machine   machine
	builder   *RequestBuilder
	parser    *ResponseParser
	extractor Extractor
	watchdog  Watchdog
	gen       uint64
	conn      Conn
	ticker    clockwork.Ticker
	timer     clockwork.Timer
}

type event interface {
	generation() uint64
}

type dialedEvent struct {
	gen  uint64
	conn Conn
}

type dataEvent struct {
	gen  uint64
	data []byte
}

type closedEvent struct {
	gen uint64
	err error
}

type reconnectEvent struct {
	gen uint64
}

func (e dialedEvent) generation() uint64    { return e.gen }
func (e dataEvent) generation() uint64      { return e.gen }
func (e closedEvent) generation() uint64    { return e.gen }
func (e reconnectEvent) generation() uint64 { return e.gen }

// New validates cfg, fills in its defaults and returns an idle stream.
func New(cfg config.StreamConfig) (*Stream, error) {
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ep, err := NewEndpoint(cfg)
	if err != nil {
		return nil, err
	}
	s := &Stream{
		Transport: &NetTransport{},
		Clock:     clockwork.NewRealClock(),
		Logger:    &logger.NullLogger{},
		Metrics:   &metrics.NullMetrics{},
		config:    cfg,
		endpoint:  ep,
		id:        uuid.NewString(),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
		events:    make(chan event),
		stopped:   make(chan struct{}),
	}
	s.machine.autoReconnect = cfg.AutoReconnectEnabled()
	s.watchdog.Threshold = time.Duration(cfg.InactivityTimeout)
	return s, nil
}

// Connect is New followed by Start. Records that arrive before EachItem is
// called are dropped, so prefer New when that matters.
func Connect(cfg config.StreamConfig) (*Stream, error) {
	s, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Start(); err != nil {
		return nil, err
	}
	return s, nil
}

// ID is unique to this stream instance and tags its log lines.
func (s *Stream) ID() string {
	return s.id
}

// Name is the configured stream name.
func (s *Stream) Name() string {
	return s.config.Name
}

// Config returns the stream's config with defaults applied.
func (s *Stream) Config() config.StreamConfig {
	return s.config
}

// EachItem registers the record consumer, replacing any earlier one.
func (s *Stream) EachItem(h ItemHandler) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.eachItem = h
}

// OnMaxReconnects is called when the linear backoff runs out, with the delay
// it would have used and the attempt number that was refused. The stream is
// stopped by then.
func (s *Stream) OnMaxReconnects(h BackoffHandler) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.onMaxReconnects = h
}

// OnReconnect is called whenever a reconnect is scheduled.
func (s *Stream) OnReconnect(h BackoffHandler) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.onReconnect = h
}

// OnNoData is called when the watchdog finds the connection silent.
func (s *Stream) OnNoData(h func()) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.onNoData = h
}

// Code is the status code of the most recent response; zero before the
// first headers arrive. It survives the connection closing and is cleared
// when a new attempt begins.
func (s *Stream) Code() int {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.code
}

// Headers returns a copy of the most recent response headers, or nil. Like
// Code it outlives the connection.
func (s *Stream) Headers() http.Header {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.header.Clone()
}

// State is the stream's current lifecycle phase.
func (s *Stream) State() State {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.state
}

// Err returns the fatal item error that stopped the stream, if any.
func (s *Stream) Err() error {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.err
}

// Reconnects is the number of reconnects scheduled over the stream's life,
// whatever failure caused them. Backoff resets don't clear it.
func (s *Stream) Reconnects() int {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.reconnects
}

// Done is closed once the stream has stopped or been closed and every
// connection it opened has been released.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Start begins connecting in the background.
func (s *Stream) Start() error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.closeRequested {
		return ErrClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	s.Metrics = metrics.NewMetricsPrefixer(s.Metrics, "stream_"+s.config.Name)
	for _, m := range streamMetrics {
		s.Metrics.Register(m)
	}
	if s.Health != nil {
		s.Health.Register(s.healthName(), s.healthTimeout())
	}
	s.builder = NewRequestBuilder(s.config, s.Clock)
	if s.UserAgent != "" {
		s.builder.UserAgent = s.UserAgent
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.ticker = s.Clock.NewTicker(time.Duration(s.config.WatchdogInterval))

	go s.run()
	return nil
}

// Close ends the stream for good: the pending reconnect is cancelled, the
// connection is released and any partial record is thrown away. It doesn't
// wait for that to finish; see Stop. Calling it again does nothing.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.mux.Lock()
		s.closeRequested = true
		started := s.started
		if s.finished || !started {
			s.state = StateClosed
		}
		s.mux.Unlock()

		close(s.closing)
		if !started {
			close(s.done)
		}
	})
}

// Wait blocks until the stream is done and returns the fatal item error
// that stopped it, if there was one.
func (s *Stream) Wait() error {
	<-s.done
	return s.Err()
}

// Stop closes the stream and waits for it to finish.
func (s *Stream) Stop() error {
	s.Close()
	return s.Wait()
}

func (s *Stream) healthName() string {
	return "stream." + s.config.Name
}

func (s *Stream) healthTimeout() time.Duration {
	timeout := 10 * time.Duration(s.config.WatchdogInterval)
	if floor := 10 * health.TickerTime; timeout < floor {
		timeout = floor
	}
	return timeout
}

func (s *Stream) entry(e logger.Entry) logger.Entry {
	return e.WithString("stream", s.config.Name).WithString("stream_id", s.id)
}

func (s *Stream) run() {
	defer s.shutdown()

	s.connect()
	for !s.finishedLoop() {
		select {
		case <-s.closing:
			s.closeConn()
			s.machine.close()
		case ev := <-s.events:
			s.handle(ev)
		case <-s.ticker.Chan():
			s.tick()
		}
		s.publishState()
	}
}

func (s *Stream) finishedLoop() bool {
	return s.machine.state == StateStopped || s.machine.state == StateClosed
}

// shutdown releases everything the loop owns and waits for the attempt
// goroutines to exit before marking the stream done.
func (s *Stream) shutdown() {
	s.ticker.Stop()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.closeConn()
	s.extractor.Reset()
	s.cancel()
	close(s.stopped)
	s.attempts.Wait()

	s.Metrics.Gauge("streaming", 0)
	if s.Health != nil {
		s.Health.Unregister(s.healthName())
	}

	s.mux.Lock()
	s.finished = true
	if s.closeRequested {
		s.state = StateClosed
	} else {
		s.state = s.machine.state
	}
	s.mux.Unlock()

	s.entry(s.Logger.Info()).WithField("state", s.State().String()).Logf("stream finished")
	close(s.done)
}

func (s *Stream) publishState() {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.state = s.machine.state
}

// connect starts a new attempt. Per-attempt state (parser, partial record,
// code and headers) starts over; backoff counters carry across.
func (s *Stream) connect() {
	if !s.machine.begin() {
		return
	}
	s.closeConn()
	s.gen++
	s.parser = &ResponseParser{}
	s.extractor.Reset()
	s.watchdog.Reset(s.Clock.Now())

	s.mux.Lock()
	s.code = 0
	s.header = nil
	s.state = s.machine.state
	s.mux.Unlock()

	s.Metrics.Increment("connect_attempts")
	s.entry(s.Logger.Debug()).WithField("addr", s.endpoint.Addr).WithField("attempt", s.gen).Logf("connecting")

	s.attempts.Add(1)
	go s.attempt(s.gen, s.builder.Build())
}

// attempt dials, negotiates TLS, sends the request and then reads until the
// connection ends. It runs on its own goroutine and reports back through the
// loop's event channel.
func (s *Stream) attempt(gen uint64, req []byte) {
	defer s.attempts.Done()

	ctx, cancel := context.WithTimeout(s.ctx, time.Duration(s.config.DialTimeout))
	conn, err := s.Transport.Dial(ctx, s.endpoint)
	if err == nil && s.config.TLSEnabled() {
		if err = conn.StartTLS(ctx, s.config.Host); err != nil {
			conn.Close()
		}
	}
	cancel()
	if err != nil {
		s.post(closedEvent{gen: gen, err: err})
		return
	}
	release := context.AfterFunc(s.ctx, func() { conn.Close() })
	defer release()
	if _, err := conn.Write(req); err != nil {
		conn.Close()
		s.post(closedEvent{gen: gen, err: errors.Wrap(err, "sending request")})
		return
	}
	if !s.post(dialedEvent{gen: gen, conn: conn}) {
		conn.Close()
		return
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if !s.post(dataEvent{gen: gen, data: bytes.Clone(buf[:n])}) {
				return
			}
		}
		if err != nil {
			s.post(closedEvent{gen: gen, err: err})
			return
		}
	}
}

// post hands an event to the loop. It returns false once the loop is gone.
func (s *Stream) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.stopped:
		return false
	}
}

func (s *Stream) handle(ev event) {
	if ev.generation() != s.gen {
		if d, ok := ev.(dialedEvent); ok {
			d.conn.Close()
		}
		return
	}
	switch ev := ev.(type) {
	case dialedEvent:
		if !s.machine.active() {
			ev.conn.Close()
			return
		}
		s.conn = ev.conn
		s.machine.requestSent()
	case dataEvent:
		s.handleData(ev.data)
	case closedEvent:
		if !s.machine.active() {
			return
		}
		// without chunked framing a clean close is how the body ends
		if s.machine.state == StateStreaming && errors.Is(ev.err, io.EOF) && !s.parser.chunked {
			if !s.flushRecord() {
				return
			}
		}
		s.entry(s.Logger.Warn()).WithField("error", ev.err.Error()).Logf("connection lost")
		s.failTransport()
	case reconnectEvent:
		s.timer = nil
		s.connect()
	}
}

func (s *Stream) handleData(data []byte) {
	if !s.machine.active() {
		return
	}
	s.watchdog.Touch(s.Clock.Now())
	s.Metrics.Count("bytes_received", len(data))

	body, err := s.parser.Feed(data)
	if err != nil {
		s.entry(s.Logger.Warn()).WithField("error", err.Error()).Logf("bad response")
		s.failTransport()
		return
	}
	if s.machine.state == StateHeaders && s.parser.HeadersComplete() {
		code := s.parser.Code()
		s.mux.Lock()
		s.code = code
		s.header = s.parser.Header()
		s.mux.Unlock()

		action := s.machine.headersComplete(code)
		if action.Kind != ActionNone {
			s.closeConn()
			s.Metrics.Increment("application_failures")
			s.entry(s.Logger.Warn()).WithField("code", code).WithString("status", s.parser.Status()).Logf("server rejected request")
			s.execute(action)
			return
		}
		s.Metrics.Gauge("streaming", 1)
		s.entry(s.Logger.Info()).WithField("code", code).Logf("streaming")
	}
	if s.machine.state != StateStreaming {
		return
	}

	if len(body) > 0 {
		handler := s.itemHandler()
		for _, record := range s.extractor.Extract(body) {
			if !s.deliver(handler, record) {
				return
			}
		}
	}
	if s.parser.BodyComplete() {
		if !s.flushRecord() {
			return
		}
		s.entry(s.Logger.Warn()).Logf("response body ended")
		s.failTransport()
	}
}

func (s *Stream) itemHandler() ItemHandler {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.eachItem
}

// flushRecord delivers the record left unterminated when the body ended. It
// returns false if delivering it stopped the stream.
func (s *Stream) flushRecord() bool {
	record := s.extractor.Flush()
	if record == nil {
		return true
	}
	return s.deliver(s.itemHandler(), record)
}

// deliver hands one record to the consumer. It returns false if the consumer
// returned a fatal error and the stream has stopped.
func (s *Stream) deliver(handler ItemHandler, record []byte) bool {
	s.Metrics.Increment("records_received")
	if handler == nil {
		return true
	}
	err := handler(record)
	if err == nil {
		return true
	}
	if IsFatal(err) {
		s.mux.Lock()
		s.err = err
		s.mux.Unlock()
		s.entry(s.Logger.Error()).WithField("error", err.Error()).Logf("item handler failed, stopping stream")
		s.closeConn()
		s.machine.stop()
		return false
	}
	s.Metrics.Increment("item_errors")
	s.entry(s.Logger.Warn()).WithField("error", err.Error()).Logf("item handler returned an error")
	return true
}

func (s *Stream) tick() {
	if s.Health != nil {
		s.Health.Ready(s.healthName(), s.machine.state == StateStreaming)
	}
	if !s.machine.active() || !s.watchdog.Check(s.Clock.Now()) {
		return
	}
	s.Metrics.Increment("stalls")
	s.entry(s.Logger.Warn()).
		WithField("last_data_at", s.watchdog.LastDataAt()).
		WithField("threshold", s.watchdog.Threshold.String()).
		Logf("no data received, forcing reconnect")
	s.mux.RLock()
	onNoData := s.onNoData
	s.mux.RUnlock()
	if onNoData != nil {
		onNoData()
	}
	s.failTransport()
}

func (s *Stream) failTransport() {
	s.closeConn()
	s.Metrics.Increment("transport_failures")
	s.execute(s.machine.fail(TransportFailure))
}

func (s *Stream) execute(a Action) {
	s.Metrics.Gauge("streaming", 0)
	s.mux.RLock()
	onReconnect, onMax := s.onReconnect, s.onMaxReconnects
	s.mux.RUnlock()

	switch a.Kind {
	case ActionReconnect:
		s.Metrics.Increment("reconnects")
		s.Metrics.Gauge("backoff_delay", a.Delay.Milliseconds())
		s.entry(s.Logger.Info()).
			WithString("failure", a.Failure.String()).
			WithField("delay", a.Delay.String()).
			WithField("attempt", a.Attempt).
			Logf("reconnecting")
		s.mux.Lock()
		s.reconnects = s.machine.reconnects
		s.mux.Unlock()
		gen := s.gen
		s.timer = s.Clock.AfterFunc(a.Delay, func() {
			s.post(reconnectEvent{gen: gen})
		})
		if onReconnect != nil {
			onReconnect(a.Delay, a.Attempt)
		}
	case ActionMaxReconnects:
		s.Metrics.Increment("max_reconnects")
		s.entry(s.Logger.Error()).
			WithField("delay", a.Delay.String()).
			WithField("attempt", a.Attempt).
			Logf("max reconnects reached, giving up")
		if onMax != nil {
			onMax(a.Delay, a.Attempt)
		}
	case ActionStop:
		s.entry(s.Logger.Warn()).WithString("failure", a.Failure.String()).Logf("not reconnecting")
	}
}

func (s *Stream) closeConn() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
