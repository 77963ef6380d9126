package health

import (
	"maps"
	"sync"
	"time"

	"github.com/facebookgo/startstop"
	"github.com/jonboulle/clockwork"

	"github.com/honeycombio/firehose/logger"
	"github.com/honeycombio/firehose/metrics"
)

// Each stream registers itself as a subsystem when it starts and reports in
// on every tick of its watchdog: ready while it is streaming, not ready while
// it is connecting, backing off or stopped. A stream that stops reporting at
// all (a wedged event loop) is marked as not alive once its timeout passes.
// The admin router reads the result back for /alive and /ready.

// Recorder is the interface used by objects that want to record their own health
// status and make it available to the system.
type Recorder interface {
	Register(subsystem string, timeout time.Duration)
	Unregister(subsystem string)
	Ready(subsystem string, ready bool)
}

// Reporter is the interface that is used to read back the health status of the system.
type Reporter interface {
	IsAlive() bool
	IsReady() bool
	// Status returns the readiness of every registered subsystem.
	Status() map[string]bool
}

// TickerTime is the interval at which we survey the health of all of the
// subsystems. It should be less than any reporting timeout in the system.
var TickerTime = 500 * time.Millisecond

// Health tracks registered subsystems. Once a subsystem has reported for the
// first time it must keep reporting at least once per timeout or it is
// marked as not alive.
type Health struct {
	Clock    clockwork.Clock `inject:""`
	Metrics  metrics.Metrics `inject:"metrics"`
	Logger   logger.Logger   `inject:""`
	timeouts map[string]time.Duration
	timeLeft map[string]time.Duration
	readies  map[string]bool
	alives   map[string]bool
	mut      sync.RWMutex
	done     chan struct{}
	startstop.Starter
	startstop.Stopper
	Recorder
	Reporter
}

var _ Recorder = (*Health)(nil)
var _ Reporter = (*Health)(nil)

var healthMetrics = []metrics.Metadata{
	{Name: "is_ready", Type: metrics.Gauge, Unit: metrics.Dimensionless, Description: "whether every stream is streaming (1) or not (0)"},
	{Name: "is_alive", Type: metrics.Gauge, Unit: metrics.Dimensionless, Description: "whether every stream is reporting in (1) or not (0)"},
}

func (h *Health) Start() error {
	// if we don't have a logger or metrics object, we'll use the null ones (makes testing easier)
	if h.Logger == nil {
		h.Logger = &logger.NullLogger{}
	}
	if h.Metrics == nil {
		h.Metrics = &metrics.NullMetrics{}
	}
	if h.Clock == nil {
		h.Clock = clockwork.NewRealClock()
	}
	for _, m := range healthMetrics {
		h.Metrics.Register(m)
	}
	h.timeouts = make(map[string]time.Duration)
	h.timeLeft = make(map[string]time.Duration)
	h.readies = make(map[string]bool)
	h.alives = make(map[string]bool)
	h.done = make(chan struct{})
	tick := h.Clock.NewTicker(TickerTime)
	go h.ticker(tick)
	return nil
}

func (h *Health) Stop() error {
	close(h.done)
	return nil
}

func (h *Health) ticker(tick clockwork.Ticker) {
	defer tick.Stop()
	for {
		select {
		case <-tick.Chan():
			h.mut.Lock()
			for subsystem, timeLeft := range h.timeLeft {
				// only decrement positive counters since 0 means we're dead
				if timeLeft > 0 {
					h.timeLeft[subsystem] -= TickerTime
					if h.timeLeft[subsystem] < 0 {
						h.timeLeft[subsystem] = 0
					}
				}
			}
			h.Metrics.Gauge("is_alive", h.checkAlive())
			h.mut.Unlock()
		case <-h.done:
			return
		}
	}
}

// Register a subsystem with the health system. The timeout is the maximum
// expected interval between reports, counted from the first call to Ready.
func (h *Health) Register(subsystem string, timeout time.Duration) {
	h.mut.Lock()
	defer h.mut.Unlock()
	h.timeouts[subsystem] = timeout
	h.readies[subsystem] = false
	// negative means no report yet, so we don't return "dead" immediately
	h.timeLeft[subsystem] = -1
	fields := map[string]any{
		"subsystem": subsystem,
		"timeout":   timeout,
	}
	h.Logger.Debug().WithFields(fields).Logf("registered health subsystem")
	if timeout < TickerTime {
		h.Logger.Error().WithFields(fields).Logf("registering a timeout less than the ticker time")
	}
}

// Unregister marks the subsystem as not ready and stops tracking whether
// it's alive. Later reports from it are ignored.
func (h *Health) Unregister(subsystem string) {
	h.mut.Lock()
	defer h.mut.Unlock()
	delete(h.timeouts, subsystem)
	delete(h.timeLeft, subsystem)
	delete(h.alives, subsystem)

	// an unregistered subsystem can never be ready
	h.readies[subsystem] = false
}

// Ready is called by subsystems to report in with their readiness. If any
// subsystem is not ready, the system as a whole is not ready. Even unready
// subsystems are alive as long as they report in.
func (h *Health) Ready(subsystem string, ready bool) {
	h.mut.Lock()
	defer h.mut.Unlock()
	if _, ok := h.timeouts[subsystem]; !ok {
		// still reporting after Unregister is fine; never registered is not
		if _, ok := h.readies[subsystem]; !ok {
			h.Logger.Error().WithString("subsystem", subsystem).Logf("Health.Ready called for unregistered subsystem")
		}
		return
	}
	if h.readies[subsystem] != ready {
		h.Logger.Debug().WithFields(map[string]any{
			"subsystem": subsystem,
			"ready":     ready,
		}).Logf("subsystem changing readiness")
	}
	h.readies[subsystem] = ready
	h.timeLeft[subsystem] = h.timeouts[subsystem]
	if !h.alives[subsystem] {
		h.alives[subsystem] = true
		h.Logger.Debug().WithString("subsystem", subsystem).Logf("subsystem alive")
	}
	h.Metrics.Gauge("is_ready", h.checkReady())
	h.Metrics.Gauge("is_alive", h.checkAlive())
}

// IsAlive returns true if all registered subsystems are alive
func (h *Health) IsAlive() bool {
	h.mut.Lock()
	defer h.mut.Unlock()
	return h.checkAlive()
}

// checkAlive only call with a write lock held
func (h *Health) checkAlive() bool {
	for subsystem, a := range h.timeLeft {
		if a == 0 {
			if h.alives[subsystem] {
				h.Logger.Error().WithString("subsystem", subsystem).Logf("subsystem stopped reporting")
				h.alives[subsystem] = false
			}
			return false
		}
	}
	return true
}

// IsReady returns true if all registered subsystems are ready
func (h *Health) IsReady() bool {
	h.mut.RLock()
	defer h.mut.RUnlock()
	return h.checkReady()
}

// checkReady only call with the lock held
func (h *Health) checkReady() bool {
	// if no one has registered yet, we're not ready
	if len(h.readies) == 0 {
		return false
	}
	for _, counter := range h.timeLeft {
		if counter <= 0 {
			return false
		}
	}
	for _, r := range h.readies {
		if !r {
			return false
		}
	}
	return true
}

func (h *Health) Status() map[string]bool {
	h.mut.RLock()
	defer h.mut.RUnlock()
	return maps.Clone(h.readies)
}
