package stream

import "time"

const (
	DefaultInactivityTimeout = 90 * time.Second
	DefaultWatchdogInterval  = time.Second
)

// Watchdog notices a connection that has gone quiet even though the socket
// still looks open. The stream loop calls Touch for every read and Check on
// every tick of its watchdog ticker.
type Watchdog struct {
	Threshold time.Duration

	lastDataAt time.Time
	stalled    bool
}

// Reset starts a new observation window, as when a new connection attempt
// begins. The timestamp never moves backwards.
func (w *Watchdog) Reset(now time.Time) {
	w.Touch(now)
	w.stalled = false
}

// Touch records that data arrived at now and ends any stall episode.
func (w *Watchdog) Touch(now time.Time) {
	if now.After(w.lastDataAt) {
		w.lastDataAt = now
	}
	w.stalled = false
}

// LastDataAt returns when data was last seen.
func (w *Watchdog) LastDataAt() time.Time {
	return w.lastDataAt
}

// Check reports true the first time it's called at least Threshold after the
// last data; further calls return false until Touch or Reset.
func (w *Watchdog) Check(now time.Time) bool {
	if w.stalled || w.lastDataAt.IsZero() {
		return false
	}
	threshold := w.Threshold
	if threshold <= 0 {
		threshold = DefaultInactivityTimeout
	}
	if now.Sub(w.lastDataAt) >= threshold {
		w.stalled = true
		return true
	}
	return false
}
