package stream

import "time"

// Transport failures (dropped connections, stalls) are usually brief network
// blips, so they back off gently and give up loudly after many tries.
const (
	LinearBackoffStart       = 250 * time.Millisecond
	LinearBackoffStep        = 250 * time.Millisecond
	LinearBackoffMaxAttempts = 100
)

// Application failures (bad or revoked credentials) tend to persist, so they
// back off hard and stop quietly.
const (
	ExponentialBackoffStart   = 10 * time.Second
	ExponentialBackoffFactor  = 2
	ExponentialBackoffCeiling = 320 * time.Second
)

// LinearBackoff waits LinearBackoffStart before the first reconnect and
// LinearBackoffStep longer before each one after that.
type LinearBackoff struct {
	// LastDelay is the delay handed out by the previous call to Next; zero
	// means no attempt has been made yet.
	LastDelay time.Duration
	// Attempts counts calls to Next since the last Reset.
	Attempts int
}

// Next records a failure and returns the delay before the next attempt along
// with the attempt number. Once LinearBackoffMaxAttempts is exceeded it
// returns ok=false with the delay a fresh sequence would start at and the
// attempt number that overflowed, and starts over.
func (b *LinearBackoff) Next() (delay time.Duration, attempt int, ok bool) {
	b.Attempts++
	if b.Attempts > LinearBackoffMaxAttempts {
		attempt = b.Attempts
		b.Reset()
		return LinearBackoffStart, attempt, false
	}
	if b.LastDelay == 0 {
		b.LastDelay = LinearBackoffStart
	} else {
		b.LastDelay += LinearBackoffStep
	}
	return b.LastDelay, b.Attempts, true
}

// Reset forgets all previous failures.
func (b *LinearBackoff) Reset() {
	b.LastDelay = 0
	b.Attempts = 0
}

// ExponentialBackoff waits ExponentialBackoffStart before the first reconnect
// and doubles the wait each time, giving up once the wait would pass
// ExponentialBackoffCeiling.
type ExponentialBackoff struct {
	LastDelay time.Duration
	Attempts  int
}

// Next records a failure and returns the delay before the next attempt. When
// ok is false no further attempt should be made; LastDelay is left untouched
// so that every later call keeps reporting exhaustion until Reset.
func (b *ExponentialBackoff) Next() (delay time.Duration, attempt int, ok bool) {
	next := ExponentialBackoffStart
	if b.LastDelay > 0 {
		next = b.LastDelay * ExponentialBackoffFactor
	}
	if next > ExponentialBackoffCeiling {
		return next, b.Attempts + 1, false
	}
	b.LastDelay = next
	b.Attempts++
	return next, b.Attempts, true
}

// Reset forgets all previous failures.
func (b *ExponentialBackoff) Reset() {
	b.LastDelay = 0
	b.Attempts = 0
}
