package stream

import (
	"fmt"
	"time"
)

// State is the lifecycle phase of a stream.
type State int

const (
	// StateIdle is a stream that hasn't been started.
	StateIdle State = iota
	// StateConnecting is dialing, tunneling, negotiating TLS and sending the request.
	StateConnecting
	// StateHeaders has sent the request and is waiting for the response headers.
	StateHeaders
	// StateStreaming has a 2xx response and is delivering records.
	StateStreaming
	// StateTransportFailure lost its connection and is waiting to reconnect.
	StateTransportFailure
	// StateApplicationFailure was rejected by the server and is waiting to reconnect.
	StateApplicationFailure
	// StateStopped gave up: retries ran out, auto-reconnect is off, or an
	// item handler returned a fatal error.
	StateStopped
	// StateClosed was closed by its consumer. It is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateHeaders:
		return "headers"
	case StateStreaming:
		return "streaming"
	case StateTransportFailure:
		return "transport_failure"
	case StateApplicationFailure:
		return "application_failure"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Failure is the class of a failed connection attempt; each class has its
// own backoff policy.
type Failure int

const (
	// TransportFailure covers refused, reset and dropped connections as well
	// as stalls detected by the watchdog.
	TransportFailure Failure = iota
	// ApplicationFailure is a well-formed response with a non-2xx status.
	ApplicationFailure
)

func (f Failure) String() string {
	if f == ApplicationFailure {
		return "application"
	}
	return "transport"
}

// ActionKind says what the stream loop should do after a transition.
type ActionKind int

const (
	ActionNone ActionKind = iota
	// ActionReconnect schedules a new attempt after Action.Delay.
	ActionReconnect
	// ActionMaxReconnects means the linear policy ran out; the consumer is
	// told and the stream stops.
	ActionMaxReconnects
	// ActionStop stops without telling the consumer.
	ActionStop
)

// Action is the outcome of a transition.
type Action struct {
	Kind    ActionKind
	Failure Failure
	Delay   time.Duration
	Attempt int
}

// machine holds the connection state and both backoff policies. Its methods
// only compute transitions; the stream loop performs the I/O they call for.
type machine struct {
	state         State
	autoReconnect bool

	linear      LinearBackoff
	exponential ExponentialBackoff
	// reconnects counts every reconnect scheduled over the stream's life.
	reconnects int
}

// active reports whether a connection attempt is in flight.
func (m *machine) active() bool {
	switch m.state {
	case StateConnecting, StateHeaders, StateStreaming:
		return true
	}
	return false
}

// begin moves to StateConnecting. It returns false if the stream is in no
// position to connect.
func (m *machine) begin() bool {
	switch m.state {
	case StateIdle, StateTransportFailure, StateApplicationFailure:
		m.state = StateConnecting
		return true
	}
	return false
}

// requestSent records that the connection is up and the request was written.
func (m *machine) requestSent() {
	if m.state == StateConnecting {
		m.state = StateHeaders
	}
}

// headersComplete moves to StateStreaming on a 2xx status and treats
// anything else as an application failure. Reaching the streaming state
// clears both backoff policies.
func (m *machine) headersComplete(code int) Action {
	if m.state != StateHeaders {
		return Action{}
	}
	if code >= 200 && code < 300 {
		m.state = StateStreaming
		m.linear.Reset()
		m.exponential.Reset()
		return Action{}
	}
	return m.fail(ApplicationFailure)
}

// fail records a failure of the current attempt and picks what happens next.
func (m *machine) fail(f Failure) Action {
	if !m.active() {
		return Action{}
	}
	if f == ApplicationFailure {
		m.state = StateApplicationFailure
	} else {
		m.state = StateTransportFailure
	}
	if !m.autoReconnect {
		m.state = StateStopped
		return Action{Kind: ActionStop, Failure: f}
	}

	var (
		delay   time.Duration
		attempt int
		ok      bool
	)
	if f == ApplicationFailure {
		delay, attempt, ok = m.exponential.Next()
		if !ok {
			m.state = StateStopped
			return Action{Kind: ActionStop, Failure: f, Delay: delay, Attempt: attempt}
		}
	} else {
		delay, attempt, ok = m.linear.Next()
		if !ok {
			m.state = StateStopped
			return Action{Kind: ActionMaxReconnects, Failure: f, Delay: delay, Attempt: attempt}
		}
	}
	m.reconnects++
	return Action{Kind: ActionReconnect, Failure: f, Delay: delay, Attempt: attempt}
}

// stop gives up for good unless the stream is already closed.
func (m *machine) stop() {
	if m.state != StateClosed {
		m.state = StateStopped
	}
}

// close moves to StateClosed. It returns false if already closed.
func (m *machine) close() bool {
	if m.state == StateClosed {
		return false
	}
	m.state = StateClosed
	return true
}
