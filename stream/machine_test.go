package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamingMachine(t *testing.T, autoReconnect bool) *machine {
	m := &machine{autoReconnect: autoReconnect}
	require.True(t, m.begin())
	m.requestSent()
	assert.Equal(t, Action{}, m.headersComplete(200))
	require.Equal(t, StateStreaming, m.state)
	return m
}

func TestMachineHappyPath(t *testing.T) {
	m := &machine{autoReconnect: true}
	assert.Equal(t, StateIdle, m.state)
	assert.True(t, m.begin())
	assert.Equal(t, StateConnecting, m.state)
	assert.False(t, m.begin(), "can't begin twice")
	m.requestSent()
	assert.Equal(t, StateHeaders, m.state)
	m.headersComplete(204)
	assert.Equal(t, StateStreaming, m.state)
}

func TestMachineTransportFailureReconnectsLinearly(t *testing.T) {
	m := streamingMachine(t, true)
	a := m.fail(TransportFailure)
	assert.Equal(t, Action{Kind: ActionReconnect, Failure: TransportFailure, Delay: 250 * time.Millisecond, Attempt: 1}, a)
	assert.Equal(t, StateTransportFailure, m.state)

	require.True(t, m.begin())
	m.linear.LastDelay = time.Second
	a = m.fail(TransportFailure)
	assert.Equal(t, ActionReconnect, a.Kind)
	assert.Equal(t, 1250*time.Millisecond, a.Delay)
	assert.Equal(t, 2, m.reconnects)
}

func TestMachineMaxReconnects(t *testing.T) {
	m := streamingMachine(t, true)
	m.linear.Attempts = 100
	a := m.fail(TransportFailure)
	assert.Equal(t, ActionMaxReconnects, a.Kind)
	assert.Equal(t, 250*time.Millisecond, a.Delay)
	assert.Equal(t, 101, a.Attempt)
	assert.Equal(t, StateStopped, m.state)
	assert.False(t, m.begin())
}

func TestMachineApplicationFailure(t *testing.T) {
	m := &machine{autoReconnect: true}
	m.begin()
	m.requestSent()
	a := m.headersComplete(401)
	assert.Equal(t, Action{Kind: ActionReconnect, Failure: ApplicationFailure, Delay: 10 * time.Second, Attempt: 1}, a)
	assert.Equal(t, StateApplicationFailure, m.state)
	assert.Zero(t, m.linear.Attempts, "transport counter untouched")

	m.begin()
	m.requestSent()
	m.exponential.LastDelay = 160 * time.Second
	a = m.headersComplete(401)
	assert.Equal(t, ActionReconnect, a.Kind)
	assert.Equal(t, 320*time.Second, a.Delay)

	m.begin()
	m.requestSent()
	a = m.headersComplete(403)
	assert.Equal(t, ActionStop, a.Kind)
	assert.Equal(t, StateStopped, m.state)
}

func TestMachineStreamingResetsBackoff(t *testing.T) {
	m := &machine{autoReconnect: true}
	m.begin()
	m.fail(TransportFailure)
	m.begin()
	m.requestSent()
	m.headersComplete(401)
	assert.Equal(t, 1, m.linear.Attempts)
	assert.Equal(t, 1, m.exponential.Attempts)

	m.begin()
	m.requestSent()
	m.headersComplete(200)
	assert.Zero(t, m.linear.Attempts)
	assert.Zero(t, m.exponential.Attempts)
	assert.Equal(t, 2, m.reconnects, "the lifetime total is kept")
}

func TestMachineNoAutoReconnect(t *testing.T) {
	m := streamingMachine(t, false)
	a := m.fail(TransportFailure)
	assert.Equal(t, Action{Kind: ActionStop, Failure: TransportFailure}, a)
	assert.Equal(t, StateStopped, m.state)

	m = &machine{}
	m.begin()
	m.requestSent()
	a = m.headersComplete(401)
	assert.Equal(t, ActionStop, a.Kind)
}

func TestMachineIgnoresFailuresWhenInactive(t *testing.T) {
	m := streamingMachine(t, true)
	m.fail(TransportFailure)
	assert.Equal(t, Action{}, m.fail(TransportFailure), "a second report for the same attempt is ignored")
	assert.True(t, m.close())
	assert.False(t, m.close())
	assert.Equal(t, Action{}, m.fail(TransportFailure))
	m.stop()
	assert.Equal(t, StateClosed, m.state)
}
