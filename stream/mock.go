package stream

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// MockTransport hands out in-memory connections. Tests push response bytes
// through the MockConn returned by WaitForConn.
type MockTransport struct {
	// DialErr, when set, makes every Dial fail.
	DialErr error
	// TLSErr, when set, makes every StartTLS fail.
	TLSErr error

	mux   sync.Mutex
	dials []Endpoint
	conns chan *MockConn
}

var _ Transport = (*MockTransport)(nil)

func NewMockTransport() *MockTransport {
	return &MockTransport{conns: make(chan *MockConn, 64)}
}

func (t *MockTransport) Dial(ctx context.Context, ep Endpoint) (Conn, error) {
	t.mux.Lock()
	t.dials = append(t.dials, ep)
	err := t.DialErr
	tlsErr := t.TLSErr
	t.mux.Unlock()
	if err != nil {
		return nil, err
	}
	c := &MockConn{
		Endpoint: ep,
		tlsErr:   tlsErr,
		data:     make(chan []byte, 64),
		closed:   make(chan struct{}),
		hangup:   make(chan struct{}),
	}
	t.conns <- c
	return c, nil
}

// SetDialErr changes DialErr while the stream may be dialing.
func (t *MockTransport) SetDialErr(err error) {
	t.mux.Lock()
	defer t.mux.Unlock()
	t.DialErr = err
}

// Dials returns every endpoint dialed so far, including failed attempts.
func (t *MockTransport) Dials() []Endpoint {
	t.mux.Lock()
	defer t.mux.Unlock()
	return append([]Endpoint(nil), t.dials...)
}

// WaitForConn returns the next connection dialed, or nil if none arrives
// within timeout.
func (t *MockTransport) WaitForConn(timeout time.Duration) *MockConn {
	select {
	case c := <-t.conns:
		return c
	case <-time.After(timeout):
		return nil
	}
}

// MockConn is one end of an in-memory connection.
type MockConn struct {
	Endpoint Endpoint

	tlsErr error
	data   chan []byte
	pend   []byte

	mux        sync.Mutex
	written    bytes.Buffer
	serverName string
	tlsCount   int

	closeOnce  sync.Once
	closed     chan struct{}
	hangupOnce sync.Once
	hangup     chan struct{}
	hangupErr  error
}

var _ Conn = (*MockConn)(nil)

// Send queues bytes for the stream to read.
func (c *MockConn) Send(b []byte) {
	select {
	case c.data <- append([]byte(nil), b...):
	case <-c.closed:
	}
}

// SendString is Send for a string.
func (c *MockConn) SendString(s string) {
	c.Send([]byte(s))
}

// Hangup ends the connection from the server side; pending data is still
// read before the stream sees EOF.
func (c *MockConn) Hangup() {
	c.HangupWithError(io.EOF)
}

// HangupWithError is Hangup with a broken connection: once pending data is
// read the stream sees err instead of EOF.
func (c *MockConn) HangupWithError(err error) {
	c.hangupOnce.Do(func() {
		c.mux.Lock()
		c.hangupErr = err
		c.mux.Unlock()
		close(c.hangup)
	})
}

func (c *MockConn) Read(p []byte) (int, error) {
	if len(c.pend) > 0 {
		n := copy(p, c.pend)
		c.pend = c.pend[n:]
		return n, nil
	}
	select {
	case b := <-c.data:
		n := copy(p, b)
		c.pend = b[n:]
		return n, nil
	case <-c.closed:
		return 0, net.ErrClosed
	case <-c.hangup:
		select {
		case b := <-c.data:
			n := copy(p, b)
			c.pend = b[n:]
			return n, nil
		default:
		}
		c.mux.Lock()
		defer c.mux.Unlock()
		return 0, c.hangupErr
	}
}

func (c *MockConn) Write(p []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, net.ErrClosed
	default:
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.written.Write(p)
}

func (c *MockConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *MockConn) StartTLS(ctx context.Context, serverName string) error {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.tlsErr != nil {
		return errors.Wrapf(c.tlsErr, "TLS handshake with %s", serverName)
	}
	c.tlsCount++
	c.serverName = serverName
	return nil
}

// Written returns everything the stream wrote.
func (c *MockConn) Written() string {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.written.String()
}

// TLS reports how many handshakes ran and the last server name used.
func (c *MockConn) TLS() (int, string) {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.tlsCount, c.serverName
}

// IsClosed reports whether the stream closed the connection.
func (c *MockConn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// WaitClosed waits up to timeout for the stream to close the connection.
func (c *MockConn) WaitClosed(timeout time.Duration) bool {
	select {
	case <-c.closed:
		return true
	case <-time.After(timeout):
		return false
	}
}
