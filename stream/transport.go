package stream

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/honeycombio/firehose/config"
)

// Endpoint says where a connection attempt goes. Addr is dialed; when a proxy
// is configured Addr is the proxy and Target is the host:port the tunnel is
// opened to.
type Endpoint struct {
	Addr   string
	Target string
	Proxy  *url.URL
}

// NewEndpoint works out the endpoint for a stream config.
func NewEndpoint(cfg config.StreamConfig) (Endpoint, error) {
	ep := Endpoint{Addr: cfg.Addr(), Target: cfg.Addr()}
	proxy, err := cfg.ProxyURL()
	if err != nil {
		return Endpoint{}, err
	}
	if proxy != nil {
		ep.Addr = proxy.Host
		ep.Proxy = proxy
	}
	return ep, nil
}

// Conn is an established connection. It starts out in plain text; StartTLS
// upgrades it in place.
type Conn interface {
	io.ReadWriteCloser
	StartTLS(ctx context.Context, serverName string) error
}

// Transport opens connections for a stream. Every call is independent: a
// reconnect always gets a fresh socket, tunnel and TLS session.
type Transport interface {
	Dial(ctx context.Context, ep Endpoint) (Conn, error)
}

// NetTransport dials real TCP connections.
type NetTransport struct {
	Dialer *net.Dialer
	// TLSConfig is cloned for every handshake. ServerName is always
	// overwritten with the stream's host.
	TLSConfig *tls.Config
}

var _ Transport = (*NetTransport)(nil)

func (t *NetTransport) Dial(ctx context.Context, ep Endpoint) (Conn, error) {
	d := t.Dialer
	if d == nil {
		d = &net.Dialer{KeepAlive: 30 * time.Second}
	}
	raw, err := d.DialContext(ctx, "tcp", ep.Addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", ep.Addr)
	}
	c := &netConn{Conn: raw, tlsConfig: t.TLSConfig}
	if ep.Proxy == nil {
		return c, nil
	}
	if err := c.tunnel(ctx, ep); err != nil {
		raw.Close()
		return nil, err
	}
	return c, nil
}

type netConn struct {
	net.Conn
	tlsConfig *tls.Config
	// r holds anything the proxy sent after its CONNECT reply.
	r io.Reader
}

func (c *netConn) Read(p []byte) (int, error) {
	if c.r != nil {
		return c.r.Read(p)
	}
	return c.Conn.Read(p)
}

// tunnel asks the proxy to CONNECT to the target and waits for a 200.
func (c *netConn) tunnel(ctx context.Context, ep Endpoint) error {
	if deadline, ok := ctx.Deadline(); ok {
		c.Conn.SetDeadline(deadline)
		defer c.Conn.SetDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		c.Conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	req := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n", ep.Target, ep.Target)
	if u := ep.Proxy.User; u != nil {
		pass, _ := u.Password()
		cred := base64.StdEncoding.EncodeToString([]byte(u.Username() + ":" + pass))
		req += "Proxy-Authorization: Basic " + cred + "\r\n"
	}
	req += "\r\n"
	if _, err := io.WriteString(c.Conn, req); err != nil {
		return errors.Wrapf(err, "sending CONNECT to proxy %s", ep.Addr)
	}

	br := bufio.NewReader(c.Conn)
	resp, err := http.ReadResponse(br, &http.Request{Method: http.MethodConnect})
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return errors.Wrapf(err, "reading CONNECT reply from proxy %s", ep.Addr)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("proxy %s refused tunnel to %s: %s", ep.Addr, ep.Target, resp.Status)
	}
	if br.Buffered() > 0 {
		c.r = io.MultiReader(br, c.Conn)
	}
	return nil
}

func (c *netConn) StartTLS(ctx context.Context, serverName string) error {
	cfg := &tls.Config{}
	if c.tlsConfig != nil {
		cfg = c.tlsConfig.Clone()
	}
	cfg.ServerName = serverName
	tc := tls.Client(&readerConn{Conn: c.Conn, r: c.r}, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		return errors.Wrapf(err, "TLS handshake with %s", serverName)
	}
	c.Conn = tc
	c.r = nil
	return nil
}

// readerConn lets the TLS client consume bytes already buffered from the
// proxy before reading from the socket.
type readerConn struct {
	net.Conn
	r io.Reader
}

func (c *readerConn) Read(p []byte) (int, error) {
	if c.r != nil {
		return c.r.Read(p)
	}
	return c.Conn.Read(p)
}
