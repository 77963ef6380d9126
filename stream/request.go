package stream

import (
	"bytes"
	"encoding/base64"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/honeycombio/firehose/config"
	"github.com/honeycombio/firehose/internal/oauth"
)

// Version is reported in the default User-Agent. It's set at build time
// with -ldflags and never changed at runtime; a program reporting its own
// version sets Stream.UserAgent instead.
var Version = "dev"

// DefaultUserAgent is sent when neither the config nor the stream names one.
func DefaultUserAgent() string {
	return UserAgentFor(Version)
}

// UserAgentFor is the User-Agent for a build with the given version.
func UserAgentFor(version string) string {
	return "firehose/" + version
}

// RequestBuilder renders the request sent at the start of every connection
// attempt. The bytes depend only on the config, apart from the OAuth nonce
// and timestamp, and never on whether a proxy is in use.
type RequestBuilder struct {
	Config config.StreamConfig
	// UserAgent is used when Config.UserAgent is empty.
	UserAgent string
	signer    *oauth.Signer
}

// NewRequestBuilder returns a builder for cfg. The clock stamps OAuth
// signatures.
func NewRequestBuilder(cfg config.StreamConfig, clock clockwork.Clock) *RequestBuilder {
	b := &RequestBuilder{
		Config:    cfg,
		UserAgent: DefaultUserAgent(),
	}
	if cfg.Auth.Kind() == config.AuthOAuth && cfg.Auth.OAuth != nil {
		o := cfg.Auth.OAuth
		b.signer = oauth.NewSigner(oauth.Credentials{
			ConsumerKey:    o.ConsumerKey,
			ConsumerSecret: o.ConsumerSecret,
			AccessKey:      o.AccessKey,
			AccessSecret:   o.AccessSecret,
		}, clock)
	}
	return b
}

type headerLine struct {
	key, value string
}

// Build returns the request line and header block, terminated by the blank
// line. There is never a body; parameters always travel in the query string.
func (b *RequestBuilder) Build() []byte {
	cfg := b.Config
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
	}

	target := cfg.Path
	if target == "" {
		target = "/"
	}
	if query := oauth.NormalizeParams(cfg.Params); query != "" {
		target += "?" + query
	}

	headers := []headerLine{
		{"Host", b.hostHeader()},
		{"User-Agent", b.userAgent()},
	}
	if auth := b.authorization(method); auth != "" {
		headers = append(headers, headerLine{"Authorization", auth})
	}

	custom := make([]string, 0, len(cfg.Headers))
	for k := range cfg.Headers {
		custom = append(custom, k)
	}
	sort.Strings(custom)
	for _, k := range custom {
		// a custom header replaces a built-in one with the same name
		headers = withoutHeader(headers, k)
		headers = append(headers, headerLine{k, cfg.Headers[k]})
	}

	var buf bytes.Buffer
	buf.WriteString(method + " " + target + " HTTP/1.1\r\n")
	for _, h := range headers {
		buf.WriteString(h.key + ": " + sanitizeHeaderValue(h.value) + "\r\n")
	}
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func withoutHeader(headers []headerLine, key string) []headerLine {
	out := headers[:0]
	for _, h := range headers {
		if !strings.EqualFold(h.key, key) {
			out = append(out, h)
		}
	}
	return out
}

// sanitizeHeaderValue keeps a config value from injecting extra header lines.
func sanitizeHeaderValue(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

func (b *RequestBuilder) userAgent() string {
	if b.Config.UserAgent != "" {
		return b.Config.UserAgent
	}
	if b.UserAgent != "" {
		return b.UserAgent
	}
	return DefaultUserAgent()
}

// hostHeader leaves out the port when it's the default for the scheme.
func (b *RequestBuilder) hostHeader() string {
	cfg := b.Config
	if (cfg.TLSEnabled() && cfg.Port == 443) || (!cfg.TLSEnabled() && cfg.Port == 80) {
		return cfg.Host
	}
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

func (b *RequestBuilder) authorization(method string) string {
	cfg := b.Config
	switch cfg.Auth.Kind() {
	case config.AuthBasic:
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.Auth.Basic))
	case config.AuthOAuth:
		if b.signer == nil {
			return ""
		}
		scheme := "http"
		if cfg.TLSEnabled() {
			scheme = "https"
		}
		u := &url.URL{
			Scheme: scheme,
			Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Path:   cfg.Path,
		}
		return b.signer.Authorization(method, u, cfg.Params)
	}
	return ""
}
