// Package oauth signs requests with OAuth 1.0a (HMAC-SHA1), as used by
// streaming APIs that authenticate each connection with user access tokens.
package oauth

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	signatureMethod = "HMAC-SHA1"
	version         = "1.0"
)

// Credentials are the consumer (application) and access (user) key pairs.
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessKey      string
	AccessSecret   string
}

// Signer produces Authorization header values. A fresh nonce and timestamp
// are used for every call, so every connection attempt is signed anew.
type Signer struct {
	Credentials Credentials
	Clock       clockwork.Clock
	// Nonce returns a unique string per request; it defaults to a dashless uuid.
	Nonce func() string
}

func NewSigner(creds Credentials, clock clockwork.Clock) *Signer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Signer{
		Credentials: creds,
		Clock:       clock,
		Nonce: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")
		},
	}
}

// Authorization returns the value of the Authorization header for a request
// with the given method and URL. params are the request's query (or form)
// parameters, which are covered by the signature.
func (s *Signer) Authorization(method string, u *url.URL, params map[string]string) string {
	oauthParams := map[string]string{
		"oauth_consumer_key":     s.Credentials.ConsumerKey,
		"oauth_nonce":            s.Nonce(),
		"oauth_signature_method": signatureMethod,
		"oauth_timestamp":        strconv.FormatInt(s.Clock.Now().Unix(), 10),
		"oauth_token":            s.Credentials.AccessKey,
		"oauth_version":          version,
	}

	all := make(map[string]string, len(params)+len(oauthParams))
	for k, v := range params {
		all[k] = v
	}
	for k, v := range oauthParams {
		all[k] = v
	}
	oauthParams["oauth_signature"] = s.sign(method, u, all)

	keys := make([]string, 0, len(oauthParams))
	for k := range oauthParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = PercentEncode(k) + `="` + PercentEncode(oauthParams[k]) + `"`
	}
	return "OAuth " + strings.Join(parts, ", ")
}

func (s *Signer) sign(method string, u *url.URL, params map[string]string) string {
	base := strings.ToUpper(method) + "&" + PercentEncode(baseURL(u)) + "&" + PercentEncode(NormalizeParams(params))
	key := PercentEncode(s.Credentials.ConsumerSecret) + "&" + PercentEncode(s.Credentials.AccessSecret)
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// baseURL is the scheme, host and path with the port only when it isn't the
// scheme's default.
func baseURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port != "" && !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
		host = net.JoinHostPort(host, port)
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

// NormalizeParams encodes params as k=v pairs joined by &, sorted by encoded
// key. It's also the query string the request is sent with, so what's signed
// is exactly what's sent.
func NormalizeParams(params map[string]string) string {
	type pair struct{ k, v string }
	pairs := make([]pair, 0, len(params))
	for k, v := range params {
		pairs = append(pairs, pair{PercentEncode(k), PercentEncode(v)})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.k + "=" + p.v
	}
	return strings.Join(parts, "&")
}

// PercentEncode escapes s as RFC 3986 requires: everything but unreserved
// characters becomes %XX, with uppercase hex.
func PercentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}
