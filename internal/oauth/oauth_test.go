package oauth

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentEncode(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Ladies + Gentlemen", "Ladies%20%2B%20Gentlemen"},
		{"An encoded string!", "An%20encoded%20string%21"},
		{"Dogs, Cats & Mice", "Dogs%2C%20Cats%20%26%20Mice"},
		{"☃", "%E2%98%83"},
		{"safe-._~AZaz09", "safe-._~AZaz09"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, PercentEncode(tt.in))
		})
	}
}

func TestNormalizeParams(t *testing.T) {
	assert.Equal(t, "", NormalizeParams(nil))
	assert.Equal(t, "a=1&b=x%20y&track=go%2Crust", NormalizeParams(map[string]string{
		"track": "go,rust",
		"b":     "x y",
		"a":     "1",
	}))
}

// The worked example from Twitter's "Creating a signature" documentation.
func TestAuthorizationKnownSignature(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1318622958, 0))
	s := NewSigner(Credentials{
		ConsumerKey:    "xvz1evFS4wEEPTGEFPHBog",
		ConsumerSecret: "kAcSOqF21Fu85e7zjz7ZN2U4ZRhfV3WpwPAoE3Z7kBw",
		AccessKey:      "370773112-GmHxMAgYyLbNEtIKZeRNFsMKPR9EyMZeS9weJAEb",
		AccessSecret:   "LswwdoUaIvS8ltyTt5jkRh4J50vUPVVHtR2YPi5kE",
	}, clock)
	s.Nonce = func() string { return "kYjzVBB8Y0ZFabxSWbWovY3uYSQ2pTgmZeNu2VS4cg" }

	u, err := url.Parse("https://api.twitter.com/1.1/statuses/update.json")
	require.NoError(t, err)
	header := s.Authorization("POST", u, map[string]string{
		"include_entities": "true",
		"status":           "Hello Ladies + Gentlemen, a signed OAuth request!",
	})

	assert.True(t, strings.HasPrefix(header, "OAuth "))
	assert.Contains(t, header, `oauth_signature="hCtSmYh%2BiHYCEqBWrE7C7hYmtUk%3D"`)
	assert.Contains(t, header, `oauth_consumer_key="xvz1evFS4wEEPTGEFPHBog"`)
	assert.Contains(t, header, `oauth_timestamp="1318622958"`)
	assert.Contains(t, header, `oauth_version="1.0"`)
	assert.NotContains(t, header, "status=", "request params are signed but not sent in the header")
}

func TestAuthorizationIsFreshEachTime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewSigner(Credentials{ConsumerKey: "ck", ConsumerSecret: "cs", AccessKey: "ak", AccessSecret: "as"}, clock)
	u, _ := url.Parse("https://stream.example.com:443/1/statuses/filter.json")
	first := s.Authorization("GET", u, nil)
	clock.Advance(time.Second)
	second := s.Authorization("GET", u, nil)
	assert.NotEqual(t, first, second)
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://Stream.Example.com:443/path", "https://stream.example.com/path"},
		{"http://stream.example.com:80/path", "http://stream.example.com/path"},
		{"http://stream.example.com:8080/path", "http://stream.example.com:8080/path"},
		{"HTTPS://stream.example.com", "https://stream.example.com/"},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, baseURL(u))
	}
}

func TestNormalizeParamsSortsByKey(t *testing.T) {
	// "-" sorts before "=", so sorting whole pairs would get this wrong
	assert.Equal(t, "a=2&a-b=1", NormalizeParams(map[string]string{"a-b": "1", "a": "2"}))
}
