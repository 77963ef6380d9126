package debug

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebugServiceServesVars(t *testing.T) {
	s := &DebugService{Addr: "127.0.0.1:0"}
	calls := 0
	s.Publish("streams", Func(func() any {
		calls++
		return map[string]string{"tweets": "streaming"}
	}))
	require.NoError(t, s.Start())
	defer s.Stop()

	resp, err := http.Get("http://" + s.ListenAddr() + "/debug/vars")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"tweets": "streaming"`)
	assert.Contains(t, string(body), `"memstats"`)
	assert.Equal(t, 1, calls)

	resp, err = http.Get("http://" + s.ListenAddr() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "/debug/pprof/")
}

func TestDebugServicePublishTwicePanics(t *testing.T) {
	s := &DebugService{}
	s.Publish("x", 1)
	assert.Panics(t, func() { s.Publish("x", 2) })
}

func TestListenNearSkipsBusyPort(t *testing.T) {
	first, err := listenNear("127.0.0.1:0")
	require.NoError(t, err)
	defer first.Close()

	second, err := listenNear(first.Addr().String())
	if err != nil {
		t.Skipf("no free port next to %s: %v", first.Addr(), err)
	}
	defer second.Close()
	assert.NotEqual(t, first.Addr().String(), second.Addr().String())
}
