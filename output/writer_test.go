package output

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterStdout(t *testing.T) {
	var out bytes.Buffer
	w, err := NewWriter("", "none", &out)
	require.NoError(t, err)

	require.NoError(t, w.Write([]byte(`{"a":1}`)))
	require.NoError(t, w.Write([]byte(`{"b":2}`)))
	assert.Empty(t, out.String(), "buffered until flushed")
	require.NoError(t, w.Flush())
	assert.Equal(t, "{\"a\":1}\n{\"b\":2}\n", out.String())
	assert.Equal(t, int64(2), w.Count())

	require.NoError(t, w.Close())
	assert.Error(t, w.Write([]byte("late")))
	assert.NoError(t, w.Close(), "closing twice is harmless")
}

func TestWriterFlushesOnTicker(t *testing.T) {
	var out safeBuffer
	w, err := NewWriter("", "", &out)
	require.NoError(t, err)
	clock := clockwork.NewFakeClock()
	w.Clock = clock
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, w.Write([]byte("x")))
	clock.Advance(FlushInterval)
	assert.Eventually(t, func() bool { return out.String() == "x\n" }, time.Second, 5*time.Millisecond)
}

func TestWriterCompressedFiles(t *testing.T) {
	for _, compression := range []string{"gzip", "zstd"} {
		t.Run(compression, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "records."+compression)
			w, err := NewWriter(path, compression, nil)
			require.NoError(t, err)
			require.NoError(t, w.Start())
			require.NoError(t, w.Write([]byte(`{"a":1}`)))
			require.NoError(t, w.Write([]byte(`{"b":2}`)))
			require.NoError(t, w.Stop())

			f, err := os.Open(path)
			require.NoError(t, err)
			defer f.Close()

			var r io.Reader
			switch compression {
			case "gzip":
				gz, err := gzip.NewReader(f)
				require.NoError(t, err)
				r = gz
			case "zstd":
				dec, err := zstd.NewReader(f)
				require.NoError(t, err)
				defer dec.Close()
				r = dec
			}
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, "{\"a\":1}\n{\"b\":2}\n", string(got))
		})
	}
}

func TestWriterAppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	w, err := NewWriter(path, "none", nil)
	require.NoError(t, err)
	require.NoError(t, w.Write([]byte("new")))
	require.NoError(t, w.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew\n", string(got))
}

func TestNewWriterErrors(t *testing.T) {
	_, err := NewWriter("", "lz4", io.Discard)
	assert.Error(t, err)
	_, err = NewWriter(filepath.Join(t.TempDir(), "missing", "out.jsonl"), "none", nil)
	assert.Error(t, err)
}

type safeBuffer struct {
	mux sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mux.Lock()
	defer b.mux.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mux.Lock()
	defer b.mux.Unlock()
	return b.buf.String()
}
