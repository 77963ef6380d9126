package output

import (
	"bufio"
	"io"
	"os"
	"sync"
	"time"

	"github.com/facebookgo/startstop"
	"github.com/jonboulle/clockwork"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/honeycombio/firehose/logger"
)

// FlushInterval is how often buffered output is pushed to its destination.
var FlushInterval = time.Second

type flusher interface {
	Flush() error
}

// Writer appends newline-terminated records to stdout or a file, optionally
// compressed. Writes are buffered and flushed every FlushInterval and on Stop.
type Writer struct {
	Clock  clockwork.Clock
	Logger logger.Logger

	mux   sync.Mutex
	buf   *bufio.Writer
	comp  io.WriteCloser
	file  *os.File
	count int64

	done chan struct{}
	wg   sync.WaitGroup

	startstop.Starter
	startstop.Stopper
}

// NewWriter opens the destination named by path, or uses stdout when path is
// empty. compression is one of none, gzip or zstd.
func NewWriter(path, compression string, stdout io.Writer) (*Writer, error) {
	w := &Writer{}
	var dest io.Writer = stdout
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, errors.Wrapf(err, "opening output file %s", path)
		}
		w.file = f
		dest = f
	}

	switch compression {
	case "", "none":
	case "gzip":
		w.comp = gzip.NewWriter(dest)
	case "zstd":
		enc, err := zstd.NewWriter(dest,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(2)),
		)
		if err != nil {
			w.closeFile()
			return nil, errors.Wrap(err, "creating zstd encoder")
		}
		w.comp = enc
	default:
		w.closeFile()
		return nil, errors.Errorf("unknown compression %q", compression)
	}
	if w.comp != nil {
		dest = w.comp
	}
	w.buf = bufio.NewWriter(dest)
	return w, nil
}

func (w *Writer) Start() error {
	if w.Clock == nil {
		w.Clock = clockwork.NewRealClock()
	}
	if w.Logger == nil {
		w.Logger = &logger.NullLogger{}
	}
	w.done = make(chan struct{})
	ticker := w.Clock.NewTicker(FlushInterval)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-w.done:
				return
			case <-ticker.Chan():
				if err := w.Flush(); err != nil {
					w.Logger.Error().WithField("error", err.Error()).Logf("failed to flush output")
				}
			}
		}
	}()
	return nil
}

// Stop flushes and closes the output. stdout itself is left open.
func (w *Writer) Stop() error {
	if w.done != nil {
		close(w.done)
		w.wg.Wait()
		w.done = nil
	}
	return w.Close()
}

// Write appends one record and a newline.
func (w *Writer) Write(record []byte) error {
	w.mux.Lock()
	defer w.mux.Unlock()
	if w.buf == nil {
		return errors.New("output is closed")
	}
	if _, err := w.buf.Write(record); err != nil {
		return errors.Wrap(err, "writing record")
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return errors.Wrap(err, "writing record")
	}
	w.count++
	return nil
}

// Count is the number of records written.
func (w *Writer) Count() int64 {
	w.mux.Lock()
	defer w.mux.Unlock()
	return w.count
}

// Flush pushes buffered records through the compressor to the destination.
func (w *Writer) Flush() error {
	w.mux.Lock()
	defer w.mux.Unlock()
	return w.flush()
}

func (w *Writer) flush() error {
	if w.buf == nil {
		return nil
	}
	if err := w.buf.Flush(); err != nil {
		return errors.Wrap(err, "flushing output")
	}
	if f, ok := w.comp.(flusher); ok {
		if err := f.Flush(); err != nil {
			return errors.Wrap(err, "flushing compressor")
		}
	}
	return nil
}

// Close flushes everything, finishes the compressed stream and closes the
// output file.
func (w *Writer) Close() error {
	w.mux.Lock()
	defer w.mux.Unlock()
	if w.buf == nil {
		return nil
	}
	err := w.flush()
	w.buf = nil
	if w.comp != nil {
		if cerr := w.comp.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "closing compressor")
		}
	}
	if cerr := w.closeFile(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (w *Writer) closeFile() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return errors.Wrap(err, "closing output file")
}
