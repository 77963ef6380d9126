package stream

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrMalformedResponse means the server's response couldn't be parsed as
	// HTTP. It is handled like a dropped connection.
	ErrMalformedResponse = errors.New("malformed HTTP response")
	// ErrClosed is returned by operations on a stream that was closed by its
	// consumer.
	ErrClosed = errors.New("stream closed")
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("stream already started")
)

// ErrorKind classifies errors returned by an item handler.
type ErrorKind int

const (
	// KindRecoverable errors are logged and the stream moves on to the next
	// record. Any error not explicitly marked fatal is recoverable.
	KindRecoverable ErrorKind = iota
	// KindFatal errors end processing of the current connection and are
	// reported by Wait.
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindRecoverable:
		return "recoverable"
	case KindFatal:
		return "fatal"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ItemError is an error raised while handling a single record.
type ItemError struct {
	Kind ErrorKind
	Err  error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s item error: %v", e.Kind, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Fatal marks err so that returning it from an item handler stops the
// stream instead of being swallowed.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &ItemError{Kind: KindFatal, Err: err}
}

// Recoverable marks err as an ordinary handler error. Returning a bare error
// has the same effect; this exists for symmetry with Fatal.
func Recoverable(err error) error {
	if err == nil {
		return nil
	}
	return &ItemError{Kind: KindRecoverable, Err: err}
}

// KindOf reports the kind of an item handler error.
func KindOf(err error) ErrorKind {
	var ie *ItemError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return KindRecoverable
}

// IsFatal is shorthand for KindOf(err) == KindFatal.
func IsFatal(err error) bool {
	return err != nil && KindOf(err) == KindFatal
}
