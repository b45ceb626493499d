package errors

import (
	"errors"
	"fmt"
)

// Common error types used across the chunkflow library

var (
	// ErrStreamClosed indicates that an operation was attempted on a stream
	// that has already ended or finished
	ErrStreamClosed = errors.New("stream is closed")

	// ErrStreamDestroyed indicates that an operation was attempted on a
	// destroyed stream
	ErrStreamDestroyed = errors.New("stream is destroyed")

	// ErrPushAfterEOF indicates a push was attempted after the end-of-stream
	// marker was already pushed
	ErrPushAfterEOF = errors.New("push after end of stream")

	// ErrWriteAfterEnd indicates a write was attempted after End was called
	ErrWriteAfterEnd = errors.New("write after end")

	// ErrBackpressureOverrun indicates a producer kept writing past the
	// configured hard buffer cap
	ErrBackpressureOverrun = errors.New("backpressure overrun: buffer cap exceeded")

	// ErrInvalidConfiguration indicates invalid configuration parameters
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// SourceFault wraps an error from an external chunk source. It is terminal
// for the readable stream that observed it.
type SourceFault struct {
	Err error
}

func (f *SourceFault) Error() string {
	return fmt.Sprintf("source fault: %v", f.Err)
}

func (f *SourceFault) Unwrap() error {
	return f.Err
}

// NewSourceFault wraps err as a SourceFault.
func NewSourceFault(err error) error {
	return &SourceFault{Err: err}
}

// SinkFault wraps an error from an external chunk sink. It is terminal for
// the writable stream that observed it.
type SinkFault struct {
	Err error
}

func (f *SinkFault) Error() string {
	return fmt.Sprintf("sink fault: %v", f.Err)
}

func (f *SinkFault) Unwrap() error {
	return f.Err
}

// NewSinkFault wraps err as a SinkFault.
func NewSinkFault(err error) error {
	return &SinkFault{Err: err}
}

// IsProtocolViolation returns true if the error indicates a caller violated
// the stream state machine rather than an external I/O fault
func IsProtocolViolation(err error) bool {
	return errors.Is(err, ErrPushAfterEOF) ||
		errors.Is(err, ErrWriteAfterEnd) ||
		errors.Is(err, ErrStreamDestroyed) ||
		errors.Is(err, ErrBackpressureOverrun)
}

// IsFault returns true if the error originated from an external source or sink
func IsFault(err error) bool {
	var srcFault *SourceFault
	var sinkFault *SinkFault
	return errors.As(err, &srcFault) || errors.As(err, &sinkFault)
}
