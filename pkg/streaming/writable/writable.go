package writable

import (
	"context"
	"sync"

	errs "github.com/vnykmshr/chunkflow/pkg/common/errors"
	"github.com/vnykmshr/chunkflow/pkg/metrics"
	"github.com/vnykmshr/chunkflow/pkg/streaming/chunk"
)

// DefaultHighWaterMark is the default buffered-byte threshold for byte-mode
// streams.
const DefaultHighWaterMark = 16 * 1024

// DefaultObjectHighWaterMark is the default buffered-chunk threshold for
// object-mode streams.
const DefaultObjectHighWaterMark = 16

// State represents the lifecycle state of a writable stream.
type State int32

const (
	// Idle means nothing has been written yet.
	Idle State = iota

	// Active means chunks are buffered or being delivered to the sink.
	Active

	// Ending means End was called and buffered chunks are still draining.
	Ending

	// Finished means End was called and every buffered chunk reached the
	// sink. Terminal.
	Finished

	// Errored means the sink faulted or the stream was destroyed with an
	// error. Queued chunks were discarded. Terminal.
	Errored

	// Destroyed means the stream was destroyed without an error. Terminal.
	Destroyed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Ending:
		return "ending"
	case Finished:
		return "finished"
	case Errored:
		return "errored"
	case Destroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Config holds configuration options for a writable stream.
type Config struct {
	// HighWaterMark is the buffered-byte threshold at which Write returns
	// false. Defaults to 16KB (16 chunks in object mode).
	HighWaterMark int

	// ObjectMode treats each chunk as one accounting unit regardless of its
	// byte length.
	ObjectMode bool

	// MaxBufferedBytes is a hard cap on buffered bytes. Write fails with
	// ErrBackpressureOverrun once a caller would exceed it. 0 disables the
	// cap.
	MaxBufferedBytes int

	// Name labels this stream in metrics. Metrics are skipped when empty.
	Name string

	// Metrics is the registry to update. Nil disables collection.
	Metrics *metrics.Registry
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		HighWaterMark: DefaultHighWaterMark,
	}
}

type voidEntry struct {
	id int
	fn func()
}

type errEntry struct {
	id int
	fn func(error)
}

// Stream is a writable chunk stream. Write buffers chunks and returns
// immediately; a dedicated delivery goroutine hands them to the sink in
// strict FIFO order, one at a time, waiting for each acknowledgment before
// starting the next.
//
// The boolean returned by Write is the authoritative backpressure signal:
// callers that ignore a false return risk unbounded memory growth (or an
// overrun error if MaxBufferedBytes is set).
type Stream struct {
	cfg  Config
	sink Sink

	mu   sync.Mutex
	cond *sync.Cond // wakes the delivery goroutine

	buf      *chunk.Buffer
	state    State
	err      error
	wasAbove bool

	ctx    context.Context
	cancel context.CancelFunc

	nextID        int
	drainHandlers []voidEntry
	finishHandler []voidEntry
	errorHandlers []errEntry
	closeHandlers []voidEntry

	finishFired bool
	errFired    bool
	closeFired  bool
}

// New creates a writable stream delivering to sink and starts its delivery
// goroutine.
func New(sink Sink, cfg Config) *Stream {
	if cfg.HighWaterMark <= 0 {
		if cfg.ObjectMode {
			cfg.HighWaterMark = DefaultObjectHighWaterMark
		} else {
			cfg.HighWaterMark = DefaultHighWaterMark
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Stream{
		cfg:    cfg,
		sink:   sink,
		buf:    chunk.NewBuffer(cfg.HighWaterMark),
		ctx:    ctx,
		cancel: cancel,
	}
	s.cond = sync.NewCond(&s.mu)

	go s.deliverLoop()
	return s
}

// Write enqueues a chunk for delivery. It never blocks. The boolean result
// is false once the buffer is at or above the high-water mark; the caller
// must stop writing until the drain notification. A non-nil error means
// the chunk was rejected: writing after End, after a terminal state, or
// past the configured hard cap.
func (s *Stream) Write(c chunk.Chunk) (bool, error) {
	s.mu.Lock()

	switch s.state {
	case Ending, Finished:
		s.mu.Unlock()
		return false, errs.ErrWriteAfterEnd
	case Errored:
		err := s.err
		s.mu.Unlock()
		return false, err
	case Destroyed:
		s.mu.Unlock()
		return false, errs.ErrStreamDestroyed
	}

	if s.cfg.MaxBufferedBytes > 0 && s.buf.BufferedBytes()+c.Len() > s.cfg.MaxBufferedBytes {
		s.mu.Unlock()
		return false, errs.ErrBackpressureOverrun
	}

	if s.state == Idle {
		s.state = Active
	}

	s.buf.Enqueue(c)
	above := s.buf.AboveHighWaterMark()
	if above && !s.wasAbove {
		s.wasAbove = true
		if s.metricsOn() {
			s.cfg.Metrics.BackpressureEvents.WithLabelValues(metrics.SideWritable, s.cfg.Name).Inc()
		}
	}
	s.cond.Signal()
	s.mu.Unlock()

	return !above, nil
}

// End signals that no further Write calls will occur. Once the buffer fully
// drains to the sink the stream transitions to Finished and fires its
// finish notification exactly once. End is idempotent.
func (s *Stream) End() error {
	s.mu.Lock()
	switch s.state {
	case Ending, Finished:
		s.mu.Unlock()
		return nil
	case Errored:
		err := s.err
		s.mu.Unlock()
		return err
	case Destroyed:
		s.mu.Unlock()
		return errs.ErrStreamDestroyed
	}

	s.state = Ending
	s.cond.Signal()
	s.mu.Unlock()
	return nil
}

// OnDrain registers a handler fired exactly once each time the buffer
// falls back below the high-water mark after having been at or above it.
// The notification follows the sink acknowledgment that caused the
// crossing.
func (s *Stream) OnDrain(fn func()) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.drainHandlers = append(s.drainHandlers, voidEntry{id: id, fn: fn})
	s.mu.Unlock()

	return func() { s.removeVoid(&s.drainHandlers, id) }
}

// OnFinish registers a handler fired exactly once when the stream finishes.
// Fired immediately if the stream has already finished.
func (s *Stream) OnFinish(fn func()) func() {
	s.mu.Lock()
	if s.finishFired {
		s.mu.Unlock()
		fn()
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.finishHandler = append(s.finishHandler, voidEntry{id: id, fn: fn})
	s.mu.Unlock()

	return func() { s.removeVoid(&s.finishHandler, id) }
}

// OnError registers a handler fired once if the stream reaches a terminal
// error. Fired immediately with the stored error if already errored.
func (s *Stream) OnError(fn func(error)) func() {
	s.mu.Lock()
	if s.errFired {
		err := s.err
		s.mu.Unlock()
		fn(err)
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.errorHandlers = append(s.errorHandlers, errEntry{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		for i, e := range s.errorHandlers {
			if e.id == id {
				s.errorHandlers = append(s.errorHandlers[:i], s.errorHandlers[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}
}

// OnClose registers a handler fired exactly once when the stream reaches
// any terminal state. Fired immediately if already terminal.
func (s *Stream) OnClose(fn func()) func() {
	s.mu.Lock()
	if s.closeFired {
		s.mu.Unlock()
		fn()
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.closeHandlers = append(s.closeHandlers, voidEntry{id: id, fn: fn})
	s.mu.Unlock()

	return func() { s.removeVoid(&s.closeHandlers, id) }
}

func (s *Stream) removeVoid(list *[]voidEntry, id int) {
	s.mu.Lock()
	for i, e := range *list {
		if e.id == id {
			*list = append((*list)[:i], (*list)[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
}

// Destroy immediately moves the stream to a terminal state, discarding
// queued-but-undelivered chunks and canceling any in-flight sink delivery.
// With a non-nil error the stream becomes Errored; with nil, Destroyed.
// Idempotent.
func (s *Stream) Destroy(err error) {
	s.mu.Lock()
	if s.state == Errored || s.state == Destroyed || s.state == Finished {
		s.mu.Unlock()
		return
	}

	s.err = err
	if err != nil {
		s.state = Errored
	} else {
		s.state = Destroyed
	}
	s.buf.Discard()
	s.cancel()
	s.cond.Broadcast()

	errors, closes := s.terminalHandlersLocked(err)
	s.mu.Unlock()

	_ = s.sink.Close()
	s.fireTerminal(err, errors, closes)
}

// terminalHandlersLocked collects the error/close handlers to fire for a
// terminal transition. Caller must hold s.mu.
func (s *Stream) terminalHandlersLocked(err error) ([]errEntry, []voidEntry) {
	var errors []errEntry
	if err != nil && !s.errFired {
		s.errFired = true
		errors = append(errors, s.errorHandlers...)
	}
	var closes []voidEntry
	if !s.closeFired {
		s.closeFired = true
		closes = append(closes, s.closeHandlers...)
	}
	return errors, closes
}

func (s *Stream) fireTerminal(err error, errors []errEntry, closes []voidEntry) {
	if err != nil && s.metricsOn() {
		s.cfg.Metrics.StreamErrors.WithLabelValues(metrics.SideWritable, s.cfg.Name).Inc()
	}
	for _, e := range errors {
		e.fn(err)
	}
	for _, e := range closes {
		e.fn()
	}
}

// fail records a sink fault: terminal, queued chunks discarded, the failed
// chunk is not retried.
func (s *Stream) fail(err error) {
	s.mu.Lock()
	if s.state == Errored || s.state == Destroyed || s.state == Finished {
		s.mu.Unlock()
		return
	}

	s.state = Errored
	s.err = err
	s.buf.Discard()
	s.cancel()
	s.cond.Broadcast()

	errors, closes := s.terminalHandlersLocked(err)
	s.mu.Unlock()

	_ = s.sink.Close()
	s.fireTerminal(err, errors, closes)
}

// State returns the current lifecycle state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the terminal error, or nil.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// BufferedBytes returns the accounted bytes currently buffered.
func (s *Stream) BufferedBytes() int {
	return s.buf.BufferedBytes()
}

// BufferedChunks returns the number of chunks currently buffered.
func (s *Stream) BufferedChunks() int {
	return s.buf.Len()
}

// AboveHighWaterMark returns true if the buffer is at or above its
// high-water mark.
func (s *Stream) AboveHighWaterMark() bool {
	return s.buf.AboveHighWaterMark()
}

// Probe returns a snapshot for the metrics reporter.
func (s *Stream) Probe() metrics.Probe {
	return metrics.Probe{
		BufferedBytes:  s.buf.BufferedBytes(),
		BufferedChunks: s.buf.Len(),
	}
}

func (s *Stream) metricsOn() bool {
	return s.cfg.Metrics != nil && s.cfg.Name != ""
}

// deliverLoop is the delivery goroutine. It hands one chunk at a time to
// the sink and waits for the acknowledgment before taking the next, so the
// sink never observes chunk k+1 before chunk k is fully accepted. A chunk
// stays accounted as buffered until its acknowledgment, which keeps the
// backpressure signal raised while a delivery is in flight.
func (s *Stream) deliverLoop() {
	s.mu.Lock()
	for {
		for (s.state == Idle || s.state == Active) && s.buf.Len() == 0 {
			s.cond.Wait()
		}

		if s.state == Errored || s.state == Destroyed {
			s.mu.Unlock()
			return
		}

		if c, ok := s.buf.Peek(); ok {
			s.mu.Unlock()

			if err := s.sink.Accept(s.ctx, c); err != nil {
				s.fail(errs.NewSinkFault(err))
				return
			}

			if s.metricsOn() {
				s.cfg.Metrics.ChunksDelivered.WithLabelValues(s.cfg.Name).Inc()
				s.cfg.Metrics.BytesDelivered.WithLabelValues(s.cfg.Name).Add(float64(c.Len()))
			}

			s.mu.Lock()
			// A destroy during the delivery already discarded the buffer.
			if s.state == Errored || s.state == Destroyed {
				s.mu.Unlock()
				return
			}
			_, _ = s.buf.Dequeue()
			crossed := s.wasAbove && !s.buf.AboveHighWaterMark()
			var drains []voidEntry
			if crossed {
				s.wasAbove = false
				drains = append(drains, s.drainHandlers...)
			}
			s.mu.Unlock()

			if crossed {
				if s.metricsOn() {
					s.cfg.Metrics.DrainEvents.WithLabelValues(metrics.SideWritable, s.cfg.Name).Inc()
				}
				for _, e := range drains {
					e.fn()
				}
			}

			s.mu.Lock()
			continue
		}

		// Buffer empty while Ending: the stream finishes here.
		if s.state == Ending {
			s.state = Finished
			var finishes []voidEntry
			if !s.finishFired {
				s.finishFired = true
				finishes = append(finishes, s.finishHandler...)
			}
			var closes []voidEntry
			if !s.closeFired {
				s.closeFired = true
				closes = append(closes, s.closeHandlers...)
			}
			s.mu.Unlock()

			_ = s.sink.Close()
			for _, e := range finishes {
				e.fn()
			}
			for _, e := range closes {
				e.fn()
			}
			return
		}
	}
}
