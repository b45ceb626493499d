package readable

import (
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

// State represents the lifecycle state of a readable stream.
type State int32

const (
	// Idle means no consumer is attached and no mode has been chosen.
	Idle State = iota

	// Flowing means buffered chunks are handed to data handlers as soon as
	// they are available.
	Flowing

	// Paused means chunks accumulate until Read is called or the stream is
	// resumed.
	Paused

	// Ended means the end-of-stream marker was pushed and the buffer has
	// fully drained. Terminal.
	Ended

	// Errored means the stream hit a terminal error. Buffered chunks were
	// discarded.
	Errored

	// Destroyed means the stream was destroyed without an error. Terminal.
	Destroyed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Flowing:
		return "flowing"
	case Paused:
		return "paused"
	case Ended:
		return "ended"
	case Errored:
		return "errored"
	case Destroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Config holds configuration options for a readable stream.
type Config struct {
	// HighWaterMark is the buffered-byte threshold above which Push returns
	// false. Defaults to 16KB (16 chunks in object mode).
	HighWaterMark int

	// ObjectMode treats each chunk as one accounting unit regardless of its
	// byte length.
	ObjectMode bool

	// MaxBufferedBytes is a hard cap on buffered bytes. Push fails with
	// ErrBackpressureOverrun once a producer would exceed it. 0 disables
	// the cap.
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

type dataEntry struct {
	id int
	fn func(chunk.Chunk)
}

type voidEntry struct {
	id int
	fn func()
}

type errEntry struct {
	id int
	fn func(error)
}

// Stream is a readable chunk stream. Producers push chunks (and eventually
// an explicit end marker) into its buffer; consumers either register data
// handlers (flowing mode) or call Read (paused mode).
//
// All control methods are non-blocking. Data handlers run on a single
// dispatcher goroutine in registration order, so chunks are observed in
// exactly the order they were pushed.
type Stream struct {
	cfg Config

	mu   sync.Mutex
	cond *sync.Cond // wakes the dispatcher
	room *sync.Cond // wakes producers waiting for buffer room

	buf      *chunk.Buffer
	state    State
	eof      bool
	err      error
	wasAbove bool

	nextID        int
	dataHandlers  []dataEntry
	endHandlers   []voidEntry
	drainHandlers []voidEntry
	errorHandlers []errEntry
	closeHandlers []voidEntry

	dispatching bool
	endFired    bool
	errFired    bool
	closeFired  bool
}

// New creates a readable stream with the given configuration.
func New(cfg Config) *Stream {
	if cfg.HighWaterMark <= 0 {
		if cfg.ObjectMode {
			cfg.HighWaterMark = DefaultObjectHighWaterMark
		} else {
			cfg.HighWaterMark = DefaultHighWaterMark
		}
	}

	s := &Stream{
		cfg: cfg,
		buf: chunk.NewBuffer(cfg.HighWaterMark),
	}
	s.cond = sync.NewCond(&s.mu)
	s.room = sync.NewCond(&s.mu)
	return s
}

// Push appends a chunk to the internal buffer. The boolean result is an
// advisory backpressure signal: false means the buffer is at or above its
// high-water mark and the producer should slow down. A non-nil error means
// the chunk was not accepted: pushing after PushEnd, after destroy, or past
// the configured hard cap.
func (s *Stream) Push(c chunk.Chunk) (bool, error) {
	s.mu.Lock()

	switch s.state {
	case Errored:
		err := s.err
		s.mu.Unlock()
		return false, err
	case Destroyed:
		s.mu.Unlock()
		return false, errs.ErrStreamDestroyed
	case Ended:
		s.mu.Unlock()
		return false, errs.ErrPushAfterEOF
	}

	if s.eof {
		s.mu.Unlock()
		return false, errs.ErrPushAfterEOF
	}

	if s.cfg.MaxBufferedBytes > 0 && s.buf.BufferedBytes()+c.Len() > s.cfg.MaxBufferedBytes {
		s.mu.Unlock()
		return false, errs.ErrBackpressureOverrun
	}

	s.buf.Enqueue(c)
	above := s.buf.AboveHighWaterMark()
	if above && !s.wasAbove {
		s.wasAbove = true
		if s.metricsOn() {
			s.cfg.Metrics.BackpressureEvents.WithLabelValues(metrics.SideReadable, s.cfg.Name).Inc()
		}
	}
	s.cond.Signal()
	s.mu.Unlock()

	if s.metricsOn() {
		s.cfg.Metrics.ChunksPushed.WithLabelValues(s.cfg.Name).Inc()
		s.cfg.Metrics.BytesPushed.WithLabelValues(s.cfg.Name).Add(float64(c.Len()))
	}

	return !above, nil
}

// PushEnd marks that no more chunks will arrive. Once the buffer fully
// drains the stream transitions to Ended and fires its end notification
// exactly once. Calling PushEnd again is a no-op.
func (s *Stream) PushEnd() error {
	s.mu.Lock()

	switch s.state {
	case Errored:
		err := s.err
		s.mu.Unlock()
		return err
	case Destroyed:
		s.mu.Unlock()
		return errs.ErrStreamDestroyed
	case Ended:
		s.mu.Unlock()
		return nil
	}

	if s.eof {
		s.mu.Unlock()
		return nil
	}

	s.eof = true
	s.cond.Signal()

	// In flowing mode the dispatcher owns the ended transition. Otherwise
	// the stream ends here if nothing is buffered.
	var ends []voidEntry
	var closes []voidEntry
	if s.state != Flowing && s.buf.Len() == 0 {
		ends, closes = s.markEndedLocked()
	}
	s.mu.Unlock()

	emitVoid(ends)
	emitVoid(closes)
	return nil
}

// markEndedLocked transitions to Ended and returns the handlers to fire.
// Caller must hold s.mu.
func (s *Stream) markEndedLocked() (ends, closes []voidEntry) {
	s.state = Ended
	s.cond.Broadcast()
	s.room.Broadcast()
	if !s.endFired {
		s.endFired = true
		ends = append(ends, s.endHandlers...)
	}
	if !s.closeFired {
		s.closeFired = true
		closes = append(closes, s.closeHandlers...)
	}
	return ends, closes
}

// Read removes and returns the oldest buffered chunk (pull mode). The
// second return value is false when the buffer is currently empty, which
// does not necessarily mean the stream has ended.
func (s *Stream) Read() (chunk.Chunk, bool) {
	s.mu.Lock()

	if s.state == Errored || s.state == Destroyed {
		s.mu.Unlock()
		return chunk.Chunk{}, false
	}

	c, ok := s.buf.Dequeue()
	if !ok {
		s.mu.Unlock()
		return chunk.Chunk{}, false
	}

	drains := s.drainEdgeLocked()
	s.room.Signal()

	var ends, closes []voidEntry
	if s.eof && s.buf.Len() == 0 && s.state != Flowing {
		ends, closes = s.markEndedLocked()
	}
	s.mu.Unlock()

	if s.metricsOn() {
		s.cfg.Metrics.ChunksDelivered.WithLabelValues(s.cfg.Name).Inc()
		s.cfg.Metrics.BytesDelivered.WithLabelValues(s.cfg.Name).Add(float64(c.Len()))
	}

	emitVoid(drains)
	emitVoid(ends)
	emitVoid(closes)
	return c, true
}

// drainEdgeLocked returns the drain handlers to fire if the buffer just
// crossed back below the high-water mark. Caller must hold s.mu.
func (s *Stream) drainEdgeLocked() []voidEntry {
	if !s.wasAbove || s.buf.AboveHighWaterMark() {
		return nil
	}
	s.wasAbove = false
	if s.metricsOn() {
		s.cfg.Metrics.DrainEvents.WithLabelValues(metrics.SideReadable, s.cfg.Name).Inc()
	}
	return append([]voidEntry(nil), s.drainHandlers...)
}

// Pause switches the stream into paused mode. Idempotent; buffered chunks
// are retained and delivered after Resume or via Read. Pausing an idle
// stream takes effect too: a consumer registered afterwards does not start
// flowing until an explicit Resume.
func (s *Stream) Pause() {
	s.mu.Lock()
	if s.state == Flowing || s.state == Idle {
		s.state = Paused
	}
	s.mu.Unlock()
}

// Resume switches the stream into flowing mode. Idempotent. Chunks buffered
// while paused are delivered in order; nothing is dropped or duplicated.
func (s *Stream) Resume() {
	s.mu.Lock()
	if s.state == Paused || s.state == Idle {
		s.state = Flowing
		s.ensureDispatcherLocked()
		s.cond.Signal()
	}
	s.mu.Unlock()
}

// OnData registers a data handler and returns a function that removes it.
// Registering the first consumer on an idle stream switches it into flowing
// mode; this is the documented mode transition, not a side effect.
func (s *Stream) OnData(fn func(chunk.Chunk)) func() {
	s.mu.Lock()

	if s.state == Ended || s.state == Errored || s.state == Destroyed {
		s.mu.Unlock()
		return func() {}
	}

	id := s.nextID
	s.nextID++
	s.dataHandlers = append(s.dataHandlers, dataEntry{id: id, fn: fn})

	if s.state == Idle {
		s.state = Flowing
	}
	if s.state == Flowing {
		s.ensureDispatcherLocked()
		s.cond.Signal()
	}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		for i, e := range s.dataHandlers {
			if e.id == id {
				s.dataHandlers = append(s.dataHandlers[:i], s.dataHandlers[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}
}

// OnEnd registers a handler fired exactly once when the stream ends. If the
// stream has already ended the handler is invoked immediately.
func (s *Stream) OnEnd(fn func()) func() {
	s.mu.Lock()
	if s.endFired {
		s.mu.Unlock()
		fn()
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.endHandlers = append(s.endHandlers, voidEntry{id: id, fn: fn})
	s.mu.Unlock()

	return func() { s.removeVoid(&s.endHandlers, id) }
}

// OnDrain registers a handler fired each time the buffer falls back below
// the high-water mark after having been at or above it.
func (s *Stream) OnDrain(fn func()) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.drainHandlers = append(s.drainHandlers, voidEntry{id: id, fn: fn})
	s.mu.Unlock()

	return func() { s.removeVoid(&s.drainHandlers, id) }
}

// OnError registers a handler fired once if the stream reaches a terminal
// error. If the stream has already errored the handler is invoked
// immediately with the stored error.
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

// Destroy immediately moves the stream to a terminal state, discarding any
// buffered chunks. With a non-nil error the stream becomes Errored and the
// error handlers fire once; with nil it becomes Destroyed. Idempotent.
func (s *Stream) Destroy(err error) {
	s.mu.Lock()
	if s.state == Errored || s.state == Destroyed {
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
	s.cond.Broadcast()
	s.room.Broadcast()

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
	s.mu.Unlock()

	if err != nil && s.metricsOn() {
		s.cfg.Metrics.StreamErrors.WithLabelValues(metrics.SideReadable, s.cfg.Name).Inc()
	}
	for _, e := range errors {
		e.fn(err)
	}
	emitVoid(closes)
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

// ensureDispatcherLocked starts the dispatcher goroutine if it is not
// already running. Caller must hold s.mu.
func (s *Stream) ensureDispatcherLocked() {
	if s.dispatching {
		return
	}
	s.dispatching = true
	go s.dispatch()
}

// dispatch is the single delivery goroutine for flowing mode. It hands
// buffered chunks to data handlers in order, one at a time, and owns the
// ended transition while the stream is flowing. Pause is honored between
// chunks, so a pause triggered from within a data handler stops delivery
// before the next chunk.
func (s *Stream) dispatch() {
	s.mu.Lock()
	for {
		for s.state == Paused || (s.state == Flowing && s.buf.Len() == 0 && !s.eof) {
			s.cond.Wait()
		}

		if s.state == Ended || s.state == Errored || s.state == Destroyed {
			s.dispatching = false
			s.mu.Unlock()
			return
		}

		if c, ok := s.buf.Dequeue(); ok {
			drains := s.drainEdgeLocked()
			s.room.Signal()
			handlers := append([]dataEntry(nil), s.dataHandlers...)
			s.mu.Unlock()

			for _, h := range handlers {
				h.fn(c)
			}
			if s.metricsOn() {
				s.cfg.Metrics.ChunksDelivered.WithLabelValues(s.cfg.Name).Inc()
				s.cfg.Metrics.BytesDelivered.WithLabelValues(s.cfg.Name).Add(float64(c.Len()))
			}
			emitVoid(drains)

			s.mu.Lock()
			continue
		}

		// Buffer empty with EOF pushed: the stream ends here.
		if s.eof {
			ends, closes := s.markEndedLocked()
			s.dispatching = false
			s.mu.Unlock()

			emitVoid(ends)
			emitVoid(closes)
			return
		}
	}
}

func emitVoid(entries []voidEntry) {
	for _, e := range entries {
		e.fn()
	}
}
