package duplex

import (
	"sync"

	"github.com/vnykmshr/chunkflow/pkg/metrics"
	"github.com/vnykmshr/chunkflow/pkg/streaming/chunk"
	"github.com/vnykmshr/chunkflow/pkg/streaming/readable"
	"github.com/vnykmshr/chunkflow/pkg/streaming/writable"
)

// Config holds configuration for the two independent sides of a duplex
// stream. Each side keeps its own buffer, high-water mark, and state.
type Config struct {
	// Readable configures the inbound side.
	Readable readable.Config

	// Writable configures the outbound side.
	Writable writable.Config
}

// DefaultConfig returns a default configuration for both sides.
func DefaultConfig() Config {
	return Config{
		Readable: readable.DefaultConfig(),
		Writable: writable.DefaultConfig(),
	}
}

type errEntry struct {
	id int
	fn func(error)
}

type voidEntry struct {
	id int
	fn func()
}

// Stream is a duplex stream: one readable side and one writable side with
// no coupling between them. Backpressure on the outbound side never affects
// the inbound side and vice versa; the two flows are logically unrelated,
// as on a full-duplex connection.
//
// The inbound side is fed either by a Source given at construction or by
// Push. The outbound side delivers to the Sink given at construction.
type Stream struct {
	r *readable.Stream
	w *writable.Stream

	mu            sync.Mutex
	nextID        int
	err           error
	errFired      bool
	errorHandlers []errEntry
	closeFired    bool
	closesSeen    int
	closeHandlers []voidEntry
}

// New creates a duplex stream around a source and a sink. A nil source
// leaves the inbound side push-driven via Push and PushEnd.
func New(src readable.Source, sink writable.Sink, cfg Config) *Stream {
	s := &Stream{}

	if src != nil {
		s.r = readable.FromSource(src, cfg.Readable)
	} else {
		s.r = readable.New(cfg.Readable)
	}
	s.w = writable.New(sink, cfg.Writable)

	// Terminal events from either side funnel into the duplex-level
	// handlers: errors fire once, close fires once both sides are done.
	s.r.OnError(s.forwardError)
	s.w.OnError(s.forwardError)
	s.r.OnClose(s.sideClosed)
	s.w.OnClose(s.sideClosed)

	return s
}

// Readable returns the inbound side.
func (s *Stream) Readable() *readable.Stream {
	return s.r
}

// Writable returns the outbound side.
func (s *Stream) Writable() *writable.Stream {
	return s.w
}

// Push appends a chunk to the inbound buffer. Only meaningful for duplex
// streams built without a source.
func (s *Stream) Push(c chunk.Chunk) (bool, error) {
	return s.r.Push(c)
}

// PushEnd marks the inbound side as ended.
func (s *Stream) PushEnd() error {
	return s.r.PushEnd()
}

// Read removes and returns the oldest inbound chunk (pull mode).
func (s *Stream) Read() (chunk.Chunk, bool) {
	return s.r.Read()
}

// OnData registers an inbound data handler.
func (s *Stream) OnData(fn func(chunk.Chunk)) func() {
	return s.r.OnData(fn)
}

// OnEnd registers a handler fired exactly once when the inbound side ends.
func (s *Stream) OnEnd(fn func()) func() {
	return s.r.OnEnd(fn)
}

// Pause pauses the inbound side. The outbound side is unaffected.
func (s *Stream) Pause() {
	s.r.Pause()
}

// Resume resumes the inbound side. The outbound side is unaffected.
func (s *Stream) Resume() {
	s.r.Resume()
}

// Write enqueues a chunk for delivery to the sink. The boolean result is
// the outbound side's backpressure signal; the inbound side plays no part
// in it.
func (s *Stream) Write(c chunk.Chunk) (bool, error) {
	return s.w.Write(c)
}

// End signals that no further Write calls will occur.
func (s *Stream) End() error {
	return s.w.End()
}

// AboveHighWaterMark reports whether the outbound buffer is at or above its
// high-water mark.
func (s *Stream) AboveHighWaterMark() bool {
	return s.w.AboveHighWaterMark()
}

// OnDrain registers a handler on the outbound side's drain notification.
func (s *Stream) OnDrain(fn func()) func() {
	return s.w.OnDrain(fn)
}

// OnFinish registers a handler fired exactly once when the outbound side
// finishes.
func (s *Stream) OnFinish(fn func()) func() {
	return s.w.OnFinish(fn)
}

// OnError registers a handler fired at most once with the first terminal
// error from either side. Fired immediately if one already occurred.
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

// OnClose registers a handler fired exactly once after both sides have
// reached a terminal state. Fired immediately if they already have.
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

	return func() {
		s.mu.Lock()
		for i, e := range s.closeHandlers {
			if e.id == id {
				s.closeHandlers = append(s.closeHandlers[:i], s.closeHandlers[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}
}

// Destroy immediately moves both sides to a terminal state.
func (s *Stream) Destroy(err error) {
	s.r.Destroy(err)
	s.w.Destroy(err)
}

// Err returns the first terminal error observed on either side, or nil.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Probe returns a snapshot for the metrics reporter, covering both sides.
func (s *Stream) Probe() metrics.Probe {
	rp := s.r.Probe()
	wp := s.w.Probe()
	return metrics.Probe{
		BufferedBytes:  rp.BufferedBytes + wp.BufferedBytes,
		BufferedChunks: rp.BufferedChunks + wp.BufferedChunks,
	}
}

// forwardError records the first terminal error from either side and fires
// the duplex-level error handlers once.
func (s *Stream) forwardError(err error) {
	s.mu.Lock()
	if s.errFired {
		s.mu.Unlock()
		return
	}
	s.errFired = true
	s.err = err
	handlers := append([]errEntry(nil), s.errorHandlers...)
	s.mu.Unlock()

	for _, e := range handlers {
		e.fn(err)
	}
}

// sideClosed counts terminal sides; close fires once both are done.
func (s *Stream) sideClosed() {
	s.mu.Lock()
	s.closesSeen++
	if s.closesSeen < 2 || s.closeFired {
		s.mu.Unlock()
		return
	}
	s.closeFired = true
	handlers := append([]voidEntry(nil), s.closeHandlers...)
	s.mu.Unlock()

	for _, e := range handlers {
		e.fn()
	}
}
