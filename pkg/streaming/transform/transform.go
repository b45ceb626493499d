package transform

import (
	"context"
	"sync"

	errs "github.com/vnykmshr/chunkflow/pkg/common/errors"
	"github.com/vnykmshr/chunkflow/pkg/metrics"
	"github.com/vnykmshr/chunkflow/pkg/streaming/chunk"
	"github.com/vnykmshr/chunkflow/pkg/streaming/readable"
)

// DefaultHighWaterMark is the default buffered-byte threshold per side for
// byte-mode streams.
const DefaultHighWaterMark = 16 * 1024

// DefaultObjectHighWaterMark is the default buffered-chunk threshold per
// side for object-mode streams.
const DefaultObjectHighWaterMark = 16

// Func transforms one input chunk into zero, one, or many output chunks,
// emitting each via push. It may block (asynchronous work); its return, not
// its invocation, gates acceptance of the next input chunk, so inputs are
// processed strictly in order, one at a time. A non-nil error is terminal
// for the whole transform.
type Func func(ctx context.Context, c chunk.Chunk, push func(chunk.Chunk)) error

// State represents the lifecycle state of the transform's writable side.
type State int32

const (
	// Idle means nothing has been written yet.
	Idle State = iota

	// Active means inputs are buffered or being transformed.
	Active

	// Ending means End was called and buffered inputs are still being
	// transformed.
	Ending

	// Finished means every accepted input was transformed and the readable
	// side received its end marker. Terminal.
	Finished

	// Errored means the transform function failed or the stream was
	// destroyed with an error. Terminal.
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

// Config holds configuration options for a transform stream.
type Config struct {
	// HighWaterMark is the buffered-byte threshold applied to each side.
	// Defaults to 16KB (16 chunks in object mode).
	HighWaterMark int

	// ObjectMode treats each chunk as one accounting unit regardless of its
	// byte length, on both sides.
	ObjectMode bool

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

// Stream is a transform stream: a writable front feeding a readable back
// through a transform function. Each input chunk accepted via Write is
// handed to the function on a dedicated goroutine; every chunk the function
// pushes appears on the readable side in order.
//
// Backpressure couples both sides: Write returns false while either side's
// buffer is at or above its high-water mark, so a slow downstream consumer
// propagates pressure upstream through the transform. The drain
// notification fires only once both sides are back below their marks.
type Stream struct {
	cfg Config
	fn  Func

	back *readable.Stream

	mu   sync.Mutex
	cond *sync.Cond // wakes the transform goroutine

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

// New creates a transform stream around fn and starts its transform
// goroutine.
func New(fn Func, cfg Config) *Stream {
	if cfg.HighWaterMark <= 0 {
		if cfg.ObjectMode {
			cfg.HighWaterMark = DefaultObjectHighWaterMark
		} else {
			cfg.HighWaterMark = DefaultHighWaterMark
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Stream{
		cfg: cfg,
		fn:  fn,
		back: readable.New(readable.Config{
			HighWaterMark: cfg.HighWaterMark,
			ObjectMode:    cfg.ObjectMode,
			Name:          cfg.Name,
			Metrics:       cfg.Metrics,
		}),
		buf:    chunk.NewBuffer(cfg.HighWaterMark),
		ctx:    ctx,
		cancel: cancel,
	}
	s.cond = sync.NewCond(&s.mu)

	// A consumer draining the readable side may clear the coupled
	// backpressure condition and unblock the transform goroutine.
	s.back.OnDrain(func() {
		s.mu.Lock()
		drains := s.drainEdgeLocked()
		s.cond.Signal()
		s.mu.Unlock()
		emitVoid(drains)
	})

	go s.transformLoop()
	return s
}

// Write enqueues an input chunk for transformation. It never blocks. The
// boolean result is false while either side's buffer is at or above its
// high-water mark; the caller must stop writing until the drain
// notification. A non-nil error means the chunk was rejected.
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

	if s.state == Idle {
		s.state = Active
	}

	s.buf.Enqueue(c)
	above := s.aboveLocked()
	if above {
		s.wasAbove = true
	}
	s.cond.Signal()
	s.mu.Unlock()

	return !above, nil
}

// End signals that no further Write calls will occur. Once every buffered
// input has been transformed, the readable side receives its end marker and
// the finish notification fires exactly once. End is idempotent.
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

// Read removes and returns the oldest transformed chunk (pull mode on the
// readable side).
func (s *Stream) Read() (chunk.Chunk, bool) {
	return s.back.Read()
}

// OnData registers a data handler on the readable side and returns a
// function that removes it. Registering the first consumer switches the
// readable side into flowing mode.
func (s *Stream) OnData(fn func(chunk.Chunk)) func() {
	return s.back.OnData(fn)
}

// OnEnd registers a handler fired exactly once when the readable side ends:
// after End was called, every input transformed, and every output consumed.
func (s *Stream) OnEnd(fn func()) func() {
	return s.back.OnEnd(fn)
}

// Pause pauses the readable side. Idempotent.
func (s *Stream) Pause() {
	s.back.Pause()
}

// Resume resumes the readable side. Idempotent.
func (s *Stream) Resume() {
	s.back.Resume()
}

// OnDrain registers a handler fired each time both sides fall back below
// their high-water marks after the coupled signal had been raised.
func (s *Stream) OnDrain(fn func()) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.drainHandlers = append(s.drainHandlers, voidEntry{id: id, fn: fn})
	s.mu.Unlock()

	return func() { s.removeVoid(&s.drainHandlers, id) }
}

// OnFinish registers a handler fired exactly once when the writable side
// finishes: End was called and every input was transformed. Fired
// immediately if already finished.
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

// OnError registers a handler fired once if the transform reaches a
// terminal error, from either side. Fired immediately if already errored.
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

// OnClose registers a handler fired exactly once when the transform reaches
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

// Destroy immediately moves both sides to a terminal state, discarding
// buffered inputs and outputs and canceling an in-flight transform. With a
// non-nil error the stream becomes Errored; with nil, Destroyed. Idempotent.
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

	s.back.Destroy(err)
	for _, e := range errors {
		e.fn(err)
	}
	emitVoid(closes)
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

// fail records a transform fault: terminal for both sides, buffered inputs
// discarded, the failed input not retried.
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

	s.back.Destroy(err)
	for _, e := range errors {
		e.fn(err)
	}
	emitVoid(closes)
}

// State returns the writable side's lifecycle state.
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

// BufferedBytes returns the accounted bytes buffered across both sides.
func (s *Stream) BufferedBytes() int {
	return s.buf.BufferedBytes() + s.back.BufferedBytes()
}

// AboveHighWaterMark returns true if either side is at or above its mark.
func (s *Stream) AboveHighWaterMark() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aboveLocked()
}

// Probe returns a snapshot for the metrics reporter, covering both sides.
func (s *Stream) Probe() metrics.Probe {
	return metrics.Probe{
		BufferedBytes:  s.buf.BufferedBytes() + s.back.BufferedBytes(),
		BufferedChunks: s.buf.Len() + s.back.BufferedChunks(),
	}
}

// aboveLocked reports the coupled backpressure condition. Caller must hold
// s.mu; the buffer types take their own leaf locks.
func (s *Stream) aboveLocked() bool {
	return s.buf.AboveHighWaterMark() || s.back.AboveHighWaterMark()
}

// drainEdgeLocked returns the drain handlers to fire if the coupled
// condition just cleared. Caller must hold s.mu.
func (s *Stream) drainEdgeLocked() []voidEntry {
	if !s.wasAbove || s.aboveLocked() {
		return nil
	}
	s.wasAbove = false
	return append([]voidEntry(nil), s.drainHandlers...)
}

// transformLoop is the transform goroutine. It takes one input at a time,
// runs the transform function to completion, and pushes its outputs on the
// readable side. It waits while the readable side is saturated, so a slow
// consumer stalls input processing instead of growing the output buffer.
func (s *Stream) transformLoop() {
	push := func(out chunk.Chunk) {
		// The readable side is below its mark when an input is taken; a
		// single input fanning out may overshoot, which the gate absorbs
		// before the next input.
		_, _ = s.back.Push(out)
	}

	s.mu.Lock()
	for {
		if s.state == Errored || s.state == Destroyed {
			s.mu.Unlock()
			return
		}

		if s.buf.Len() == 0 {
			// Input buffer empty while Ending: the writable side finishes
			// and the readable side gets its end marker.
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

				_ = s.back.PushEnd()
				emitVoid(finishes)
				emitVoid(closes)
				return
			}
			s.cond.Wait()
			continue
		}

		// Coupled backpressure: a saturated readable side stalls input
		// processing until a consumer drains it.
		if s.back.AboveHighWaterMark() {
			s.cond.Wait()
			continue
		}

		c, _ := s.buf.Dequeue()
		s.mu.Unlock()

		if err := s.fn(s.ctx, c, push); err != nil {
			s.fail(err)
			return
		}

		s.mu.Lock()
		drains := s.drainEdgeLocked()
		s.mu.Unlock()
		emitVoid(drains)

		s.mu.Lock()
	}
}

func emitVoid(entries []voidEntry) {
	for _, e := range entries {
		e.fn()
	}
}
