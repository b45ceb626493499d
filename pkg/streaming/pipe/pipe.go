package pipe

import (
	"sync"

	"github.com/vnykmshr/chunkflow/pkg/streaming/chunk"
)

// Reader is the producing end of a pipe: a readable stream or the readable
// side of a transform or duplex.
type Reader interface {
	// OnData registers a data handler, switching the stream into flowing
	// mode, and returns a function that removes the handler.
	OnData(fn func(chunk.Chunk)) func()

	// OnEnd registers a handler fired exactly once when the stream ends.
	OnEnd(fn func()) func()

	// OnError registers a handler fired once on a terminal error.
	OnError(fn func(error)) func()

	// Pause stops chunk emission until Resume. Idempotent.
	Pause()

	// Resume restarts chunk emission. Idempotent.
	Resume()

	// Destroy moves the stream to a terminal state, discarding its buffer.
	Destroy(err error)
}

// Writer is the consuming end of a pipe: a writable stream or the writable
// side of a transform or duplex.
type Writer interface {
	// Write enqueues a chunk; false is the backpressure signal.
	Write(c chunk.Chunk) (bool, error)

	// End signals that no further writes will occur.
	End() error

	// OnDrain registers a handler fired when the buffer falls back below
	// the high-water mark.
	OnDrain(fn func()) func()

	// OnFinish registers a handler fired exactly once when the stream
	// finishes.
	OnFinish(fn func()) func()

	// AboveHighWaterMark reports whether the buffer is at or above its
	// high-water mark.
	AboveHighWaterMark() bool

	// OnError registers a handler fired once on a terminal error.
	OnError(fn func(error)) func()

	// Destroy moves the stream to a terminal state, discarding its buffer.
	Destroy(err error)
}

// Stage is a stream usable in the middle of a chain: its writable side
// receives from the previous hop and its readable side feeds the next.
// Transform and duplex streams satisfy it.
type Stage interface {
	Reader
	Writer
}

// Handle is the wiring of one pipe: the handlers installed on the source
// and destination. It owns no data; destroying it (Unpipe) detaches the
// wiring without touching either stream's own state.
type Handle struct {
	src Reader
	dst Writer

	mu      sync.Mutex
	removes []func()
	done    bool
}

// Pipe wires src to dst: src is put into flowing mode, every chunk it emits
// is written to dst, a false Write return pauses src on the same tick, and
// dst's drain notification resumes it. When src ends, dst is ended. A
// terminal error on either end destroys the other end with the same error
// and tears the wiring down.
func Pipe(src Reader, dst Writer) *Handle {
	h := &Handle{src: src, dst: dst}

	// Data wiring: registration switches src into flowing mode. Pausing
	// inside the handler stops src before it emits the next chunk, keeping
	// the backpressure signal ordered with the chunk that raised it.
	h.add(src.OnData(func(c chunk.Chunk) {
		ok, err := dst.Write(c)
		if err != nil {
			h.teardown(err, src)
			return
		}
		if !ok {
			src.Pause()
			// The drain may have fired on the delivery goroutine between
			// the rejected write and the pause; re-checking the level here
			// closes that lost-wakeup window.
			if !dst.AboveHighWaterMark() {
				src.Resume()
			}
		}
	}))

	h.add(dst.OnDrain(func() {
		src.Resume()
	}))

	h.add(src.OnEnd(func() {
		h.detach()
		_ = dst.End()
	}))

	// Cross-forwarding: a fault on one end always reaches the other end's
	// error path before the wiring goes away. Registered last because a
	// stream that is already errored fires the handler during registration.
	h.add(src.OnError(func(err error) {
		h.teardown(err, dst)
	}))
	h.add(dst.OnError(func(err error) {
		h.teardown(err, src)
	}))

	// If a handler above already tore the pipe down mid-registration, the
	// handlers added after that point must not stay behind.
	h.mu.Lock()
	stale := h.done
	h.mu.Unlock()
	if stale {
		h.detach()
	}

	return h
}

// Unpipe detaches the wiring without altering either stream's state. Both
// streams remain independently usable. Idempotent.
func (h *Handle) Unpipe() {
	h.detach()
}

// Source returns the reader this handle was wired from.
func (h *Handle) Source() Reader {
	return h.src
}

// Destination returns the writer this handle was wired to.
func (h *Handle) Destination() Writer {
	return h.dst
}

// add records a remove function, or runs it immediately if the wiring is
// already detached.
func (h *Handle) add(remove func()) {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		remove()
		return
	}
	h.removes = append(h.removes, remove)
	h.mu.Unlock()
}

// detach removes all installed handlers once.
func (h *Handle) detach() {
	h.mu.Lock()
	removes := h.removes
	h.removes = nil
	h.done = true
	h.mu.Unlock()

	for _, remove := range removes {
		remove()
	}
}

// teardown detaches the wiring and forwards err to the other end. The
// destroy runs after detaching so the forwarded error does not loop back
// through this handle.
func (h *Handle) teardown(err error, other interface{ Destroy(error) }) {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	removes := h.removes
	h.removes = nil
	h.done = true
	h.mu.Unlock()

	for _, remove := range removes {
		remove()
	}
	other.Destroy(err)
}

// Chain wires src through the given stages into dst, one pipe per hop:
// src → stages[0] → … → stages[n-1] → dst. Every hop carries the identical
// per-pipe contract, so errors and completion propagate across the whole
// chain hop by hop.
func Chain(src Reader, dst Writer, stages ...Stage) *ChainHandle {
	ch := &ChainHandle{}

	prev := src
	for _, stage := range stages {
		ch.handles = append(ch.handles, Pipe(prev, stage))
		prev = stage
	}
	ch.handles = append(ch.handles, Pipe(prev, dst))

	return ch
}

// ChainHandle is the wiring of a multi-hop chain.
type ChainHandle struct {
	handles []*Handle
}

// Unpipe detaches every hop, leaving all streams independently usable.
func (ch *ChainHandle) Unpipe() {
	for _, h := range ch.handles {
		h.Unpipe()
	}
}

// Handles returns the per-hop handles, upstream first.
func (ch *ChainHandle) Handles() []*Handle {
	return ch.handles
}
