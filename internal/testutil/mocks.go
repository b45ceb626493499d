package testutil

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vnykmshr/chunkflow/pkg/streaming/chunk"
)

// CollectSink is a chunk sink that records everything it accepts. It can
// simulate slow sinks, failing sinks, and sinks that hold acknowledgments
// until released, which is how backpressure tests keep a writable saturated.
type CollectSink struct {
	mu          sync.Mutex
	chunks      []chunk.Chunk
	buf         bytes.Buffer
	acceptCount int
	errorOnNth  int
	err         error
	acceptDelay time.Duration
	gate        chan struct{}
	closed      bool
}

// NewCollectSink creates a CollectSink.
func NewCollectSink() *CollectSink {
	return &CollectSink{}
}

// Accept implements the chunk sink contract.
func (cs *CollectSink) Accept(ctx context.Context, c chunk.Chunk) error {
	cs.mu.Lock()
	cs.acceptCount++
	n := cs.acceptCount
	delay := cs.acceptDelay
	gate := cs.gate
	cs.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.errorOnNth > 0 && n == cs.errorOnNth {
		if cs.err != nil {
			return cs.err
		}
		return errors.New("simulated sink error")
	}

	cs.chunks = append(cs.chunks, c)
	cs.buf.Write(c.Bytes())
	return nil
}

// Close implements the chunk sink contract.
func (cs *CollectSink) Close() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.closed = true
	return nil
}

// Closed returns true once Close has been called.
func (cs *CollectSink) Closed() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.closed
}

// String returns the concatenated byte payloads accepted so far.
func (cs *CollectSink) String() string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.buf.String()
}

// Chunks returns a copy of the accepted chunks in acceptance order.
func (cs *CollectSink) Chunks() []chunk.Chunk {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]chunk.Chunk, len(cs.chunks))
	copy(out, cs.chunks)
	return out
}

// AcceptCount returns the number of Accept calls, including failed ones.
func (cs *CollectSink) AcceptCount() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.acceptCount
}

// SetErrorOnNth makes the nth Accept call fail with err (or a default error
// when err is nil).
func (cs *CollectSink) SetErrorOnNth(n int, err error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.errorOnNth = n
	cs.err = err
}

// SetAcceptDelay makes each Accept take at least d.
func (cs *CollectSink) SetAcceptDelay(d time.Duration) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.acceptDelay = d
}

// HoldAccepts makes Accept block until ReleaseOne is called once per
// acknowledgment.
func (cs *CollectSink) HoldAccepts() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.gate = make(chan struct{})
}

// ReleaseOne lets one held Accept proceed.
func (cs *CollectSink) ReleaseOne() {
	cs.mu.Lock()
	gate := cs.gate
	cs.mu.Unlock()
	if gate != nil {
		gate <- struct{}{}
	}
}

// ReleaseAll lets every current and future held Accept proceed.
func (cs *CollectSink) ReleaseAll() {
	cs.mu.Lock()
	gate := cs.gate
	cs.gate = nil
	cs.mu.Unlock()
	if gate != nil {
		close(gate)
	}
}

// FailingSource is a chunk source that yields a fixed set of chunks and then
// fails instead of signaling end of stream.
type FailingSource struct {
	mu     sync.Mutex
	chunks []chunk.Chunk
	err    error
	closed bool
}

// NewFailingSource creates a source producing the given payloads before
// returning err.
func NewFailingSource(err error, payloads ...string) *FailingSource {
	fs := &FailingSource{err: err}
	for _, p := range payloads {
		fs.chunks = append(fs.chunks, chunk.FromString(p))
	}
	return fs
}

// NextChunk implements the chunk source contract.
func (fs *FailingSource) NextChunk(_ context.Context) (chunk.Chunk, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if len(fs.chunks) == 0 {
		return chunk.Chunk{}, false, fs.err
	}
	c := fs.chunks[0]
	fs.chunks = fs.chunks[1:]
	return c, true, nil
}

// Close implements the chunk source contract.
func (fs *FailingSource) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.closed = true
	return nil
}

// Closed returns true once Close has been called.
func (fs *FailingSource) Closed() bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.closed
}
