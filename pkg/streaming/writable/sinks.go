package writable

import (
	"context"
	"io"
	"sync"

	"github.com/vnykmshr/chunkflow/pkg/streaming/chunk"
)

// Sink represents an external chunk consumer fed by a writable stream.
// Accept is invoked one chunk at a time; the next call happens only after
// the previous one returned.
type Sink interface {
	// Accept delivers one chunk. Returning a non-nil error is terminal for
	// the stream; the failed chunk is not retried.
	Accept(ctx context.Context, c chunk.Chunk) error

	// Close closes the sink and releases resources. Called once when the
	// stream finishes or is destroyed.
	Close() error
}

// WriterSink adapts an io.Writer into a chunk sink. Object-mode chunks are
// skipped, as they carry no byte payload.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink writing each chunk's bytes to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Accept implements Sink.
func (ws *WriterSink) Accept(_ context.Context, c chunk.Chunk) error {
	if c.IsObject() {
		return nil
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	_, err := ws.w.Write(c.Bytes())
	return err
}

// Close implements Sink, closing the underlying writer if it is a Closer.
func (ws *WriterSink) Close() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if c, ok := ws.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ChannelSink adapts a Go channel into a chunk sink. Accept blocks until the
// receiver takes the chunk or the delivery context is canceled.
type ChannelSink struct {
	ch       chan<- chunk.Chunk
	closeCh  bool
	closeMu  sync.Mutex
	isClosed bool
}

// NewChannelSink creates a sink sending chunks to ch. If closeOnFinish is
// true the channel is closed when the sink is closed, signaling receivers
// that no more chunks will arrive.
func NewChannelSink(ch chan<- chunk.Chunk, closeOnFinish bool) *ChannelSink {
	return &ChannelSink{ch: ch, closeCh: closeOnFinish}
}

// Accept implements Sink.
func (cs *ChannelSink) Accept(ctx context.Context, c chunk.Chunk) error {
	select {
	case cs.ch <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements Sink.
func (cs *ChannelSink) Close() error {
	cs.closeMu.Lock()
	defer cs.closeMu.Unlock()
	if cs.closeCh && !cs.isClosed {
		cs.isClosed = true
		close(cs.ch)
	}
	return nil
}

// DiscardSink accepts and drops every chunk, counting what passed through.
// Useful for draining a pipeline whose output is not needed.
type DiscardSink struct {
	mu     sync.Mutex
	chunks int
	bytes  int
}

// NewDiscardSink creates a DiscardSink.
func NewDiscardSink() *DiscardSink {
	return &DiscardSink{}
}

// Accept implements Sink.
func (ds *DiscardSink) Accept(_ context.Context, c chunk.Chunk) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.chunks++
	ds.bytes += c.Len()
	return nil
}

// Close implements Sink.
func (ds *DiscardSink) Close() error {
	return nil
}

// Chunks returns the number of chunks discarded so far.
func (ds *DiscardSink) Chunks() int {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.chunks
}

// Bytes returns the accounted bytes discarded so far.
func (ds *DiscardSink) Bytes() int {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.bytes
}
