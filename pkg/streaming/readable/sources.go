package readable

import (
	"context"
	"errors"
	"io"
	"sync"

	errs "github.com/vnykmshr/chunkflow/pkg/common/errors"
	"github.com/vnykmshr/chunkflow/pkg/streaming/chunk"
)

// Source represents an external chunk producer consumed by a readable
// stream. NextChunk is invoked only when the stream's buffer has room, one
// call at a time.
type Source interface {
	// NextChunk returns the next chunk and true, or a zero chunk and false
	// once the source is exhausted. A non-nil error is terminal for the
	// stream; the source is not retried.
	NextChunk(ctx context.Context) (chunk.Chunk, bool, error)

	// Close closes the source and releases resources.
	Close() error
}

// FromSource creates a readable stream fed by a pump goroutine that pulls
// from src whenever the stream's buffer is below its high-water mark. A
// source error destroys the stream with a SourceFault; source exhaustion
// pushes the end marker. The source is closed in every exit path.
func FromSource(src Source, cfg Config) *Stream {
	s := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	s.OnClose(cancel)

	go func() {
		defer cancel()
		defer func() { _ = src.Close() }()

		for {
			if !s.waitRoom() {
				return
			}

			c, ok, err := src.NextChunk(ctx)
			if err != nil {
				s.Destroy(errs.NewSourceFault(err))
				return
			}
			if !ok {
				_ = s.PushEnd()
				return
			}

			// Room was reserved above; the advisory return only reports
			// the post-push level.
			if _, perr := s.Push(c); perr != nil {
				return
			}
		}
	}()

	return s
}

// waitRoom blocks until the buffer is below the high-water mark. Returns
// false when the stream reached a terminal state.
func (s *Stream) waitRoom() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		switch s.state {
		case Ended, Errored, Destroyed:
			return false
		}
		if !s.buf.AboveHighWaterMark() {
			return true
		}
		s.room.Wait()
	}
}

// SliceSource produces a fixed sequence of chunks.
type SliceSource struct {
	mu     sync.Mutex
	chunks []chunk.Chunk
}

// NewSliceSource creates a source yielding the given chunks in order.
func NewSliceSource(chunks ...chunk.Chunk) *SliceSource {
	return &SliceSource{chunks: chunks}
}

// NewStringSource creates a source yielding one byte chunk per string.
func NewStringSource(payloads ...string) *SliceSource {
	chunks := make([]chunk.Chunk, len(payloads))
	for i, p := range payloads {
		chunks[i] = chunk.FromString(p)
	}
	return &SliceSource{chunks: chunks}
}

// NextChunk implements Source.
func (s *SliceSource) NextChunk(ctx context.Context) (chunk.Chunk, bool, error) {
	select {
	case <-ctx.Done():
		return chunk.Chunk{}, false, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.chunks) == 0 {
		return chunk.Chunk{}, false, nil
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, true, nil
}

// Close implements Source.
func (s *SliceSource) Close() error {
	return nil
}

// ReaderSource adapts an io.Reader into a chunk source, reading fixed-size
// chunks.
type ReaderSource struct {
	r         io.Reader
	chunkSize int
}

// NewReaderSource creates a source reading chunks of up to chunkSize bytes
// from r. A non-positive chunkSize defaults to 4KB.
func NewReaderSource(r io.Reader, chunkSize int) *ReaderSource {
	if chunkSize <= 0 {
		chunkSize = 4 * 1024
	}
	return &ReaderSource{r: r, chunkSize: chunkSize}
}

// NextChunk implements Source. Short reads yield short chunks; io.EOF maps
// to source exhaustion, not an error.
func (rs *ReaderSource) NextChunk(ctx context.Context) (chunk.Chunk, bool, error) {
	select {
	case <-ctx.Done():
		return chunk.Chunk{}, false, ctx.Err()
	default:
	}

	p := make([]byte, rs.chunkSize)
	n, err := rs.r.Read(p)
	if n > 0 {
		return chunk.FromBytes(p[:n]), true, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		// A zero-byte read without error is treated as exhausted rather
		// than spinning.
		return chunk.Chunk{}, false, nil
	}
	return chunk.Chunk{}, false, err
}

// Close implements Source.
func (rs *ReaderSource) Close() error {
	if c, ok := rs.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ChannelSource adapts a Go channel into a chunk source. Closing the
// channel signals exhaustion.
type ChannelSource struct {
	ch <-chan chunk.Chunk
}

// NewChannelSource creates a source receiving chunks from ch.
func NewChannelSource(ch <-chan chunk.Chunk) *ChannelSource {
	return &ChannelSource{ch: ch}
}

// NextChunk implements Source.
func (cs *ChannelSource) NextChunk(ctx context.Context) (chunk.Chunk, bool, error) {
	select {
	case c, ok := <-cs.ch:
		if !ok {
			return chunk.Chunk{}, false, nil
		}
		return c, true, nil
	case <-ctx.Done():
		return chunk.Chunk{}, false, ctx.Err()
	}
}

// Close implements Source.
func (cs *ChannelSource) Close() error {
	return nil
}
