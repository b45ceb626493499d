package chunk

import "sync"

// Buffer is a bounded, ordered queue of chunks with byte-length accounting.
// Chunks are dequeued in the exact order they were enqueued. The high-water
// mark is a target threshold, not a hard cap: Enqueue always succeeds, and
// callers consult AboveHighWaterMark to decide whether to slow down.
//
// A Buffer is owned exclusively by one stream side; it is safe for
// concurrent use by that stream's producer and its delivery goroutine.
type Buffer struct {
	mu            sync.Mutex
	chunks        []Chunk
	head          int
	bytes         int
	highWaterMark int
}

// NewBuffer creates a buffer with the given high-water mark in accounted
// bytes (chunk count in object mode).
func NewBuffer(highWaterMark int) *Buffer {
	return &Buffer{highWaterMark: highWaterMark}
}

// Enqueue appends c and increases the buffered byte total.
func (b *Buffer) Enqueue(c Chunk) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.chunks = append(b.chunks, c)
	b.bytes += c.Len()
}

// Dequeue removes and returns the oldest chunk. The second return value is
// false if the buffer is empty.
func (b *Buffer) Dequeue() (Chunk, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dequeueLocked()
}

func (b *Buffer) dequeueLocked() (Chunk, bool) {
	if b.head >= len(b.chunks) {
		return Chunk{}, false
	}

	c := b.chunks[b.head]
	b.chunks[b.head] = Chunk{} // release payload reference
	b.head++
	b.bytes -= c.Len()

	// Reclaim the consumed prefix once it dominates the backing slice.
	if b.head > 32 && b.head*2 >= len(b.chunks) {
		n := copy(b.chunks, b.chunks[b.head:])
		for i := n; i < len(b.chunks); i++ {
			b.chunks[i] = Chunk{}
		}
		b.chunks = b.chunks[:n]
		b.head = 0
	}

	return c, true
}

// Peek returns the oldest chunk without removing it. The second return
// value is false if the buffer is empty. The chunk stays accounted until
// Dequeue, so a chunk in delivery still counts toward the buffered total.
func (b *Buffer) Peek() (Chunk, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.head >= len(b.chunks) {
		return Chunk{}, false
	}
	return b.chunks[b.head], true
}

// Len returns the number of buffered chunks.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks) - b.head
}

// BufferedBytes returns the total accounted bytes currently buffered.
func (b *Buffer) BufferedBytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bytes
}

// AboveHighWaterMark returns true if the buffered total is at or above the
// configured high-water mark.
func (b *Buffer) AboveHighWaterMark() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bytes >= b.highWaterMark
}

// HighWaterMark returns the configured threshold.
func (b *Buffer) HighWaterMark() int {
	return b.highWaterMark
}

// Discard drops all buffered chunks and returns the number of bytes
// discarded. Used on error paths where pending data is documented to be
// lost.
func (b *Buffer) Discard() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := b.bytes
	b.chunks = nil
	b.head = 0
	b.bytes = 0
	return dropped
}
