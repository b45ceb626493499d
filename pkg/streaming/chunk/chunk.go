package chunk

// Chunk is a discrete unit of data moving through a stream. A chunk either
// carries an immutable byte payload or, in object mode, an opaque value.
//
// Byte chunks are copied on construction so the caller may reuse its buffer.
// A zero-length byte chunk is legal and carries no end-of-stream meaning;
// end of stream is always signaled explicitly.
type Chunk struct {
	data   []byte
	value  interface{}
	object bool
}

// FromBytes creates a byte chunk, copying p.
func FromBytes(p []byte) Chunk {
	data := make([]byte, len(p))
	copy(data, p)
	return Chunk{data: data}
}

// FromString creates a byte chunk from s.
func FromString(s string) Chunk {
	return Chunk{data: []byte(s)}
}

// FromObject creates an object-mode chunk wrapping v. Object chunks account
// as one unit regardless of the size of v.
func FromObject(v interface{}) Chunk {
	return Chunk{value: v, object: true}
}

// Bytes returns the chunk's byte payload. The returned slice must not be
// modified. Returns nil for object-mode chunks.
func (c Chunk) Bytes() []byte {
	return c.data
}

// Value returns the object-mode payload, or nil for byte chunks.
func (c Chunk) Value() interface{} {
	return c.value
}

// IsObject returns true if this is an object-mode chunk.
func (c Chunk) IsObject() bool {
	return c.object
}

// Len returns the accounted length of the chunk: the byte length for byte
// chunks, or 1 for object-mode chunks.
func (c Chunk) Len() int {
	if c.object {
		return 1
	}
	return len(c.data)
}
