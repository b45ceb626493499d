/*
Package chunk provides the chunk value type and the bounded FIFO buffer that
every stream side is built on.

A Chunk is an immutable unit of data: a copied byte slice, or an opaque value
in object mode. A Buffer is an ordered queue of chunks with byte accounting
and a high-water mark used for backpressure signaling. Ownership of a chunk
transfers on dequeue; no chunk is held by two buffers at once.
*/
package chunk
