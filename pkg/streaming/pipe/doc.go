/*
Package pipe wires readable streams to writable streams.

Pipe puts the source into flowing mode and writes every emitted chunk to
the destination. The destination's backpressure signal is honored as a hard
signal: a false Write return pauses the source before the next chunk is
emitted, and the destination's drain notification resumes it, so no buffer
grows unbounded between the two.

Completion and errors propagate across the wiring. When the source ends,
the destination is ended. A terminal error on either end destroys the other
end with the same error and tears the wiring down, so neither side keeps
running against a dead peer.

Unpipe detaches the wiring without touching either stream's own state;
both remain independently usable afterward.

Chain builds multi-hop pipelines through transform (or duplex) stages by
applying the same per-hop wiring at every step:

	handle := pipe.Chain(src, dst, upperCase, gzip)
	defer handle.Unpipe()
*/
package pipe
