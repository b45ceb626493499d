/*
Package transform implements a stream stage that rewrites chunks in flight.

A Stream is a writable front feeding a readable back through a Func. Inputs
accepted via Write are transformed strictly in order, one at a time: the
function's completion, not its invocation, gates the next input. Each chunk
the function pushes appears on the readable side in order, so a stage may
emit zero, one, or many outputs per input.

Backpressure couples both sides. Write returns false while either the input
buffer or the output buffer is at or above its high-water mark, and the
transform goroutine stops taking inputs while the output side is saturated.
A slow consumer downstream therefore propagates pressure upstream through
the stage without any buffer growing unbounded.

	upper := transform.New(func(_ context.Context, c chunk.Chunk, push func(chunk.Chunk)) error {
		push(chunk.FromBytes(bytes.ToUpper(c.Bytes())))
		return nil
	}, transform.DefaultConfig())

A transform satisfies both the reader and writer contracts of
pkg/streaming/pipe, so stages chain between a readable and a writable
without special cases.
*/
package transform
