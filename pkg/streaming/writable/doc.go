/*
Package writable implements the consuming half of a chunk stream.

A Stream buffers chunks accepted via Write and delivers them to a Sink on a
dedicated goroutine, in strict FIFO order, one outstanding Accept at a time.
Write itself never blocks.

The boolean returned by Write is the authoritative backpressure signal:
false means the buffer is at or above its high-water mark and the caller
must stop writing until the drain notification. OnDrain fires exactly once
each time the buffer falls back below the mark. Callers that ignore the
signal grow the buffer without bound, unless MaxBufferedBytes turns
overruns into errors.

End signals that no further writes will occur; once every buffered chunk
has reached the sink the stream finishes and OnFinish fires exactly once.
A sink fault is terminal: queued chunks are discarded and the failed chunk
is not retried.

	dst := writable.New(writable.NewWriterSink(f), writable.DefaultConfig())

	if ok, err := dst.Write(chunk.FromString("hello")); err != nil {
		return err
	} else if !ok {
		// wait for OnDrain before writing more
	}
	dst.End()
*/
package writable
