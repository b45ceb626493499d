/*
Package chunkflow provides chunked data streaming with backpressure control.

It moves byte (or object) chunks from a source to one or more sinks through
optional transformation stages without holding the whole payload in memory,
while preventing a fast producer from overrunning a slow consumer.

Streaming (pkg/streaming):
  - chunk: chunk values and bounded FIFO buffers with byte accounting
  - readable: push/pull chunk production with flowing and paused modes
  - writable: buffered chunk delivery to a sink with drain notifications
  - transform: a writable front that feeds a readable back through a function
  - duplex: independent readable and writable sides for bidirectional endpoints
  - pipe: pipeline wiring with backpressure, error and completion propagation
  - redisio: Redis-list backed chunk sources and sinks

Observability (pkg/metrics):
  - Prometheus counters and gauges for chunks, bytes and backpressure events
  - cron-scheduled reporter that samples stream buffer state

Example usage:

	import (
		"github.com/vnykmshr/chunkflow/pkg/streaming/chunk"
		"github.com/vnykmshr/chunkflow/pkg/streaming/readable"
		"github.com/vnykmshr/chunkflow/pkg/streaming/writable"
		"github.com/vnykmshr/chunkflow/pkg/streaming/pipe"
	)

	src := readable.New(readable.DefaultConfig())
	dst := writable.New(writable.NewWriterSink(out), writable.DefaultConfig())

	handle := pipe.Pipe(src, dst)
	defer handle.Unpipe()

	src.Push(chunk.FromString("hello"))
	src.PushEnd()
*/
package chunkflow
