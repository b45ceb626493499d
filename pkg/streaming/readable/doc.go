/*
Package readable implements the producing half of a chunk stream.

A Stream accepts chunks from a producer via Push and hands them to a
consumer in one of two modes:

Flowing mode delivers every buffered chunk asynchronously to registered
data handlers, in push order, on a single dispatcher goroutine. Registering
the first data handler on an idle stream switches it into flowing mode.

Paused mode accumulates chunks until the consumer pulls them with Read.
Pause and Resume toggle between the modes without dropping or duplicating
buffered chunks.

Backpressure is advisory on this side: Push returns false once the buffer
reaches its high-water mark, telling the producer to slow down. Producers
that must be throttled hard use FromSource, whose pump goroutine only pulls
from the underlying Source while the buffer has room, or set
MaxBufferedBytes to make overruns an error.

End of stream is always explicit: PushEnd marks that no more chunks will
arrive, and the end notification fires exactly once after the buffer has
fully drained. A zero-length chunk is ordinary data, never an end signal.

	src := readable.New(readable.DefaultConfig())

	remove := src.OnData(func(c chunk.Chunk) {
		fmt.Printf("got %q\n", c.Bytes())
	})
	defer remove()

	src.Push(chunk.FromString("hello"))
	src.PushEnd()
*/
package readable
