package transform

import (
	"bytes"
	"context"
	"fmt"

	"github.com/vnykmshr/chunkflow/pkg/streaming/chunk"
)

// Example demonstrates a simple uppercasing transform.
func Example() {
	upper := New(func(_ context.Context, c chunk.Chunk, push func(chunk.Chunk)) error {
		push(chunk.FromBytes(bytes.ToUpper(c.Bytes())))
		return nil
	}, DefaultConfig())

	done := make(chan struct{})
	upper.OnData(func(c chunk.Chunk) {
		fmt.Println(string(c.Bytes()))
	})
	upper.OnEnd(func() { close(done) })

	_, _ = upper.Write(chunk.FromString("loud"))
	_, _ = upper.Write(chunk.FromString("noises"))
	_ = upper.End()

	<-done

	// Output:
	// LOUD
	// NOISES
}

// Example_fanOut demonstrates one input chunk producing several outputs.
func Example_fanOut() {
	split := New(func(_ context.Context, c chunk.Chunk, push func(chunk.Chunk)) error {
		for _, b := range c.Bytes() {
			push(chunk.FromBytes([]byte{b}))
		}
		return nil
	}, DefaultConfig())

	done := make(chan struct{})
	split.OnData(func(c chunk.Chunk) {
		fmt.Println(string(c.Bytes()))
	})
	split.OnEnd(func() { close(done) })

	_, _ = split.Write(chunk.FromString("abc"))
	_ = split.End()

	<-done

	// Output:
	// a
	// b
	// c
}
