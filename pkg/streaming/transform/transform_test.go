package transform

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/vnykmshr/chunkflow/internal/testutil"
	errs "github.com/vnykmshr/chunkflow/pkg/common/errors"
	"github.com/vnykmshr/chunkflow/pkg/streaming/chunk"
)

// upper is the canonical test transform: one uppercased output per input.
func upper(_ context.Context, c chunk.Chunk, push func(chunk.Chunk)) error {
	push(chunk.FromBytes(bytes.ToUpper(c.Bytes())))
	return nil
}

type outputs struct {
	mu     sync.Mutex
	chunks []string
	ends   int
	errs   []error
}

func (o *outputs) onData(c chunk.Chunk) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.chunks = append(o.chunks, string(c.Bytes()))
}

func (o *outputs) onEnd() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ends++
}

func (o *outputs) onError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, err)
}

func (o *outputs) joined() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return strings.Join(o.chunks, "")
}

func (o *outputs) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.chunks)
}

func (o *outputs) endCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ends
}

func (o *outputs) errCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.errs)
}

func TestUppercaseTransform(t *testing.T) {
	tr := New(upper, DefaultConfig())
	out := &outputs{}
	tr.OnData(out.onData)
	tr.OnEnd(out.onEnd)

	for _, p := range []string{"he", "llo"} {
		ok, err := tr.Write(chunk.FromString(p))
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, ok, true)
	}
	testutil.AssertNoError(t, tr.End())

	testutil.WaitUntil(t, func() bool { return out.endCount() == 1 }, "readable side ended")
	testutil.AssertEqual(t, out.joined(), "HELLO")
	testutil.AssertEqual(t, tr.State(), Finished)
}

func TestFanOutAndFilter(t *testing.T) {
	// One input chunk may yield zero or many outputs.
	split := func(_ context.Context, c chunk.Chunk, push func(chunk.Chunk)) error {
		for _, field := range strings.Fields(string(c.Bytes())) {
			push(chunk.FromString(field))
		}
		return nil
	}

	tr := New(split, DefaultConfig())
	out := &outputs{}
	tr.OnData(out.onData)
	tr.OnEnd(out.onEnd)

	_, _ = tr.Write(chunk.FromString("a b c"))
	_, _ = tr.Write(chunk.FromString("   ")) // zero outputs
	_, _ = tr.Write(chunk.FromString("d"))
	testutil.AssertNoError(t, tr.End())

	testutil.WaitUntil(t, func() bool { return out.endCount() == 1 }, "readable side ended")
	testutil.AssertEqual(t, out.count(), 4)
	testutil.AssertEqual(t, out.joined(), "abcd")
}

func TestInOrderOneAtATime(t *testing.T) {
	// The function's completion gates the next input, so concurrent writes
	// never interleave processing.
	var mu sync.Mutex
	inFlight := 0
	maxInFlight := 0
	var order []string

	slow := func(_ context.Context, c chunk.Chunk, push func(chunk.Chunk)) error {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		order = append(order, string(c.Bytes()))
		mu.Unlock()

		push(c)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	}

	tr := New(slow, DefaultConfig())
	out := &outputs{}
	tr.OnData(out.onData)
	tr.OnEnd(out.onEnd)

	inputs := []string{"1", "2", "3", "4", "5", "6", "7", "8"}
	for _, p := range inputs {
		_, err := tr.Write(chunk.FromString(p))
		testutil.AssertNoError(t, err)
	}
	testutil.AssertNoError(t, tr.End())

	testutil.WaitUntil(t, func() bool { return out.endCount() == 1 }, "readable side ended")

	mu.Lock()
	defer mu.Unlock()
	testutil.AssertEqual(t, maxInFlight, 1)
	testutil.AssertEqual(t, strings.Join(order, ""), "12345678")
	testutil.AssertEqual(t, out.joined(), "12345678")
}

func TestCoupledBackpressure(t *testing.T) {
	tr := New(upper, Config{HighWaterMark: 4})
	defer tr.Destroy(nil)

	// No consumer attached: outputs pile up on the readable side until it
	// saturates, which must flip the writable side's signal too.
	var lastOK bool
	for i := 0; i < 4; i++ {
		ok, err := tr.Write(chunk.FromString("abc"))
		testutil.AssertNoError(t, err)
		lastOK = ok
	}
	testutil.AssertEqual(t, lastOK, false)

	testutil.WaitUntil(t, tr.AboveHighWaterMark, "coupled signal raised")

	// The transform goroutine stops taking inputs while the readable side
	// is saturated; remaining inputs stay buffered on the write side.
	testutil.WaitUntil(t, func() bool {
		c, ok := tr.Read()
		return ok && string(c.Bytes()) == "ABC"
	}, "first output available")
}

func TestCoupledDrain(t *testing.T) {
	tr := New(upper, Config{HighWaterMark: 4})
	defer tr.Destroy(nil)

	drains := 0
	var mu sync.Mutex
	tr.OnDrain(func() {
		mu.Lock()
		drains++
		mu.Unlock()
	})

	// Saturate: with nothing consuming, outputs accumulate past the mark.
	for i := 0; i < 3; i++ {
		_, err := tr.Write(chunk.FromString("ab"))
		testutil.AssertNoError(t, err)
	}
	testutil.WaitUntil(t, tr.AboveHighWaterMark, "saturated")

	// Draining the readable side below its mark clears the coupled
	// condition; there is exactly one crossing, so exactly one drain.
	testutil.WaitUntil(t, func() bool {
		tr.Read()
		return tr.BufferedBytes() == 0
	}, "both sides drained")

	mu.Lock()
	got := drains
	mu.Unlock()
	testutil.AssertEqual(t, got, 1)
}

func TestTransformError(t *testing.T) {
	cause := errors.New("bad chunk")
	failing := func(_ context.Context, c chunk.Chunk, push func(chunk.Chunk)) error {
		if string(c.Bytes()) == "boom" {
			return cause
		}
		push(c)
		return nil
	}

	tr := New(failing, DefaultConfig())
	out := &outputs{}
	tr.OnData(out.onData)
	tr.OnError(out.onError)

	_, _ = tr.Write(chunk.FromString("ok"))
	// The failure discards undelivered outputs, so let the first one land.
	testutil.WaitUntil(t, func() bool { return out.count() == 1 }, "first output delivered")

	_, _ = tr.Write(chunk.FromString("boom"))
	_, _ = tr.Write(chunk.FromString("never"))

	testutil.WaitUntil(t, func() bool { return out.errCount() == 1 }, "error notification")
	testutil.AssertEqual(t, tr.State(), Errored)
	testutil.AssertEqual(t, tr.Err(), cause)

	// Buffered inputs were discarded; the chunk after the failure is never
	// transformed.
	testutil.AssertEqual(t, out.joined(), "ok")

	_, err := tr.Write(chunk.FromString("late"))
	testutil.AssertEqual(t, err, cause)
}

func TestWriteAfterEnd(t *testing.T) {
	tr := New(upper, DefaultConfig())
	defer tr.Destroy(nil)

	testutil.AssertNoError(t, tr.End())
	_, err := tr.Write(chunk.FromString("late"))
	testutil.AssertEqual(t, errors.Is(err, errs.ErrWriteAfterEnd), true)

	// End is idempotent.
	testutil.AssertNoError(t, tr.End())
}

func TestDestroyPropagatesToBothSides(t *testing.T) {
	tr := New(upper, DefaultConfig())
	out := &outputs{}
	tr.OnData(out.onData)
	tr.OnError(out.onError)

	readableErrs := 0
	var mu sync.Mutex
	// The readable side's own error path fires too, so a piped consumer
	// observes the teardown.
	tr.back.OnError(func(error) {
		mu.Lock()
		readableErrs++
		mu.Unlock()
	})

	cause := errors.New("torn down")
	tr.Destroy(cause)

	testutil.AssertEqual(t, tr.State(), Errored)
	testutil.WaitUntil(t, func() bool { return out.errCount() == 1 }, "writable-side error")
	testutil.WaitUntil(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return readableErrs == 1
	}, "readable-side error")

	_, err := tr.Write(chunk.FromString("late"))
	testutil.AssertEqual(t, err, cause)

	// Idempotent.
	tr.Destroy(errors.New("second"))
	testutil.AssertEqual(t, out.errCount(), 1)
}

func TestFinishThenEnd(t *testing.T) {
	tr := New(upper, DefaultConfig())
	finishes := 0
	var mu sync.Mutex
	tr.OnFinish(func() {
		mu.Lock()
		finishes++
		mu.Unlock()
	})
	out := &outputs{}
	tr.OnData(out.onData)
	tr.OnEnd(out.onEnd)

	_, _ = tr.Write(chunk.FromString("x"))
	testutil.AssertNoError(t, tr.End())

	// Finish covers the writable side (all inputs transformed); end covers
	// the readable side (all outputs consumed). Both fire exactly once.
	testutil.WaitUntil(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return finishes == 1
	}, "finish notification")
	testutil.WaitUntil(t, func() bool { return out.endCount() == 1 }, "end notification")
	testutil.AssertEqual(t, out.joined(), "X")

	// A late OnFinish registration fires immediately.
	fired := 0
	tr.OnFinish(func() { fired++ })
	testutil.AssertEqual(t, fired, 1)
}
