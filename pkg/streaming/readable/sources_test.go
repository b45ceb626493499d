package readable

import (
	"errors"
	"strings"
	"testing"

	"github.com/vnykmshr/chunkflow/internal/testutil"
	errs "github.com/vnykmshr/chunkflow/pkg/common/errors"
	"github.com/vnykmshr/chunkflow/pkg/streaming/chunk"
)

func TestFromSourceDeliversAll(t *testing.T) {
	src := NewStringSource("one", "two", "three")
	s := FromSource(src, DefaultConfig())

	col := &collector{}
	s.OnData(col.onData)
	s.OnEnd(col.onEnd)

	testutil.WaitUntil(t, func() bool { return col.endCount() == 1 }, "source exhausted")

	got := col.snapshot()
	testutil.AssertEqual(t, len(got), 3)
	testutil.AssertEqual(t, got[0], "one")
	testutil.AssertEqual(t, got[1], "two")
	testutil.AssertEqual(t, got[2], "three")
	testutil.AssertEqual(t, s.State(), Ended)
}

func TestFromSourceFault(t *testing.T) {
	cause := errors.New("disk gone")
	src := testutil.NewFailingSource(cause, "only")
	s := FromSource(src, DefaultConfig())

	col := &collector{}
	s.OnData(col.onData)
	s.OnError(col.onError)

	testutil.WaitUntil(t, func() bool { return col.errCount() == 1 }, "source fault surfaced")
	testutil.AssertEqual(t, s.State(), Errored)
	testutil.AssertEqual(t, errs.IsFault(s.Err()), true)
	testutil.AssertEqual(t, errors.Is(s.Err(), cause), true)

	testutil.WaitUntil(t, src.Closed, "source closed after fault")
}

func TestFromSourceRespectsHighWaterMark(t *testing.T) {
	payloads := make([]string, 20)
	for i := range payloads {
		payloads[i] = "xxxx" // 4 bytes each
	}
	src := NewStringSource(payloads...)

	// Paused consumer: the pump must stall at the high-water mark instead
	// of pulling the whole source into memory.
	s := FromSource(src, Config{HighWaterMark: 8})
	s.Pause()

	testutil.WaitUntil(t, func() bool { return s.BufferedBytes() >= 8 }, "pump filled to mark")
	testutil.AssertEqual(t, s.BufferedBytes() <= 12, true) // mark plus at most one in-flight chunk

	col := &collector{}
	s.OnData(col.onData)
	s.OnEnd(col.onEnd)
	s.Resume()

	testutil.WaitUntil(t, func() bool { return col.endCount() == 1 }, "all chunks flushed")
	testutil.AssertEqual(t, len(col.snapshot()), 20)
}

func TestFromSourceDestroyStopsPump(t *testing.T) {
	payloads := make([]string, 1000)
	for i := range payloads {
		payloads[i] = "data"
	}
	src := NewStringSource(payloads...)

	s := FromSource(src, Config{HighWaterMark: 4})
	s.Pause()

	testutil.WaitUntil(t, func() bool { return s.BufferedBytes() >= 4 }, "pump running")
	s.Destroy(nil)

	testutil.AssertEqual(t, s.State(), Destroyed)
	testutil.AssertEqual(t, s.BufferedChunks(), 0)
}

func TestReaderSource(t *testing.T) {
	rs := NewReaderSource(strings.NewReader("hello world"), 4)
	s := FromSource(rs, DefaultConfig())

	col := &collector{}
	s.OnData(col.onData)
	s.OnEnd(col.onEnd)

	testutil.WaitUntil(t, func() bool { return col.endCount() == 1 }, "reader drained")
	testutil.AssertEqual(t, strings.Join(col.snapshot(), ""), "hello world")
}

func TestChannelSource(t *testing.T) {
	ch := make(chan chunk.Chunk, 3)
	ch <- chunk.FromString("a")
	ch <- chunk.FromString("b")
	close(ch)

	s := FromSource(NewChannelSource(ch), DefaultConfig())

	col := &collector{}
	s.OnData(col.onData)
	s.OnEnd(col.onEnd)

	testutil.WaitUntil(t, func() bool { return col.endCount() == 1 }, "channel drained")
	got := col.snapshot()
	testutil.AssertEqual(t, len(got), 2)
	testutil.AssertEqual(t, got[0], "a")
	testutil.AssertEqual(t, got[1], "b")
}
