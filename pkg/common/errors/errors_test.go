package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestSourceFault(t *testing.T) {
	cause := stderrors.New("disk read failed")
	fault := NewSourceFault(cause)

	if !stderrors.Is(fault, cause) {
		t.Fatal("SourceFault should unwrap to its cause")
	}

	var sf *SourceFault
	if !stderrors.As(fault, &sf) {
		t.Fatal("expected errors.As to match *SourceFault")
	}
	if sf.Err != cause {
		t.Fatalf("got cause %v, want %v", sf.Err, cause)
	}
}

func TestSinkFault(t *testing.T) {
	cause := stderrors.New("connection reset")
	fault := NewSinkFault(cause)

	if !stderrors.Is(fault, cause) {
		t.Fatal("SinkFault should unwrap to its cause")
	}

	var sf *SinkFault
	if !stderrors.As(fault, &sf) {
		t.Fatal("expected errors.As to match *SinkFault")
	}
}

func TestIsProtocolViolation(t *testing.T) {
	violations := []error{
		ErrPushAfterEOF,
		ErrWriteAfterEnd,
		ErrStreamDestroyed,
		ErrBackpressureOverrun,
		fmt.Errorf("op failed: %w", ErrWriteAfterEnd),
	}
	for _, err := range violations {
		if !IsProtocolViolation(err) {
			t.Errorf("IsProtocolViolation(%v) = false, want true", err)
		}
	}

	nonViolations := []error{
		ErrStreamClosed,
		NewSourceFault(stderrors.New("io error")),
		stderrors.New("unrelated"),
		nil,
	}
	for _, err := range nonViolations {
		if IsProtocolViolation(err) {
			t.Errorf("IsProtocolViolation(%v) = true, want false", err)
		}
	}
}

func TestIsFault(t *testing.T) {
	if !IsFault(NewSourceFault(stderrors.New("x"))) {
		t.Error("source fault should be a fault")
	}
	if !IsFault(NewSinkFault(stderrors.New("x"))) {
		t.Error("sink fault should be a fault")
	}
	if !IsFault(fmt.Errorf("pipe: %w", NewSinkFault(stderrors.New("x")))) {
		t.Error("wrapped sink fault should be a fault")
	}
	if IsFault(ErrWriteAfterEnd) {
		t.Error("protocol violation is not a fault")
	}
	if IsFault(nil) {
		t.Error("nil is not a fault")
	}
}

func TestFaultMessages(t *testing.T) {
	src := NewSourceFault(stderrors.New("boom"))
	if src.Error() != "source fault: boom" {
		t.Fatalf("unexpected message: %q", src.Error())
	}

	sink := NewSinkFault(stderrors.New("boom"))
	if sink.Error() != "sink fault: boom" {
		t.Fatalf("unexpected message: %q", sink.Error())
	}
}
