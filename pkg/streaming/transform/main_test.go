package transform

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain enables goroutine leak detection for all tests in this package.
// This catches transform goroutines that outlive their stream.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
