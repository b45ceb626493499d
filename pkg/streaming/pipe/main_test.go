package pipe

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain enables goroutine leak detection for all tests in this package.
// Piped streams spawn dispatcher and delivery goroutines; teardown must
// stop all of them.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
