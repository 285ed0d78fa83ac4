//go:build !arm

package cpu

import "testing"

func TestHaltUnwinds(t *testing.T) {
	defer func() {
		if got := recover(); got != ErrHalted {
			t.Fatalf("expected Halt to panic with ErrHalted; got %v", got)
		}
	}()

	Halt()
	t.Fatal("expected Halt not to return")
}
