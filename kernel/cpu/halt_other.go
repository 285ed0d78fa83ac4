//go:build !arm

package cpu

// Halt stops instruction execution. On non-ARM hosts there is no CPU to
// stop so Halt unwinds the calling goroutine instead.
func Halt() {
	panic(ErrHalted)
}
