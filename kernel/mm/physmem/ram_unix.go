//go:build unix

package physmem

import "golang.org/x/sys/unix"

// allocate reserves an anonymous private mapping. Pages are only committed
// by the host once touched, so large machines cost nothing until used.
func allocate(size int) ([]byte, func() error, error) {
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, err
	}

	return buf, func() error { return unix.Munmap(buf) }, nil
}
