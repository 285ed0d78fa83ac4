// Package physmem provides a host-backed stand-in for the machine's physical
// memory. It lets the memory manager run unmodified on the host, both under
// test and inside the armsim simulator.
package physmem

import (
	"armos/kernel/mm"
	"fmt"
)

// RAM is a contiguous block of simulated physical memory starting at
// physical address 0.
type RAM struct {
	buf   []byte
	close func() error
}

// New allocates size bytes of simulated physical memory. The size must be a
// non-zero multiple of mm.RegionSize and fit in a 32-bit address space.
func New(size mm.Size) (*RAM, error) {
	if size == 0 || size%mm.RegionSize != 0 {
		return nil, fmt.Errorf("physmem: size %d is not a non-zero multiple of the region size", size)
	}
	if size > 4*mm.Gb {
		return nil, fmt.Errorf("physmem: size %d exceeds the 32-bit physical address space", size)
	}

	buf, closeFn, err := allocate(int(size))
	if err != nil {
		return nil, fmt.Errorf("physmem: allocating %d bytes: %w", size, err)
	}

	return &RAM{buf: buf, close: closeFn}, nil
}

// Bytes implements mm.Memory. Accesses outside the simulated RAM panic.
func (r *RAM) Bytes(addr mm.PhysAddr, size uint32) []byte {
	end := uint64(addr) + uint64(size)
	if end > uint64(len(r.buf)) {
		panic(fmt.Sprintf("physmem: access [0x%x, 0x%x) outside RAM of %d bytes", addr, end, len(r.buf)))
	}
	return r.buf[addr:end:end]
}

// Size returns the amount of simulated physical memory.
func (r *RAM) Size() mm.Size {
	return mm.Size(len(r.buf))
}

// Close releases the memory backing r. r must not be used afterwards.
func (r *RAM) Close() error {
	if r.buf == nil {
		return nil
	}
	r.buf = nil
	return r.close()
}
