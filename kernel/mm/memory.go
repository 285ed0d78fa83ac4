package mm

import "unsafe"

// Memory provides access to the bytes of physical memory. The kernel reaches
// physical memory through its kernel-virtual mapping while tests and the
// simulator use an ordinary host buffer.
type Memory interface {
	// Bytes returns a slice aliasing size bytes of physical memory
	// starting at addr.
	Bytes(addr PhysAddr, size uint32) []byte
}

// Relocatable is implemented by Memory accessors whose view of physical
// memory moves when address translation is switched on.
type Relocatable interface {
	// Relocate sets the offset that is added to a physical address to
	// obtain the address used to access it.
	Relocate(offset uintptr)
}

// DirectMap is a Memory implementation that accesses physical memory
// through a fixed linear offset. Before translation is enabled the offset
// is 0; afterwards it is the kernel-virtual base.
type DirectMap struct {
	offset uintptr
}

// NewDirectMap returns a DirectMap that reaches physical address pa at
// pa+offset.
func NewDirectMap(offset uintptr) *DirectMap {
	return &DirectMap{offset: offset}
}

// Relocate updates the linear offset used by the mapping.
func (m *DirectMap) Relocate(offset uintptr) {
	m.offset = offset
}

// Bytes implements Memory.
func (m *DirectMap) Bytes(addr PhysAddr, size uint32) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr)+m.offset)), size)
}
