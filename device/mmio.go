package device

import (
	"armos/kernel/mm"
	"sync/atomic"
	"unsafe"
)

// Registers reads and writes 32-bit device registers by byte offset.
type Registers interface {
	Read32(offset uint32) uint32
	Write32(offset uint32, value uint32)
}

// MMIO accesses a register block through its mapped virtual address. Every
// access is a single atomic load or store so none is cached or elided.
type MMIO uintptr

// Read32 implements Registers.
func (m MMIO) Read32(offset uint32) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(uintptr(m) + uintptr(offset))))
}

// Write32 implements Registers.
func (m MMIO) Write32(offset uint32, value uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(uintptr(m)+uintptr(offset))), value)
}

// MMIOBus is the Bus used on real hardware: windows are mapped through
// Mapper and registers are accessed directly.
type MMIOBus struct {
	Mapper
}

// Registers implements Bus.
func (b MMIOBus) Registers(va mm.VirtAddr) Registers {
	return MMIO(va)
}
