package kmm

import (
	"armos/kernel"
	"armos/kernel/mm"
)

// Layout describes where the kernel, its data structures and the device
// windows live in the physical and virtual address spaces.
type Layout struct {
	// MemorySize is the amount of RAM starting at physical address 0.
	MemorySize mm.Size

	// KernelStart and KernelEnd bound the physical memory occupied by the
	// kernel image, its directory and its boot stack. Regions in this
	// range are never handed out.
	KernelStart, KernelEnd mm.PhysAddr

	// DirectoryAddr is the physical address of the translation directory.
	DirectoryAddr mm.PhysAddr

	// KernelBase is the virtual address at which all of RAM is mapped
	// once translation is enabled.
	KernelBase mm.VirtAddr

	// The kernel stack occupies [KernelStackTop-KernelStackSize,
	// KernelStackTop) and is backed by the boot stack at BootStack.
	KernelStackTop  mm.VirtAddr
	KernelStackSize uint32
	BootStack       mm.PhysAddr

	// MMIOBase and MMIOLimit bound the virtual range handed out to device
	// register windows.
	MMIOBase, MMIOLimit mm.VirtAddr

	// ConsoleAddr is the physical address of the console UART. Its
	// section stays identity mapped so early output keeps working across
	// the switch to translated mode.
	ConsoleAddr mm.PhysAddr
}

// VersatilePB returns the layout used on the ARM Versatile/PB board.
func VersatilePB() Layout {
	return Layout{
		MemorySize:      256 * mm.Mb,
		KernelStart:     0x00010000,
		KernelEnd:       0x00200000,
		DirectoryAddr:   0x00100000,
		KernelBase:      0xf0000000,
		KernelStackTop:  0xf0000000,
		KernelStackSize: 32 * 1024,
		BootStack:       0x00108000,
		MMIOBase:        0xefe00000,
		MMIOLimit:       0xeff00000,
		ConsoleAddr:     0x101f1000,
	}
}

var (
	errLayoutMemorySize = &kernel.Error{Module: "kmm", Message: "memory size must be a non-zero multiple of 1M that fits above the kernel base"}
	errLayoutKernelBase = &kernel.Error{Module: "kmm", Message: "kernel base must be section-aligned"}
	errLayoutImage      = &kernel.Error{Module: "kmm", Message: "kernel image must be a non-empty range inside RAM"}
	errLayoutDirectory  = &kernel.Error{Module: "kmm", Message: "directory must be 16K aligned and inside the kernel image"}
	errLayoutStack      = &kernel.Error{Module: "kmm", Message: "kernel stack must be page-aligned, below the kernel base and backed from the kernel image"}
	errLayoutMMIO       = &kernel.Error{Module: "kmm", Message: "MMIO range must be page-aligned, non-empty and lie between RAM and the kernel stack"}
	errLayoutConsole    = &kernel.Error{Module: "kmm", Message: "console must be page-aligned and lie between RAM and the MMIO range"}
)

// Validate checks that the layout is self-consistent.
func (l Layout) Validate() *kernel.Error {
	kernBase := uint64(l.KernelBase)

	switch {
	case l.MemorySize == 0 || l.MemorySize%mm.SectionSize != 0 || kernBase+uint64(l.MemorySize) > 1<<32:
		return errLayoutMemorySize
	case kernBase%mm.SectionSize != 0:
		return errLayoutKernelBase
	case l.KernelStart >= l.KernelEnd || uint64(l.KernelEnd) > uint64(l.MemorySize):
		return errLayoutImage
	case uint32(l.DirectoryAddr)%mm.DirAlignment != 0 || !l.inImage(l.DirectoryAddr, mm.DirEntries*4):
		return errLayoutDirectory
	}

	stackBottom := uint64(l.KernelStackTop) - uint64(l.KernelStackSize)
	switch {
	case l.KernelStackSize == 0 || l.KernelStackSize%mm.PageSize != 0 || !l.KernelStackTop.PageAligned():
		return errLayoutStack
	case uint64(l.KernelStackTop) > kernBase || uint64(l.KernelStackSize) > uint64(l.KernelStackTop):
		return errLayoutStack
	case !l.BootStack.PageAligned() || !l.inImage(l.BootStack, l.KernelStackSize):
		return errLayoutStack
	}

	switch {
	case !l.MMIOBase.PageAligned() || !l.MMIOLimit.PageAligned() || l.MMIOLimit <= l.MMIOBase:
		return errLayoutMMIO
	case uint64(l.MMIOBase) < uint64(l.MemorySize) || uint64(l.MMIOLimit) > stackBottom:
		return errLayoutMMIO
	}

	consoleEnd := uint64(l.ConsoleSection()) + mm.SectionSize
	if !l.ConsoleAddr.PageAligned() || uint64(l.ConsoleAddr) < uint64(l.MemorySize) || consoleEnd > uint64(l.MMIOBase) {
		return errLayoutConsole
	}

	return nil
}

func (l Layout) inImage(start mm.PhysAddr, size uint32) bool {
	return start >= l.KernelStart && uint64(start)+uint64(size) <= uint64(l.KernelEnd)
}

// ConsoleSection returns the base of the 1M section containing the console.
func (l Layout) ConsoleSection() mm.PhysAddr {
	return l.ConsoleAddr &^ (mm.SectionSize - 1)
}
