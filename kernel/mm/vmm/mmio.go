package vmm

import (
	"armos/kernel"
	"armos/kernel/mm"

	"github.com/google/btree"
)

var (
	// ErrNoWindowSpace is returned when the MMIO range cannot fit another
	// device window.
	ErrNoWindowSpace = &kernel.Error{Module: "vmm", Message: "no space left in the MMIO window range"}

	errZeroSizeWindow   = &kernel.Error{Module: "vmm", Message: "device window size must be non-zero"}
	errUnalignedDevice  = &kernel.Error{Module: "vmm", Message: "device physical address must be page-aligned"}
	errInvalidMMIORange = &kernel.Error{Module: "vmm", Message: "MMIO range must be page-aligned and non-empty"}
)

// Window describes a virtual address range mapped to a device register
// block.
type Window struct {
	Virt mm.VirtAddr
	Phys mm.PhysAddr
	Size uint32
}

// Contains returns true if va falls inside the window.
func (w Window) Contains(va mm.VirtAddr) bool {
	return va >= w.Virt && uint32(va-w.Virt) < w.Size
}

// WindowAllocator hands out virtual windows for device registers from a
// fixed range using a cursor that only moves forward. Windows are never
// reclaimed.
type WindowAllocator struct {
	pt          *PageTables
	base, limit mm.VirtAddr
	next        mm.VirtAddr

	windows *btree.BTreeG[Window]
}

// NewWindowAllocator returns an allocator for the virtual range
// [base, limit).
func NewWindowAllocator(pt *PageTables, base, limit mm.VirtAddr) (*WindowAllocator, *kernel.Error) {
	if !base.PageAligned() || !limit.PageAligned() || limit <= base {
		return nil, errInvalidMMIORange
	}

	return &WindowAllocator{
		pt:    pt,
		base:  base,
		limit: limit,
		next:  base,
		windows: btree.NewG(2, func(a, b Window) bool {
			return a.Virt < b.Virt
		}),
	}, nil
}

// MapDevice reserves the next size bytes (rounded up to a page multiple) of
// the MMIO range and maps them to the device registers starting at pa with
// kernel-only permissions. It returns ErrNoWindowSpace if the range is
// exhausted.
func (wa *WindowAllocator) MapDevice(pa mm.PhysAddr, size uint32) (mm.VirtAddr, *kernel.Error) {
	if size == 0 {
		return 0, errZeroSizeWindow
	}
	if !pa.PageAligned() {
		return 0, errUnalignedDevice
	}

	size64 := (uint64(size) + mm.PageSize - 1) &^ (mm.PageSize - 1)
	if uint64(wa.next)+size64 > uint64(wa.limit) {
		return 0, ErrNoWindowSpace
	}

	w := Window{Virt: wa.next, Phys: pa, Size: uint32(size64)}
	wa.pt.BootMap(w.Virt, w.Size, w.Phys)
	wa.windows.ReplaceOrInsert(w)
	wa.next += mm.VirtAddr(w.Size)

	return w.Virt, nil
}

// Window returns the device window that contains va.
func (wa *WindowAllocator) Window(va mm.VirtAddr) (Window, bool) {
	var (
		found Window
		ok    bool
	)

	wa.windows.DescendLessOrEqual(Window{Virt: va}, func(w Window) bool {
		found, ok = w, w.Contains(va)
		return false
	})

	return found, ok
}

// Windows returns all windows in ascending virtual address order.
func (wa *WindowAllocator) Windows() []Window {
	out := make([]Window, 0, wa.windows.Len())
	wa.windows.Ascend(func(w Window) bool {
		out = append(out, w)
		return true
	})
	return out
}

// Remaining returns the number of bytes still available for new windows.
func (wa *WindowAllocator) Remaining() uint32 {
	return uint32(wa.limit - wa.next)
}
