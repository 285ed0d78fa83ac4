// Package pmm implements the physical region allocator. Physical memory is
// split into mm.RegionSize units that are handed out from a LIFO free list
// and returned to it once their reference count drops to zero.
package pmm

import (
	"armos/kernel"
	"armos/kernel/kfmt"
	"armos/kernel/mm"
)

// AllocFlag alters the behavior of Alloc.
type AllocFlag uint8

const (
	// AllocZero requests the region contents to be cleared before Alloc
	// returns.
	AllocZero AllocFlag = 1 << iota
)

var (
	// ErrOutOfMemory is returned when the free list is empty.
	ErrOutOfMemory = &kernel.Error{Module: "pmm", Message: "out of memory"}

	errInvalidSize     = &kernel.Error{Module: "pmm", Message: "memory size is not a non-zero multiple of the region size"}
	errFreeReferenced  = &kernel.Error{Module: "pmm", Message: "attempted to free a region that is still referenced"}
	errDoubleFree      = &kernel.Error{Module: "pmm", Message: "attempted to free a region that is already free"}
	errRefUnderflow    = &kernel.Error{Module: "pmm", Message: "region reference count underflow"}
	errRefFreeRegion   = &kernel.Error{Module: "pmm", Message: "attempted to reference a free region"}
	errUnmanagedRegion = &kernel.Error{Module: "pmm", Message: "region is outside managed memory"}

	// panicFn is mocked by tests.
	panicFn = kfmt.Panic
)

type regionInfo struct {
	// next links free regions together. It is only meaningful while the
	// region is on the free list.
	next mm.Region

	refs uint32
	free bool
}

// Allocator tracks the ownership of every region of physical memory.
type Allocator struct {
	mem     mm.Memory
	regions []regionInfo

	freeHead  mm.Region
	freeCount uint32
}

// New creates an allocator that manages size bytes of physical memory
// starting at address 0. Regions that overlap the kernel image
// [kernelStart, kernelEnd) are marked as in use with a single reference and
// never enter the free list; all other regions start free.
func New(mem mm.Memory, size mm.Size, kernelStart, kernelEnd mm.PhysAddr) (*Allocator, *kernel.Error) {
	if size == 0 || size%mm.RegionSize != 0 {
		return nil, errInvalidSize
	}

	alloc := &Allocator{
		mem:      mem,
		regions:  make([]regionInfo, size.Regions()),
		freeHead: mm.InvalidRegion,
	}

	var (
		firstReserved = mm.RegionFromAddress(kernelStart)
		lastReserved  = mm.RegionFromAddress(kernelEnd - 1)
	)

	for index := range alloc.regions {
		region := mm.Region(index)
		if kernelEnd > kernelStart && region >= firstReserved && region <= lastReserved {
			alloc.regions[index].refs = 1
			continue
		}

		alloc.push(region)
	}

	return alloc, nil
}

// RegionCount returns the number of regions managed by the allocator.
func (alloc *Allocator) RegionCount() uint32 {
	return uint32(len(alloc.regions))
}

// FreeCount returns the number of regions currently on the free list.
func (alloc *Allocator) FreeCount() uint32 {
	return alloc.freeCount
}

// Contains returns true if the physical address pa belongs to a managed
// region.
func (alloc *Allocator) Contains(pa mm.PhysAddr) bool {
	return alloc.managed(mm.RegionFromAddress(pa))
}

// Alloc pops a region from the free list. The returned region has a zero
// reference count; the caller takes ownership by calling IncRef. If the free
// list is empty, Alloc returns mm.InvalidRegion and ErrOutOfMemory.
func (alloc *Allocator) Alloc(flags AllocFlag) (mm.Region, *kernel.Error) {
	if alloc.freeHead == mm.InvalidRegion {
		return mm.InvalidRegion, ErrOutOfMemory
	}

	region := alloc.freeHead
	info := &alloc.regions[region]
	alloc.freeHead = info.next
	alloc.freeCount--
	info.next = mm.InvalidRegion
	info.free = false

	if flags&AllocZero != 0 {
		kernel.Memset(alloc.Bytes(region), 0)
	}

	return region, nil
}

// Free returns an unreferenced region to the free list. Freeing a region
// that is still referenced or already free is a fatal error.
func (alloc *Allocator) Free(region mm.Region) {
	if !alloc.managed(region) {
		panicFn(errUnmanagedRegion)
		return
	}

	info := &alloc.regions[region]
	switch {
	case info.free:
		panicFn(errDoubleFree)
		return
	case info.refs != 0:
		panicFn(errFreeReferenced)
		return
	}

	alloc.push(region)
}

// IncRef adds a reference to an allocated region.
func (alloc *Allocator) IncRef(region mm.Region) {
	if !alloc.managed(region) {
		panicFn(errUnmanagedRegion)
		return
	}

	info := &alloc.regions[region]
	if info.free {
		panicFn(errRefFreeRegion)
		return
	}
	info.refs++
}

// DecRef drops a reference to region. When the last reference is dropped
// the region is returned to the free list; this is the only path through
// which a referenced region becomes free again.
func (alloc *Allocator) DecRef(region mm.Region) {
	if !alloc.managed(region) {
		panicFn(errUnmanagedRegion)
		return
	}

	info := &alloc.regions[region]
	if info.refs == 0 {
		panicFn(errRefUnderflow)
		return
	}

	if info.refs--; info.refs == 0 {
		alloc.Free(region)
	}
}

// RefCount returns the number of references held on region.
func (alloc *Allocator) RefCount(region mm.Region) uint32 {
	if !alloc.managed(region) {
		return 0
	}
	return alloc.regions[region].refs
}

// IsFree returns true if region is currently linked on the free list.
func (alloc *Allocator) IsFree(region mm.Region) bool {
	return alloc.managed(region) && alloc.regions[region].free
}

// Bytes returns the memory backing region.
func (alloc *Allocator) Bytes(region mm.Region) []byte {
	return alloc.mem.Bytes(region.Address(), mm.RegionSize)
}

// VisitFree invokes visitor for each region on the free list, starting at
// the head. Iteration stops if visitor returns false.
func (alloc *Allocator) VisitFree(visitor func(mm.Region) bool) {
	for region := alloc.freeHead; region != mm.InvalidRegion; region = alloc.regions[region].next {
		if !visitor(region) {
			return
		}
	}
}

// FreeList is a free list that has been detached from its allocator.
type FreeList struct {
	head  mm.Region
	count uint32
}

// Len returns the number of regions on the list.
func (fl FreeList) Len() uint32 {
	return fl.count
}

// DetachFreeList removes every region from the free list and returns them
// as a FreeList. Until AttachFreeList is called, Alloc only sees regions
// freed after the detach.
func (alloc *Allocator) DetachFreeList() FreeList {
	fl := FreeList{head: alloc.freeHead, count: alloc.freeCount}
	alloc.freeHead, alloc.freeCount = mm.InvalidRegion, 0
	return fl
}

// AttachFreeList links a previously detached free list back behind the
// regions currently on the free list.
func (alloc *Allocator) AttachFreeList(fl FreeList) {
	if fl.head == mm.InvalidRegion {
		return
	}

	if alloc.freeHead == mm.InvalidRegion {
		alloc.freeHead = fl.head
	} else {
		tail := alloc.freeHead
		for alloc.regions[tail].next != mm.InvalidRegion {
			tail = alloc.regions[tail].next
		}
		alloc.regions[tail].next = fl.head
	}
	alloc.freeCount += fl.count
}

func (alloc *Allocator) push(region mm.Region) {
	info := &alloc.regions[region]
	info.next = alloc.freeHead
	info.free = true
	alloc.freeHead = region
	alloc.freeCount++
}

func (alloc *Allocator) managed(region mm.Region) bool {
	return uint32(region) < uint32(len(alloc.regions))
}
