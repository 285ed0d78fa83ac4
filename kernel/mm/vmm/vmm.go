// Package vmm manages the two-level ARM short-descriptor translation tables:
// it creates second-level tables on demand, installs and removes page
// mappings with reference counting on the mapped regions, and reserves
// virtual windows for device registers.
package vmm

import (
	"armos/kernel"
	"armos/kernel/kfmt"
	"armos/kernel/mm"
	"armos/kernel/mm/pmm"
	"unsafe"
)

var (
	// ErrInvalidMapping is returned when looking up a virtual address that
	// is not mapped by a page entry.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	errSectionMapped      = &kernel.Error{Module: "vmm", Message: "virtual address is covered by a section mapping"}
	errDirectoryAlignment = &kernel.Error{Module: "vmm", Message: "translation directory is not 16K aligned"}
	errMisalignedMapping  = &kernel.Error{Module: "vmm", Message: "mapping addresses are not suitably aligned"}
	errBootMapOOM         = &kernel.Error{Module: "vmm", Message: "out of memory while building boot mappings"}
	errTableInPlace       = &kernel.Error{Module: "vmm", Message: "directory entry already points to a second-level table"}
	errUnknownFormat      = &kernel.Error{Module: "vmm", Message: "unknown translation descriptor format"}

	// panicFn is mocked by tests.
	panicFn = kfmt.Panic
)

// TLB invalidates cached translations. cpu.MMU implementations satisfy it.
type TLB interface {
	InvalidateTLBEntry(virtAddr uint32)
}

type (
	directory [mm.DirEntries]DirEntry
	table     [mm.TableEntries]PageEntry
)

const (
	directorySize = mm.DirEntries * 4
	tableSize     = mm.TableEntries * 4
)

// PageTables owns a translation directory and the second-level tables it
// points to. Second-level tables are carved out of regions obtained from
// the region allocator; each table holds one reference on its region.
type PageTables struct {
	mem     mm.Memory
	regions *pmm.Allocator
	tlb     TLB
	dirAddr mm.PhysAddr
}

// New returns a PageTables instance that manages the directory located at
// physical address dirAddr. The directory contents are used as-is; call
// Clear to start from an empty directory.
func New(mem mm.Memory, regions *pmm.Allocator, tlb TLB, dirAddr mm.PhysAddr) (*PageTables, *kernel.Error) {
	if uint32(dirAddr)&(mm.DirAlignment-1) != 0 {
		return nil, errDirectoryAlignment
	}

	return &PageTables{
		mem:     mem,
		regions: regions,
		tlb:     tlb,
		dirAddr: dirAddr,
	}, nil
}

// DirectoryAddress returns the physical address of the directory. This is
// the value loaded into the translation table base registers.
func (pt *PageTables) DirectoryAddress() mm.PhysAddr {
	return pt.dirAddr
}

// The directory and tables are always reached through the memory accessor
// since its view of physical memory moves once translation is enabled.
func (pt *PageTables) directory() *directory {
	return (*directory)(unsafe.Pointer(&pt.mem.Bytes(pt.dirAddr, directorySize)[0]))
}

func (pt *PageTables) table(e DirEntry) *table {
	return (*table)(unsafe.Pointer(&pt.mem.Bytes(e.Address(), tableSize)[0]))
}

// Clear marks every directory entry as faulting.
func (pt *PageTables) Clear() {
	dir := pt.directory()
	for index := range dir {
		dir[index] = 0
	}
}

// Entry returns the directory entry at index.
func (pt *PageTables) Entry(index uint32) DirEntry {
	return pt.directory()[index]
}

// SetEntry overwrites the directory entry at index. It performs no
// reference counting or TLB maintenance.
func (pt *PageTables) SetEntry(index uint32, e DirEntry) {
	pt.directory()[index] = e
}

// Walk returns a pointer to the second-level entry for va. If no table
// covers va and create is false, Walk returns ErrInvalidMapping without
// side effects. If create is true, a zero-filled region is allocated,
// referenced once and installed as the new table. Walk is the only place
// where second-level tables are created.
func (pt *PageTables) Walk(va mm.VirtAddr, create bool) (*PageEntry, *kernel.Error) {
	de := &pt.directory()[va.DirIndex()]

	switch de.Kind() {
	case DirTable:
	case DirFault:
		if !create {
			return nil, ErrInvalidMapping
		}

		region, err := pt.regions.Alloc(pmm.AllocZero)
		if err != nil {
			return nil, err
		}
		pt.regions.IncRef(region)
		*de = NewTableEntry(region.Address(), 0)
	default:
		return nil, errSectionMapped
	}

	return &pt.table(*de)[va.TableIndex()], nil
}

// BootMap maps size bytes starting at va to the physical memory starting at
// pa using kernel-only small pages. Both addresses must be page-aligned. It
// is only used while the kernel boots so any failure is fatal. Every page
// backed by managed RAM takes a reference on its region, which must already
// be allocated; device memory is not reference counted.
func (pt *PageTables) BootMap(va mm.VirtAddr, size uint32, pa mm.PhysAddr) {
	if !va.PageAligned() || !pa.PageAligned() {
		panicFn(errMisalignedMapping)
		return
	}

	pageCount := mm.PageRoundUp(size) >> mm.PageShift
	for page := uint32(0); page < pageCount; page++ {
		off := page << mm.PageShift
		pe, err := pt.Walk(va+mm.VirtAddr(off), true)
		if err != nil {
			if err == pmm.ErrOutOfMemory {
				err = errBootMapOOM
			}
			panicFn(err)
			return
		}
		pagePA := pa + mm.PhysAddr(off)
		if pt.regions.Contains(pagePA) {
			pt.regions.IncRef(mm.RegionFromAddress(pagePA))
		}
		*pe = NewSmallPageEntry(pagePA, PermKernelRW)
	}
}

// MapSection maps the 1M section containing va to the section starting at
// pa. Mapping over an existing second-level table is refused so the table
// and its references cannot leak.
func (pt *PageTables) MapSection(va mm.VirtAddr, pa mm.PhysAddr, perm Perm) *kernel.Error {
	if uint32(va)&(mm.SectionSize-1) != 0 || uint32(pa)&(mm.SectionSize-1) != 0 {
		return errMisalignedMapping
	}

	de := &pt.directory()[va.DirIndex()]
	if de.Kind() == DirTable {
		return errTableInPlace
	}

	*de = NewSectionEntry(pa, perm, 0)
	pt.Invalidate(va)
	return nil
}

// ClearSection removes the (super)section mapping that covers va, if any.
func (pt *PageTables) ClearSection(va mm.VirtAddr) {
	de := &pt.directory()[va.DirIndex()]
	switch de.Kind() {
	case DirSection, DirSupersection:
		*de = 0
		pt.Invalidate(va)
	}
}

// Lookup resolves a mapped page to the region that backs it and the entry
// describing the mapping. It returns ErrInvalidMapping if va is not mapped
// by a present page entry or if the mapped memory is not managed by the
// region allocator.
func (pt *PageTables) Lookup(va mm.VirtAddr) (mm.Region, *PageEntry, *kernel.Error) {
	pe, err := pt.Walk(va, false)
	if err != nil || !pe.Present() {
		return mm.InvalidRegion, nil, ErrInvalidMapping
	}

	pa := pe.Address()
	if !pt.regions.Contains(pa) {
		return mm.InvalidRegion, nil, ErrInvalidMapping
	}

	return mm.RegionFromAddress(pa), pe, nil
}

// Insert maps region at va with the supplied permissions, replacing any
// existing mapping. The reference on region is taken before the previous
// mapping is dropped, so re-inserting a region at the address it is
// already mapped to never frees it. Insert fails with pmm.ErrOutOfMemory
// when a second-level table is needed but cannot be allocated.
func (pt *PageTables) Insert(region mm.Region, va mm.VirtAddr, perm Perm) *kernel.Error {
	pe, err := pt.Walk(va, true)
	if err != nil {
		return err
	}

	ref := pt.regions.Acquire(region)
	if pe.Present() {
		pt.remove(va, false)
	}

	*pe = NewSmallPageEntry(ref.Transfer().Address(), perm)
	pt.Invalidate(va)
	return nil
}

// Remove unmaps the page at va and drops the reference it held on its
// region. The second-level table is released once its last mapping is
// gone. The TLB entry for va is invalidated even if nothing was mapped.
func (pt *PageTables) Remove(va mm.VirtAddr) {
	pt.remove(va, true)
}

func (pt *PageTables) remove(va mm.VirtAddr, reclaimTable bool) {
	if region, pe, err := pt.Lookup(va); err == nil {
		pt.regions.DecRef(region)
		*pe = 0

		if reclaimTable {
			pt.reclaimTable(va)
		}
	}

	pt.Invalidate(va)
}

// reclaimTable releases the second-level table covering va if none of its
// entries is present.
func (pt *PageTables) reclaimTable(va mm.VirtAddr) {
	de := &pt.directory()[va.DirIndex()]
	if de.Kind() != DirTable {
		return
	}

	for _, pe := range pt.table(*de) {
		if pe.Present() {
			return
		}
	}

	tableRegion := mm.RegionFromAddress(de.Address())
	*de = 0
	pt.regions.DecRef(tableRegion)
}

// Invalidate drops any cached translation for va.
func (pt *PageTables) Invalidate(va mm.VirtAddr) {
	pt.tlb.InvalidateTLBEntry(uint32(va))
}

// Translate returns the physical address that va maps to. The second
// result is false if va is not mapped.
func (pt *PageTables) Translate(va mm.VirtAddr) (mm.PhysAddr, bool) {
	de := pt.directory()[va.DirIndex()]

	switch de.Kind() {
	case DirFault:
		return 0, false
	case DirSection:
		return de.Address() | mm.PhysAddr(uint32(va)&(mm.SectionSize-1)), true
	case DirSupersection:
		return de.Address() | mm.PhysAddr(uint32(va)&(mm.SupersectionSize-1)), true
	case DirTable:
		pe := pt.table(de)[va.TableIndex()]
		switch pe.Kind() {
		case PageSmall:
			return pe.Address() | mm.PhysAddr(va.PageOffset()), true
		case PageLarge:
			return pe.Address() | mm.PhysAddr(uint32(va)&(mm.LargePageSize-1)), true
		default:
			return 0, false
		}
	}

	panicFn(errUnknownFormat)
	return 0, false
}
