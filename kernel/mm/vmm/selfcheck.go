package vmm

import (
	"armos/kernel"
	"armos/kernel/kfmt"
	"armos/kernel/mm"
	"armos/kernel/mm/pmm"
)

var (
	errCheckLowMemoryMapped = &kernel.Error{Module: "vmm", Message: "self-check: low virtual memory is already mapped"}
	errCheckSetup           = &kernel.Error{Module: "vmm", Message: "self-check: unable to reserve regions"}
	errCheckInsert          = &kernel.Error{Module: "vmm", Message: "self-check: unexpected Insert result"}
	errCheckTranslate       = &kernel.Error{Module: "vmm", Message: "self-check: virtual address translated to the wrong physical address"}
	errCheckRefCount        = &kernel.Error{Module: "vmm", Message: "self-check: unexpected region reference count"}
	errCheckFreeList        = &kernel.Error{Module: "vmm", Message: "self-check: unexpected free list state"}
	errCheckPerm            = &kernel.Error{Module: "vmm", Message: "self-check: unexpected page permissions"}
	errCheckWalk            = &kernel.Error{Module: "vmm", Message: "self-check: walk returned the wrong entry"}
	errCheckTableReclaim    = &kernel.Error{Module: "vmm", Message: "self-check: empty second-level table was not released"}
	errCheckTableNotCleared = &kernel.Error{Module: "vmm", Message: "self-check: new second-level table was not cleared"}
	errCheckWindow          = &kernel.Error{Module: "vmm", Message: "self-check: unexpected MMIO window placement"}
)

// checkWalkAddr lies in the middle of a table that is not the first one.
const checkWalkAddr = mm.VirtAddr(mm.PageSize*mm.DirEntries + mm.PageSize)

// SelfCheck exercises Insert, Remove, Lookup and Walk on the first two
// directory entries and on the one covering checkWalkAddr, all of which
// must be unmapped. The region allocator and the
// directory are restored before SelfCheck returns successfully.
func (pt *PageTables) SelfCheck() *kernel.Error {
	if pt.Entry(0).Present() || pt.Entry(1).Present() || pt.Entry(checkWalkAddr.DirIndex()).Present() {
		return errCheckLowMemoryMapped
	}

	if err := pt.checkMappings(); err != nil {
		return err
	}

	kfmt.Printf("[vmm] page mapping check succeeded\n")
	return nil
}

func (pt *PageTables) expectPhys(va mm.VirtAddr, region mm.Region) bool {
	pa, ok := pt.Translate(va)
	if region == mm.InvalidRegion {
		return !ok
	}
	return ok && pa == region.Address()
}

func (pt *PageTables) checkMappings() *kernel.Error {
	var (
		regions = pt.regions
		rg      [3]mm.Region
		err     *kernel.Error
	)

	for i := range rg {
		if rg[i], err = regions.Alloc(0); err != nil {
			return errCheckSetup
		}
	}
	pp0, pp1, pp2 := rg[0], rg[1], rg[2]

	fl := regions.DetachFreeList()
	defer regions.AttachFreeList(fl)

	if _, err = regions.Alloc(0); err == nil {
		return errCheckFreeList
	}

	if _, _, err = pt.Lookup(0); err != ErrInvalidMapping {
		return errCheckInsert
	}

	// No free region for a second-level table.
	if err = pt.Insert(pp1, 0, PermKernelRW); err != pmm.ErrOutOfMemory {
		return errCheckInsert
	}

	// pp0 becomes the second-level table.
	regions.Free(pp0)
	if err = pt.Insert(pp1, 0, PermKernelRW); err != nil {
		return errCheckInsert
	}
	if pt.Entry(0).Address() != pp0.Address() || !pt.expectPhys(0, pp1) {
		return errCheckTranslate
	}
	if regions.RefCount(pp1) != 1 || regions.RefCount(pp0) != 1 {
		return errCheckRefCount
	}

	if err = pt.Insert(pp2, mm.PageSize, PermKernelRW); err != nil {
		return errCheckInsert
	}
	if !pt.expectPhys(mm.PageSize, pp2) {
		return errCheckTranslate
	}
	if regions.RefCount(pp2) != 1 {
		return errCheckRefCount
	}
	if _, err = regions.Alloc(0); err == nil {
		return errCheckFreeList
	}

	// Re-inserting at the same address must not free pp2.
	if err = pt.Insert(pp2, mm.PageSize, PermKernelRW); err != nil {
		return errCheckInsert
	}
	if !pt.expectPhys(mm.PageSize, pp2) {
		return errCheckTranslate
	}
	if regions.RefCount(pp2) != 1 {
		return errCheckRefCount
	}
	if _, err = regions.Alloc(0); err == nil {
		return errCheckFreeList
	}

	tbl := pt.table(pt.Entry(0))
	if pe, _ := pt.Walk(mm.PageSize, false); pe != &tbl[mm.VirtAddr(mm.PageSize).TableIndex()] {
		return errCheckWalk
	}

	// Permission changes.
	if err = pt.Insert(pp2, mm.PageSize, PermUserRW); err != nil {
		return errCheckInsert
	}
	if pe, _ := pt.Walk(mm.PageSize, false); pe.Perm() != PermUserRW || regions.RefCount(pp2) != 1 {
		return errCheckPerm
	}
	if err = pt.Insert(pp2, mm.PageSize, PermKernelRW); err != nil {
		return errCheckInsert
	}
	if pe, _ := pt.Walk(mm.PageSize, false); pe.Perm() != PermKernelRW {
		return errCheckPerm
	}

	// A new directory entry needs a table and there is no memory left.
	if err = pt.Insert(pp0, mm.SectionSize, PermKernelRW); err != pmm.ErrOutOfMemory {
		return errCheckInsert
	}

	// Replace pp2 with pp1.
	if err = pt.Insert(pp1, mm.PageSize, PermKernelRW); err != nil {
		return errCheckInsert
	}
	if !pt.expectPhys(0, pp1) || !pt.expectPhys(mm.PageSize, pp1) {
		return errCheckTranslate
	}
	if regions.RefCount(pp1) != 2 || regions.RefCount(pp2) != 0 {
		return errCheckRefCount
	}
	if pp, _ := regions.Alloc(0); pp != pp2 {
		return errCheckFreeList
	}

	pt.Remove(0)
	if !pt.expectPhys(0, mm.InvalidRegion) || !pt.expectPhys(mm.PageSize, pp1) {
		return errCheckTranslate
	}
	if regions.RefCount(pp1) != 1 {
		return errCheckRefCount
	}

	if err = pt.Insert(pp1, mm.PageSize, PermNone); err != nil {
		return errCheckInsert
	}
	if regions.RefCount(pp1) != 1 || regions.IsFree(pp1) {
		return errCheckRefCount
	}

	// Dropping the last mapping frees pp1 and the table in pp0.
	pt.Remove(mm.PageSize)
	if !pt.expectPhys(0, mm.InvalidRegion) || !pt.expectPhys(mm.PageSize, mm.InvalidRegion) {
		return errCheckTranslate
	}
	if !regions.IsFree(pp1) {
		return errCheckRefCount
	}
	if pt.Entry(0).Present() || !regions.IsFree(pp0) {
		return errCheckTableReclaim
	}
	if pp, _ := regions.Alloc(0); pp != pp0 {
		return errCheckFreeList
	}
	if pp, _ := regions.Alloc(0); pp != pp1 {
		return errCheckFreeList
	}
	if _, err = regions.Alloc(0); err == nil {
		return errCheckFreeList
	}

	// Pointer arithmetic for an entry in the middle of a table.
	va := checkWalkAddr
	regions.Free(pp0)
	pe, err := pt.Walk(va, true)
	if err != nil {
		return errCheckWalk
	}
	if de := pt.Entry(va.DirIndex()); de.Address() != pp0.Address() || pe != &pt.table(de)[va.TableIndex()] {
		return errCheckWalk
	}
	pt.dropTable(va)

	// New tables are cleared.
	if pp, _ := regions.Alloc(0); pp != pp0 {
		return errCheckFreeList
	}
	kernel.Memset(regions.Bytes(pp0), 0xff)
	regions.Free(pp0)
	if _, err = pt.Walk(0, true); err != nil {
		return errCheckWalk
	}
	for _, pe := range pt.table(pt.Entry(0)) {
		if pe.Present() {
			return errCheckTableNotCleared
		}
	}
	pt.dropTable(0)

	regions.Free(pp1)
	regions.Free(pp2)
	return nil
}

// dropTable forcibly releases the second-level table covering va.
func (pt *PageTables) dropTable(va mm.VirtAddr) {
	de := pt.Entry(va.DirIndex())
	pt.SetEntry(va.DirIndex(), 0)
	pt.regions.DecRef(mm.RegionFromAddress(de.Address()))
}

// SelfCheck maps two overlapping device windows and verifies their
// placement, translation and permissions. The page mappings and any table
// they emptied are released afterwards but the virtual space they used
// stays reserved.
func (wa *WindowAllocator) SelfCheck() *kernel.Error {
	// The windows point just past managed RAM so no region is referenced.
	devPA := mm.PhysAddr(uint64(wa.pt.regions.RegionCount()) << mm.RegionShift)

	mm1, err := wa.MapDevice(devPA, mm.PageSize+1)
	if err != nil {
		return err
	}
	mm2, err := wa.MapDevice(devPA, mm.PageSize)
	if err != nil {
		return err
	}

	inRange := func(va mm.VirtAddr) bool {
		return va >= wa.base && uint64(va)+2*mm.PageSize <= uint64(wa.limit)
	}

	switch {
	case !inRange(mm1) || !inRange(mm2):
		return errCheckWindow
	case !mm1.PageAligned() || !mm2.PageAligned():
		return errCheckWindow
	case mm1+2*mm.PageSize > mm2:
		return errCheckWindow
	}

	pt := wa.pt
	checks := []struct {
		va    mm.VirtAddr
		pa    mm.PhysAddr
		valid bool
	}{
		{mm1, devPA, true},
		{mm1 + mm.PageSize, devPA + mm.PageSize, true},
		{mm2, devPA, true},
		{mm2 + mm.PageSize, 0, false},
	}
	for _, c := range checks {
		if pa, ok := pt.Translate(c.va); ok != c.valid || pa != c.pa {
			return errCheckTranslate
		}
	}

	if w, ok := wa.Window(mm1 + mm.PageSize); !ok || w.Virt != mm1 || w.Size != 2*mm.PageSize {
		return errCheckWindow
	}

	if pe, _ := pt.Walk(mm1, false); pe.Perm() != PermKernelRW {
		return errCheckPerm
	}

	for _, va := range []mm.VirtAddr{mm1, mm1 + mm.PageSize, mm2} {
		pe, _ := pt.Walk(va, false)
		*pe = 0
		pt.Invalidate(va)
		pt.reclaimTable(va)
	}
	wa.windows.Delete(Window{Virt: mm1})
	wa.windows.Delete(Window{Virt: mm2})

	kfmt.Printf("[vmm] MMIO window check succeeded\n")
	return nil
}
