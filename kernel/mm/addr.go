package mm

// PhysAddr is a 32-bit physical memory address.
type PhysAddr uint32

// VirtAddr is a 32-bit virtual memory address.
type VirtAddr uint32

// MakeVirtAddr assembles a virtual address from its directory index, table
// index and page offset.
func MakeVirtAddr(dirIndex, tableIndex, offset uint32) VirtAddr {
	return VirtAddr(dirIndex<<SectionShift | (tableIndex&(TableEntries-1))<<PageShift | offset&(PageSize-1))
}

// DirIndex returns the index of the directory entry that covers va.
func (va VirtAddr) DirIndex() uint32 {
	return uint32(va) >> SectionShift
}

// TableIndex returns the index of the second-level table entry that
// covers va.
func (va VirtAddr) TableIndex() uint32 {
	return (uint32(va) >> PageShift) & (TableEntries - 1)
}

// PageOffset returns the offset of va within its small page.
func (va VirtAddr) PageOffset() uint32 {
	return uint32(va) & (PageSize - 1)
}

// PageAligned returns true if va lies on a small page boundary.
func (va VirtAddr) PageAligned() bool {
	return va.PageOffset() == 0
}

// PageAligned returns true if pa lies on a small page boundary.
func (pa PhysAddr) PageAligned() bool {
	return uint32(pa)&(PageSize-1) == 0
}

// PageRoundUp rounds size up to the next multiple of PageSize.
func PageRoundUp(size uint32) uint32 {
	return (size + PageSize - 1) &^ (PageSize - 1)
}

// PageRoundDown rounds addr down to the page that contains it.
func PageRoundDown(addr uint32) uint32 {
	return addr &^ (PageSize - 1)
}
