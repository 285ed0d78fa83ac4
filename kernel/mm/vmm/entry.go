package vmm

import "armos/kernel/mm"

// Perm is the 2-bit access permission (AP) field shared by section and page
// descriptors.
type Perm uint8

const (
	// PermNone denies all accesses.
	PermNone Perm = iota

	// PermKernelRW allows privileged read/write access only.
	PermKernelRW

	// PermUserRO allows privileged read/write and unprivileged read
	// access.
	PermUserRO

	// PermUserRW allows read/write access at any privilege level.
	PermUserRW
)

// String implements fmt.Stringer.
func (p Perm) String() string {
	switch p {
	case PermNone:
		return "none"
	case PermKernelRW:
		return "kernel-rw"
	case PermUserRO:
		return "user-ro"
	default:
		return "user-rw"
	}
}

// DirKind identifies the format of a directory entry.
type DirKind uint8

const (
	// DirFault entries generate a translation fault.
	DirFault DirKind = iota

	// DirTable entries point to a second-level (coarse) table.
	DirTable

	// DirSection entries map 1M of memory directly.
	DirSection

	// DirSupersection entries map 16M of memory directly. Each of the
	// 16 directory entries covering the supersection holds a copy.
	DirSupersection

	// DirReserved marks an encoding this kernel never produces.
	DirReserved
)

var dirKindNames = [...]string{"fault", "table", "section", "supersection", "reserved"}

// String implements fmt.Stringer.
func (k DirKind) String() string {
	if int(k) < len(dirKindNames) {
		return dirKindNames[k]
	}
	return "unknown"
}

const (
	descTypeMask = 0x3

	dirTypeTable   = 0x1
	dirTypeSection = 0x2

	dirSupersectionBit = 1 << 18
	dirDomainShift     = 5
	dirDomainMask      = 0xf << dirDomainShift
	dirSectionAPShift  = 10

	dirTableAddrMask        = 0xfffffc00
	dirSectionAddrMask      = 0xfff00000
	dirSupersectionAddrMask = 0xff000000

	pageTypeLarge = 0x1
	pageTypeSmall = 0x2
	pageAPShift   = 4

	pageSmallAddrMask = 0xfffff000
	pageLargeAddrMask = 0xffff0000
)

// DirEntry is a first-level translation descriptor.
type DirEntry uint32

// NewTableEntry returns a descriptor pointing to the second-level table at
// tableAddr. The table must be 1K aligned.
func NewTableEntry(tableAddr mm.PhysAddr, domain uint8) DirEntry {
	return DirEntry(uint32(tableAddr)&dirTableAddrMask | uint32(domain&0xf)<<dirDomainShift | dirTypeTable)
}

// NewSectionEntry returns a descriptor that maps the 1M section starting at
// pa.
func NewSectionEntry(pa mm.PhysAddr, perm Perm, domain uint8) DirEntry {
	return DirEntry(uint32(pa)&dirSectionAddrMask | uint32(perm&0x3)<<dirSectionAPShift | uint32(domain&0xf)<<dirDomainShift | dirTypeSection)
}

// NewSupersectionEntry returns a descriptor that maps the 16M supersection
// starting at pa. Supersections always belong to domain 0.
func NewSupersectionEntry(pa mm.PhysAddr, perm Perm) DirEntry {
	return DirEntry(uint32(pa)&dirSupersectionAddrMask | dirSupersectionBit | uint32(perm&0x3)<<dirSectionAPShift | dirTypeSection)
}

// Kind returns the format of the descriptor.
func (e DirEntry) Kind() DirKind {
	switch uint32(e) & descTypeMask {
	case 0:
		return DirFault
	case dirTypeTable:
		return DirTable
	case dirTypeSection:
		if uint32(e)&dirSupersectionBit != 0 {
			return DirSupersection
		}
		return DirSection
	default:
		return DirReserved
	}
}

// Present returns true if the entry does not generate a translation fault.
func (e DirEntry) Present() bool {
	return uint32(e)&descTypeMask != 0
}

// Address returns the physical address encoded in the descriptor: the table
// base for table entries and the mapped base for (super)sections.
func (e DirEntry) Address() mm.PhysAddr {
	switch e.Kind() {
	case DirTable:
		return mm.PhysAddr(uint32(e) & dirTableAddrMask)
	case DirSection:
		return mm.PhysAddr(uint32(e) & dirSectionAddrMask)
	case DirSupersection:
		return mm.PhysAddr(uint32(e) & dirSupersectionAddrMask)
	default:
		return 0
	}
}

// Perm returns the access permissions of a (super)section entry. Table
// entries carry no permissions of their own.
func (e DirEntry) Perm() Perm {
	switch e.Kind() {
	case DirSection, DirSupersection:
		return Perm((uint32(e) >> dirSectionAPShift) & 0x3)
	default:
		return PermNone
	}
}

// Domain returns the domain that the entry belongs to.
func (e DirEntry) Domain() uint8 {
	if e.Kind() == DirSupersection {
		return 0
	}
	return uint8((uint32(e) & dirDomainMask) >> dirDomainShift)
}

// PageKind identifies the format of a second-level entry.
type PageKind uint8

const (
	// PageFault entries generate a translation fault.
	PageFault PageKind = iota

	// PageLarge entries map 64K of memory. Each of the 16 table entries
	// covering the large page holds a copy.
	PageLarge

	// PageSmall entries map 4K of memory.
	PageSmall
)

// String implements fmt.Stringer.
func (k PageKind) String() string {
	switch k {
	case PageFault:
		return "fault"
	case PageLarge:
		return "large"
	default:
		return "small"
	}
}

// PageEntry is a second-level translation descriptor.
type PageEntry uint32

// NewSmallPageEntry returns a descriptor mapping the 4K page at pa.
func NewSmallPageEntry(pa mm.PhysAddr, perm Perm) PageEntry {
	return PageEntry(uint32(pa)&pageSmallAddrMask | uint32(perm&0x3)<<pageAPShift | pageTypeSmall)
}

// NewLargePageEntry returns a descriptor mapping the 64K page at pa.
func NewLargePageEntry(pa mm.PhysAddr, perm Perm) PageEntry {
	return PageEntry(uint32(pa)&pageLargeAddrMask | uint32(perm&0x3)<<pageAPShift | pageTypeLarge)
}

// Kind returns the format of the descriptor. Bit 0 of a small page entry is
// the execute-never flag so any entry with bit 1 set is a small page.
func (e PageEntry) Kind() PageKind {
	switch {
	case uint32(e)&pageTypeSmall != 0:
		return PageSmall
	case uint32(e)&pageTypeLarge != 0:
		return PageLarge
	default:
		return PageFault
	}
}

// Present returns true if the entry does not generate a translation fault.
func (e PageEntry) Present() bool {
	return uint32(e)&descTypeMask != 0
}

// Address returns the physical base address of the mapped page.
func (e PageEntry) Address() mm.PhysAddr {
	switch e.Kind() {
	case PageSmall:
		return mm.PhysAddr(uint32(e) & pageSmallAddrMask)
	case PageLarge:
		return mm.PhysAddr(uint32(e) & pageLargeAddrMask)
	default:
		return 0
	}
}

// Perm returns the access permissions of the entry.
func (e PageEntry) Perm() Perm {
	if !e.Present() {
		return PermNone
	}
	return Perm((uint32(e) >> pageAPShift) & 0x3)
}
