package mm

const (
	// PageShift is equal to log2(PageSize). It converts between small page
	// numbers and addresses.
	PageShift = 12

	// PageSize defines the size of a small page in bytes.
	PageSize = 1 << PageShift

	// LargePageShift is equal to log2(LargePageSize).
	LargePageShift = 16

	// LargePageSize defines the size of a large page in bytes.
	LargePageSize = 1 << LargePageShift

	// SectionShift is equal to log2(SectionSize). Each directory entry
	// covers one section of the virtual address space.
	SectionShift = 20

	// SectionSize defines the size of a section mapping in bytes.
	SectionSize = 1 << SectionShift

	// SupersectionShift is equal to log2(SupersectionSize).
	SupersectionShift = 24

	// SupersectionSize defines the size of a supersection mapping in bytes.
	SupersectionSize = 1 << SupersectionShift

	// RegionShift is equal to log2(RegionSize).
	RegionShift = 14

	// RegionSize is the unit in which physical memory is handed out.
	RegionSize = 1 << RegionShift

	// DirEntries is the number of entries in the translation directory.
	DirEntries = 1 << (32 - SectionShift)

	// TableEntries is the number of entries in a second-level table.
	TableEntries = 1 << (SectionShift - PageShift)

	// DirAlignment is the alignment required by the MMU for the
	// translation directory.
	DirAlignment = 16 * 1024
)
