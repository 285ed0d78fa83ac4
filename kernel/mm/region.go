package mm

import "math"

// Region describes the index of a fixed-size unit of physical memory.
type Region uint32

const (
	// InvalidRegion is returned by region allocators when they fail to
	// reserve a region.
	InvalidRegion = Region(math.MaxUint32)
)

// Valid returns true if this is a valid region.
func (r Region) Valid() bool {
	return r != InvalidRegion
}

// Address returns the physical address where this Region starts.
func (r Region) Address() PhysAddr {
	return PhysAddr(uint32(r) << RegionShift)
}

// RegionFromAddress returns the Region that contains the given physical
// address. Addresses that are not region-aligned are rounded down to the
// region that contains them.
func RegionFromAddress(pa PhysAddr) Region {
	return Region(uint32(pa) >> RegionShift)
}
