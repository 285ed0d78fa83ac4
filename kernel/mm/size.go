package mm

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// Regions returns the number of whole regions that fit in s.
func (s Size) Regions() uint32 {
	return uint32(s >> RegionShift)
}
