package pmm

import "armos/kernel/mm"

// Ref is an owning handle for one reference on a region. The reference is
// dropped exactly once, either by Release or by whoever the reference is
// handed to through Transfer.
type Ref struct {
	alloc  *Allocator
	region mm.Region
	owned  bool
}

// Acquire takes a reference on region and returns a handle that owns it.
func (alloc *Allocator) Acquire(region mm.Region) *Ref {
	alloc.IncRef(region)
	return &Ref{alloc: alloc, region: region, owned: true}
}

// Region returns the region the handle refers to.
func (ref *Ref) Region() mm.Region {
	return ref.region
}

// Release drops the reference if the handle still owns it. Subsequent calls
// are no-ops.
func (ref *Ref) Release() {
	if !ref.owned {
		return
	}
	ref.owned = false
	ref.alloc.DecRef(ref.region)
}

// Transfer hands the reference over to a longer-lived owner, such as a page
// table entry, which becomes responsible for dropping it. Release becomes a
// no-op.
func (ref *Ref) Transfer() mm.Region {
	ref.owned = false
	return ref.region
}
