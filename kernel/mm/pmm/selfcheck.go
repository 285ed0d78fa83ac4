package pmm

import (
	"armos/kernel"
	"armos/kernel/kfmt"
	"armos/kernel/mm"
)

var (
	errCheckNoFreeRegions  = &kernel.Error{Module: "pmm", Message: "self-check: free list is empty"}
	errCheckFreeReferenced = &kernel.Error{Module: "pmm", Message: "self-check: referenced region found on the free list"}
	errCheckFreeCount      = &kernel.Error{Module: "pmm", Message: "self-check: free list length does not match the free count"}
	errCheckAlloc          = &kernel.Error{Module: "pmm", Message: "self-check: unable to allocate three distinct regions"}
	errCheckExhaustion     = &kernel.Error{Module: "pmm", Message: "self-check: allocation succeeded with an empty free list"}
	errCheckReuse          = &kernel.Error{Module: "pmm", Message: "self-check: freed region was not handed out first"}
	errCheckZeroFill       = &kernel.Error{Module: "pmm", Message: "self-check: AllocZero returned dirty memory"}
	errCheckLeak           = &kernel.Error{Module: "pmm", Message: "self-check: free region count changed"}
)

// SelfCheck verifies the integrity of the free list and exercises the
// allocation, exhaustion, recovery and zero-fill paths. The allocator is
// left in the state it was found in.
func (alloc *Allocator) SelfCheck() *kernel.Error {
	if err := alloc.checkFreeList(); err != nil {
		return err
	}
	kfmt.Printf("[pmm] free list check succeeded\n")

	if err := alloc.checkAlloc(); err != nil {
		return err
	}
	kfmt.Printf("[pmm] region allocation check succeeded\n")

	return nil
}

func (alloc *Allocator) checkFreeList() *kernel.Error {
	if alloc.freeHead == mm.InvalidRegion {
		return errCheckNoFreeRegions
	}

	var (
		count uint32
		err   *kernel.Error
	)
	alloc.VisitFree(func(region mm.Region) bool {
		if info := alloc.regions[region]; info.refs != 0 || !info.free {
			err = errCheckFreeReferenced
			return false
		}
		count++
		return true
	})

	switch {
	case err != nil:
		return err
	case count != alloc.freeCount:
		return errCheckFreeCount
	}
	return nil
}

// allocThree allocates three regions and verifies they are distinct.
func (alloc *Allocator) allocThree() ([3]mm.Region, *kernel.Error) {
	var out [3]mm.Region
	for i := range out {
		region, err := alloc.Alloc(0)
		if err != nil {
			return out, errCheckAlloc
		}
		out[i] = region
	}

	if out[0] == out[1] || out[1] == out[2] || out[0] == out[2] {
		return out, errCheckAlloc
	}
	return out, nil
}

func (alloc *Allocator) checkAlloc() *kernel.Error {
	initialFree := alloc.freeCount

	rg, err := alloc.allocThree()
	if err != nil {
		return err
	}

	fl := alloc.DetachFreeList()
	defer func() {
		alloc.AttachFreeList(fl)
	}()

	if _, err = alloc.Alloc(0); err == nil {
		return errCheckExhaustion
	}

	// Free and re-allocate.
	for _, region := range rg {
		alloc.Free(region)
	}
	if rg, err = alloc.allocThree(); err != nil {
		return err
	}
	if _, err = alloc.Alloc(0); err == nil {
		return errCheckExhaustion
	}

	// Zero-fill.
	kernel.Memset(alloc.Bytes(rg[0]), 1)
	alloc.Free(rg[0])
	region, err := alloc.Alloc(AllocZero)
	if err != nil || region != rg[0] {
		return errCheckReuse
	}
	for _, b := range alloc.Bytes(region) {
		if b != 0 {
			return errCheckZeroFill
		}
	}

	for _, region := range rg {
		alloc.Free(region)
	}

	if alloc.freeCount+fl.count != initialFree {
		return errCheckLeak
	}

	return nil
}
