// Package kmain contains the kernel entry point and the boot sequence it
// drives.
package kmain

import (
	"armos/device"
	"armos/kernel"
	"armos/kernel/atags"
	"armos/kernel/cpu"
	"armos/kernel/hal"
	"armos/kernel/kfmt"
	"armos/kernel/mm"
	"armos/kernel/mm/kmm"
)

// BusFactory returns the bus that drivers use to reach their registers. It
// is invoked once the memory manager can hand out device windows.
type BusFactory func(*kmm.Manager) device.Bus

// Options control the optional parts of the boot sequence.
type Options struct {
	// SelfCheck runs the memory manager self-checks after hardware
	// detection.
	SelfCheck bool
}

// LayoutFromBootInfo adjusts base using the boot tags passed to
// atags.SetInfo and the kernel image bounds reported by the loader. A zero
// kernelEnd keeps the layout's image bounds.
func LayoutFromBootInfo(base kmm.Layout, kernelStart, kernelEnd uintptr) kmm.Layout {
	if size := atags.MemorySize(); size != 0 {
		// RAM beyond what fits above the kernel base stays unused.
		if limit := mm.Size(1<<32 - uint64(base.KernelBase)); size > limit {
			size = limit
		}
		base.MemorySize = size &^ (mm.SectionSize - 1)
	}

	if kernelEnd != 0 && mm.PhysAddr(kernelEnd) > base.KernelEnd {
		base.KernelEnd = mm.PhysAddr(mm.PageRoundUp(uint32(kernelEnd)))
	}
	if kernelEnd != 0 && mm.PhysAddr(kernelStart) < base.KernelStart {
		base.KernelStart = mm.PhysAddr(mm.PageRoundDown(uint32(kernelStart)))
	}

	return base
}

// OptionsFromBootInfo reads the boot options from the kernel command line.
func OptionsFromBootInfo() Options {
	return Options{
		SelfCheck: atags.GetBootCmdLine()["mmcheck"] == "1",
	}
}

// Boot brings up the memory manager, enables translation and probes for
// hardware. The returned manager is valid even when the self-checks fail.
func Boot(layout kmm.Layout, mem mm.Memory, mmu cpu.MMU, newBus BusFactory, opts Options) (*kmm.Manager, *kernel.Error) {
	mgr, err := kmm.New(layout, mem, mmu)
	if err != nil {
		return nil, err
	}

	if err = mgr.BuildTables(); err != nil {
		return nil, err
	}
	kfmt.Printf("[kmain] %d regions managed, %d free\n", mgr.Regions().RegionCount(), mgr.Regions().FreeCount())

	if err = mgr.EnableTranslation(); err != nil {
		return nil, err
	}
	kfmt.Printf("[kmain] translation enabled (directory at 0x%x)\n", uint32(mgr.Tables().DirectoryAddress()))

	hal.DetectHardware(newBus(mgr))

	if opts.SelfCheck {
		if err = mgr.SelfCheck(); err != nil {
			return mgr, err
		}
	}

	return mgr, nil
}
