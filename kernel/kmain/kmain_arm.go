package kmain

import (
	"armos/device"
	_ "armos/device/uart" // registers the console driver
	"armos/kernel"
	"armos/kernel/atags"
	"armos/kernel/cpu"
	"armos/kernel/kfmt"
	"armos/kernel/mm"
	"armos/kernel/mm/kmm"
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
)

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. It is invoked by the rt0 assembly code after setting
// up the boot stack with the processor still using physical addresses.
//
// The rt0 code passes the address of the ATAG list provided by the boot
// loader as well as the physical addresses for the kernel start/end.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(atagsPtr, kernelStart, kernelEnd uintptr) {
	atags.SetInfoPtr(atagsPtr)

	layout := LayoutFromBootInfo(kmm.VersatilePB(), kernelStart, kernelEnd)
	newBus := func(mgr *kmm.Manager) device.Bus {
		return device.MMIOBus{Mapper: mgr}
	}

	if _, err := Boot(layout, mm.NewDirectMap(0), cpu.CP15{}, newBus, OptionsFromBootInfo()); err != nil {
		kfmt.Panic(err)
	}

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	kfmt.Panic(errKmainReturned)
}
