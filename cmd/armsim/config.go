package main

import (
	"armos/kernel/mm"
	"armos/kernel/mm/kmm"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Machine describes the simulated board. Keys missing from the TOML file
// keep their Versatile/PB values.
type Machine struct {
	MemoryMB        uint32 `toml:"memory_mb"`
	KernelStart     uint32 `toml:"kernel_start"`
	KernelEnd       uint32 `toml:"kernel_end"`
	DirectoryAddr   uint32 `toml:"directory_addr"`
	KernelBase      uint32 `toml:"kernel_base"`
	KernelStackTop  uint32 `toml:"kernel_stack_top"`
	KernelStackSize uint32 `toml:"kernel_stack_size"`
	BootStack       uint32 `toml:"boot_stack"`
	MMIOBase        uint32 `toml:"mmio_base"`
	MMIOLimit       uint32 `toml:"mmio_limit"`
	ConsoleAddr     uint32 `toml:"console_addr"`

	// ATAGAddr is where the boot tags are placed in simulated RAM.
	ATAGAddr uint32 `toml:"atags_addr"`

	// CmdLine is passed to the kernel in an ATAG_CMDLINE tag.
	CmdLine string `toml:"cmdline"`
}

// defaultMachine returns the Versatile/PB board.
func defaultMachine() *Machine {
	l := kmm.VersatilePB()
	return &Machine{
		MemoryMB:        uint32(l.MemorySize / mm.Mb),
		KernelStart:     uint32(l.KernelStart),
		KernelEnd:       uint32(l.KernelEnd),
		DirectoryAddr:   uint32(l.DirectoryAddr),
		KernelBase:      uint32(l.KernelBase),
		KernelStackTop:  uint32(l.KernelStackTop),
		KernelStackSize: l.KernelStackSize,
		BootStack:       uint32(l.BootStack),
		MMIOBase:        uint32(l.MMIOBase),
		MMIOLimit:       uint32(l.MMIOLimit),
		ConsoleAddr:     uint32(l.ConsoleAddr),
		ATAGAddr:        0x100,
		CmdLine:         "console=ttyAMA0",
	}
}

// loadMachine overlays the TOML file at path on the default machine. Unknown
// keys are rejected.
func loadMachine(path string) (*Machine, error) {
	m := defaultMachine()
	if path == "" {
		return m, nil
	}

	md, err := toml.DecodeFile(path, m)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if err := m.Layout().Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Layout returns the kernel layout for the machine.
func (m *Machine) Layout() kmm.Layout {
	return kmm.Layout{
		MemorySize:      mm.Size(m.MemoryMB) * mm.Mb,
		KernelStart:     mm.PhysAddr(m.KernelStart),
		KernelEnd:       mm.PhysAddr(m.KernelEnd),
		DirectoryAddr:   mm.PhysAddr(m.DirectoryAddr),
		KernelBase:      mm.VirtAddr(m.KernelBase),
		KernelStackTop:  mm.VirtAddr(m.KernelStackTop),
		KernelStackSize: m.KernelStackSize,
		BootStack:       mm.PhysAddr(m.BootStack),
		MMIOBase:        mm.VirtAddr(m.MMIOBase),
		MMIOLimit:       mm.VirtAddr(m.MMIOLimit),
		ConsoleAddr:     mm.PhysAddr(m.ConsoleAddr),
	}
}
