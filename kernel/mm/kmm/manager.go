// Package kmm drives the one-time bring-up of the memory-management unit and
// owns the resulting memory manager: the region allocator, the translation
// tables and the device window allocator.
package kmm

import (
	"armos/kernel"
	"armos/kernel/cpu"
	"armos/kernel/kfmt"
	"armos/kernel/mm"
	"armos/kernel/mm/pmm"
	"armos/kernel/mm/vmm"
)

// State describes how far the bring-up sequence has progressed.
type State uint8

const (
	// StateUntranslated is the initial state; the processor uses
	// physical addresses directly.
	StateUntranslated State = iota

	// StateTablesBuilt means the directory maps RAM both at its physical
	// address and at the kernel base, plus the console and kernel stack.
	StateTablesBuilt

	// StateTranslating is terminal: translation is enabled and only the
	// kernel-base mapping of RAM remains.
	StateTranslating
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUntranslated:
		return "untranslated"
	case StateTablesBuilt:
		return "tables-built"
	case StateTranslating:
		return "translating"
	default:
		return "unknown"
	}
}

var (
	// panicFn is mocked by tests.
	panicFn = kfmt.Panic

	errInvalidTransition = &kernel.Error{Module: "kmm", Message: "operation not permitted in the current bring-up state"}
)

// Manager is the kernel's memory manager. It is created once at boot and
// is the only sanctioned way for the rest of the kernel to touch physical
// memory ownership or the translation tables.
type Manager struct {
	layout Layout
	mem    mm.Memory
	mmu    cpu.MMU
	state  State

	regions *pmm.Allocator
	tables  *vmm.PageTables
	windows *vmm.WindowAllocator
}

// New returns a Manager in StateUntranslated. mem must give access to
// physical memory; if it implements mm.Relocatable it is moved to the
// kernel base once translation is enabled.
func New(layout Layout, mem mm.Memory, mmu cpu.MMU) (*Manager, *kernel.Error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	return &Manager{
		layout: layout,
		mem:    mem,
		mmu:    mmu,
	}, nil
}

// State returns the current bring-up state.
func (m *Manager) State() State { return m.state }

// Layout returns the layout the manager was created with.
func (m *Manager) Layout() Layout { return m.layout }

// Regions returns the region allocator. It is nil before BuildTables.
func (m *Manager) Regions() *pmm.Allocator { return m.regions }

// Tables returns the translation tables. It is nil before BuildTables.
func (m *Manager) Tables() *vmm.PageTables { return m.tables }

// Windows returns the device window allocator. It is nil before
// BuildTables.
func (m *Manager) Windows() *vmm.WindowAllocator { return m.windows }

// BuildTables initializes the region allocator and populates the
// directory: all of RAM is mapped with sections both at its physical
// address and at the kernel base, the console section is identity mapped
// and the kernel stack is mapped onto the boot stack.
func (m *Manager) BuildTables() *kernel.Error {
	if m.state != StateUntranslated {
		return errInvalidTransition
	}

	l := m.layout
	regions, err := pmm.New(m.mem, l.MemorySize, l.KernelStart, l.KernelEnd)
	if err != nil {
		return err
	}

	tables, err := vmm.New(m.mem, regions, m.mmu, l.DirectoryAddr)
	if err != nil {
		return err
	}
	tables.Clear()

	for off := uint64(0); off < uint64(l.MemorySize); off += mm.SectionSize {
		pa := mm.PhysAddr(off)
		if err = tables.MapSection(l.KernelBase+mm.VirtAddr(off), pa, vmm.PermKernelRW); err != nil {
			return err
		}
		if err = tables.MapSection(mm.VirtAddr(off), pa, vmm.PermKernelRW); err != nil {
			return err
		}
	}

	console := l.ConsoleSection()
	if err = tables.MapSection(mm.VirtAddr(console), console, vmm.PermKernelRW); err != nil {
		return err
	}

	tables.BootMap(l.KernelStackTop-mm.VirtAddr(l.KernelStackSize), l.KernelStackSize, l.BootStack)

	windows, err := vmm.NewWindowAllocator(tables, l.MMIOBase, l.MMIOLimit)
	if err != nil {
		return err
	}

	m.regions, m.tables, m.windows = regions, tables, windows
	m.state = StateTablesBuilt
	return nil
}

// EnableTranslation configures domain 0 as a client domain, loads the
// directory into both translation table base registers and turns on the
// MMU. The identity mapping of RAM is then retired so that only the
// kernel-base mapping remains. There is no way back to untranslated mode.
func (m *Manager) EnableTranslation() *kernel.Error {
	if m.state != StateTablesBuilt {
		return errInvalidTransition
	}

	dir := uint32(m.tables.DirectoryAddress())
	m.mmu.SetDomainAccess(cpu.DomainAccessValue(0, cpu.DomainClient))
	m.mmu.SetTranslationTableBase0(dir)
	m.mmu.SetTranslationTableBase1(dir)
	m.mmu.SetTranslationTableControl(0)
	m.mmu.WriteSystemControl(m.mmu.ReadSystemControl() | cpu.SCTLRMMUEnable)

	if r, ok := m.mem.(mm.Relocatable); ok {
		r.Relocate(uintptr(m.layout.KernelBase))
	}

	m.retireIdentityMap()
	m.state = StateTranslating
	return nil
}

// retireIdentityMap clears the identity sections covering RAM. The console
// section lies outside RAM and is kept.
func (m *Manager) retireIdentityMap() {
	for off := uint64(0); off < uint64(m.layout.MemorySize); off += mm.SectionSize {
		m.tables.ClearSection(mm.VirtAddr(off))
	}
}

// The primitives below need the tables built by BuildTables. Before that,
// the ones that can report an error return errInvalidTransition and the
// rest panic.

// AllocRegion allocates a physical region. See pmm.Allocator.Alloc.
func (m *Manager) AllocRegion(flags pmm.AllocFlag) (mm.Region, *kernel.Error) {
	if m.regions == nil {
		return mm.InvalidRegion, errInvalidTransition
	}
	return m.regions.Alloc(flags)
}

// FreeRegion returns an unreferenced region. See pmm.Allocator.Free.
func (m *Manager) FreeRegion(region mm.Region) {
	if m.regions == nil {
		panicFn(errInvalidTransition)
		return
	}
	m.regions.Free(region)
}

// DecRef drops a reference to region. See pmm.Allocator.DecRef.
func (m *Manager) DecRef(region mm.Region) {
	if m.regions == nil {
		panicFn(errInvalidTransition)
		return
	}
	m.regions.DecRef(region)
}

// Insert maps region at va. See vmm.PageTables.Insert.
func (m *Manager) Insert(region mm.Region, va mm.VirtAddr, perm vmm.Perm) *kernel.Error {
	if m.tables == nil {
		return errInvalidTransition
	}
	return m.tables.Insert(region, va, perm)
}

// Remove unmaps the page at va. See vmm.PageTables.Remove.
func (m *Manager) Remove(va mm.VirtAddr) {
	if m.tables == nil {
		panicFn(errInvalidTransition)
		return
	}
	m.tables.Remove(va)
}

// Lookup resolves the region mapped at va. See vmm.PageTables.Lookup.
func (m *Manager) Lookup(va mm.VirtAddr) (mm.Region, *vmm.PageEntry, *kernel.Error) {
	if m.tables == nil {
		return mm.InvalidRegion, nil, errInvalidTransition
	}
	return m.tables.Lookup(va)
}

// MapDevice maps a device register block into the MMIO range. See
// vmm.WindowAllocator.MapDevice.
func (m *Manager) MapDevice(pa mm.PhysAddr, size uint32) (mm.VirtAddr, *kernel.Error) {
	if m.windows == nil {
		return 0, errInvalidTransition
	}
	return m.windows.MapDevice(pa, size)
}

// Invalidate drops any cached translation for va.
func (m *Manager) Invalidate(va mm.VirtAddr) {
	m.mmu.InvalidateTLBEntry(uint32(va))
}

// Translate returns the physical address va maps to. Nothing is mapped
// before the tables are built.
func (m *Manager) Translate(va mm.VirtAddr) (mm.PhysAddr, bool) {
	if m.tables == nil {
		return 0, false
	}
	return m.tables.Translate(va)
}
