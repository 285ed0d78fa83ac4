package kmm

import (
	"armos/kernel"
	"armos/kernel/cpu"
	"armos/kernel/kfmt"
	"armos/kernel/mm"
	"armos/kernel/mm/physmem"
	"armos/kernel/mm/vmm"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// relocatingRAM records the offsets passed to Relocate.
type relocatingRAM struct {
	*physmem.RAM
	offsets []uintptr
}

func (r *relocatingRAM) Relocate(offset uintptr) {
	r.offsets = append(r.offsets, offset)
}

func newTestManager(t *testing.T) (*Manager, *relocatingRAM, *cpu.Emulated) {
	t.Helper()

	layout := VersatilePB()
	ram, err := physmem.New(layout.MemorySize)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ram.Close() })

	mem := &relocatingRAM{RAM: ram}
	mmu := new(cpu.Emulated)
	m, kerr := New(layout, mem, mmu)
	if kerr != nil {
		t.Fatal(kerr)
	}
	return m, mem, mmu
}

func TestLayoutValidate(t *testing.T) {
	if err := VersatilePB().Validate(); err != nil {
		t.Fatalf("expected the VersatilePB layout to be valid; got %v", err)
	}

	specs := []struct {
		mutate func(*Layout)
		expErr *kernel.Error
	}{
		{func(l *Layout) { l.MemorySize = 0 }, errLayoutMemorySize},
		{func(l *Layout) { l.MemorySize = 256*mm.Mb + 16*mm.Kb }, errLayoutMemorySize},
		{func(l *Layout) { l.MemorySize = 512 * mm.Mb }, errLayoutMemorySize},
		{func(l *Layout) { l.KernelBase = 0xe0080000 }, errLayoutKernelBase},
		{func(l *Layout) { l.KernelEnd = l.KernelStart }, errLayoutImage},
		{func(l *Layout) { l.DirectoryAddr = 0x00101000 }, errLayoutDirectory},
		{func(l *Layout) { l.DirectoryAddr = 0x00400000 }, errLayoutDirectory},
		{func(l *Layout) { l.KernelStackSize = 0 }, errLayoutStack},
		{func(l *Layout) { l.KernelStackTop = 0xf0100000 }, errLayoutStack},
		{func(l *Layout) { l.BootStack = 0x001fc000 }, errLayoutStack},
		{func(l *Layout) { l.MMIOLimit = l.MMIOBase }, errLayoutMMIO},
		{func(l *Layout) { l.MMIOLimit = 0xefffc000 }, errLayoutMMIO},
		{func(l *Layout) { l.MMIOBase = 0x08000000 }, errLayoutMMIO},
		{func(l *Layout) { l.ConsoleAddr = 0x00001000 }, errLayoutConsole},
		{func(l *Layout) { l.ConsoleAddr = 0x101f1004 }, errLayoutConsole},
	}

	for specIndex, spec := range specs {
		layout := VersatilePB()
		spec.mutate(&layout)

		if err := layout.Validate(); err != spec.expErr {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
		}
	}

	if _, err := New(Layout{}, nil, nil); err == nil {
		t.Fatal("expected New to reject an invalid layout")
	}
}

func TestBringUp(t *testing.T) {
	m, mem, mmu := newTestManager(t)
	layout := m.Layout()

	if m.State() != StateUntranslated {
		t.Fatalf("expected initial state to be %s; got %s", StateUntranslated, m.State())
	}
	if err := m.EnableTranslation(); err != errInvalidTransition {
		t.Fatalf("expected errInvalidTransition; got %v", err)
	}
	if _, err := m.MapDevice(layout.ConsoleAddr, mm.PageSize); err != errInvalidTransition {
		t.Fatalf("expected MapDevice to fail before the tables are built; got %v", err)
	}

	if err := m.BuildTables(); err != nil {
		t.Fatal(err)
	}
	if m.State() != StateTablesBuilt {
		t.Fatalf("expected state %s; got %s", StateTablesBuilt, m.State())
	}

	translations := []struct {
		va    mm.VirtAddr
		expPA mm.PhysAddr
	}{
		// identity and kernel-base views of RAM
		{0x00012345, 0x00012345},
		{0x0fffffff, 0x0fffffff},
		{0xf0012345, 0x00012345},
		{0xffffffff, 0x0fffffff},
		// console
		{0x101f1000, 0x101f1000},
		// kernel stack
		{0xefff8000, 0x00108000},
		{0xefffffff, 0x0010ffff},
	}
	for specIndex, spec := range translations {
		if pa, ok := m.Translate(spec.va); !ok || pa != spec.expPA {
			t.Errorf("[spec %d] expected 0x%x to translate to 0x%x; got 0x%x, %t", specIndex, spec.va, spec.expPA, pa, ok)
		}
	}
	if _, ok := m.Translate(0xefff7fff); ok {
		t.Error("expected the page below the kernel stack to be unmapped")
	}

	if err := m.BuildTables(); err != errInvalidTransition {
		t.Fatalf("expected a second BuildTables to fail; got %v", err)
	}

	if err := m.EnableTranslation(); err != nil {
		t.Fatal(err)
	}
	if m.State() != StateTranslating {
		t.Fatalf("expected state %s; got %s", StateTranslating, m.State())
	}

	expRegs := cpu.Emulated{
		DACR:  1,
		TTBR0: uint32(layout.DirectoryAddr),
		TTBR1: uint32(layout.DirectoryAddr),
		TTBCR: 0,
		SCTLR: cpu.SCTLRMMUEnable,
	}
	if diff := cmp.Diff(expRegs, *mmu, cmpopts.IgnoreFields(cpu.Emulated{}, "Invalidations")); diff != "" {
		t.Fatalf("unexpected register state (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]uintptr{uintptr(layout.KernelBase)}, mem.offsets); diff != "" {
		t.Fatalf("expected memory to be relocated to the kernel base (-want +got):\n%s", diff)
	}

	if _, ok := m.Translate(0x00012345); ok {
		t.Fatal("expected the identity mapping of RAM to be retired")
	}
	if pa, ok := m.Translate(0xf0012345); !ok || pa != 0x00012345 {
		t.Fatal("expected the kernel-base mapping to survive")
	}
	if _, ok := m.Translate(0x101f1000); !ok {
		t.Fatal("expected the console section to survive")
	}

	if err := m.EnableTranslation(); err != errInvalidTransition {
		t.Fatalf("expected translation to be irreversible; got %v", err)
	}
}

func TestSelfCheck(t *testing.T) {
	m, _, _ := newTestManager(t)

	if err := m.SelfCheck(); err != errInvalidTransition {
		t.Fatalf("expected self-check to require translation; got %v", err)
	}

	if err := m.BuildTables(); err != nil {
		t.Fatal(err)
	}
	if err := m.EnableTranslation(); err != nil {
		t.Fatal(err)
	}

	freeBefore := m.Regions().FreeCount()
	if err := m.SelfCheck(); err != nil {
		t.Fatalf("unexpected self-check error: %v", err)
	}

	if exp, got := freeBefore, m.Regions().FreeCount(); got != exp {
		t.Fatalf("expected %d free regions after self-check; got %d", exp, got)
	}
	if m.Tables().Entry(m.Layout().MMIOBase.DirIndex()).Present() {
		t.Fatal("expected the window self-check to release its second-level table")
	}

	// A live device window keeps its table across another run.
	va, err := m.MapDevice(m.Layout().ConsoleAddr, mm.PageSize)
	if err != nil {
		t.Fatal(err)
	}
	freeBefore = m.Regions().FreeCount()
	if err := m.SelfCheck(); err != nil {
		t.Fatalf("unexpected self-check error with a device window: %v", err)
	}
	if exp, got := freeBefore, m.Regions().FreeCount(); got != exp {
		t.Fatalf("expected %d free regions after self-check; got %d", exp, got)
	}
	if _, ok := m.Translate(va + 0x18); !ok {
		t.Fatal("expected the console window to survive the self-check")
	}
}

func TestManagerPrimitives(t *testing.T) {
	m, _, mmu := newTestManager(t)
	if err := m.BuildTables(); err != nil {
		t.Fatal(err)
	}
	if err := m.EnableTranslation(); err != nil {
		t.Fatal(err)
	}

	region, err := m.AllocRegion(0)
	if err != nil {
		t.Fatal(err)
	}
	if err = m.Insert(region, 0x00400000, vmm.PermUserRW); err != nil {
		t.Fatal(err)
	}
	if got, _, err := m.Lookup(0x00400000); err != nil || got != region {
		t.Fatalf("expected lookup to return region %d; got %d, %v", region, got, err)
	}

	mmu.Invalidations = nil
	m.Remove(0x00400000)
	if !m.Regions().IsFree(region) {
		t.Fatal("expected Remove to release the region")
	}
	if len(mmu.Invalidations) != 1 || mmu.Invalidations[0] != 0x00400000 {
		t.Fatalf("expected a single TLB invalidation; got %v", mmu.Invalidations)
	}

	va, err := m.MapDevice(m.Layout().ConsoleAddr, mm.PageSize)
	if err != nil {
		t.Fatal(err)
	}
	if pa, ok := m.Translate(va + 0x18); !ok || pa != m.Layout().ConsoleAddr+0x18 {
		t.Fatalf("expected device window to reach the console registers; got 0x%x", pa)
	}

	region, _ = m.AllocRegion(0)
	m.FreeRegion(region)
	if !m.Regions().IsFree(region) {
		t.Fatal("expected FreeRegion to release the region")
	}
}

func TestRemoveKernelStackPage(t *testing.T) {
	m, _, _ := newTestManager(t)
	if err := m.BuildTables(); err != nil {
		t.Fatal(err)
	}
	if err := m.EnableTranslation(); err != nil {
		t.Fatal(err)
	}

	layout := m.Layout()
	stackBase := layout.KernelStackTop - mm.VirtAddr(layout.KernelStackSize)
	topRegion := mm.RegionFromAddress(layout.BootStack + mm.PhysAddr(layout.KernelStackSize) - 1)

	// One reference for the kernel image plus one per mapped page.
	pagesPerRegion := uint32(mm.RegionSize / mm.PageSize)
	if exp, got := 1+pagesPerRegion, m.Regions().RefCount(topRegion); got != exp {
		t.Fatalf("expected stack region %d to hold %d references; got %d", topRegion, exp, got)
	}

	freeBefore := m.Regions().FreeCount()
	m.Remove(layout.KernelStackTop - mm.PageSize)

	if exp, got := pagesPerRegion, m.Regions().RefCount(topRegion); got != exp {
		t.Fatalf("expected stack region %d to hold %d references; got %d", topRegion, exp, got)
	}
	if m.Regions().IsFree(topRegion) || m.Regions().FreeCount() != freeBefore {
		t.Fatal("expected removing a stack page to leave the region allocated")
	}

	// Unmapping the whole stack still leaves the image reference.
	for va := stackBase; va < layout.KernelStackTop-mm.PageSize; va += mm.PageSize {
		m.Remove(va)
	}
	for pa := layout.BootStack; pa < layout.BootStack+mm.PhysAddr(layout.KernelStackSize); pa += mm.RegionSize {
		region := mm.RegionFromAddress(pa)
		if got := m.Regions().RefCount(region); got != 1 || m.Regions().IsFree(region) {
			t.Errorf("expected stack region %d to keep only the image reference; got %d", region, got)
		}
	}

	region, err := m.AllocRegion(0)
	if err != nil {
		t.Fatal(err)
	}
	if pa := region.Address(); pa >= layout.KernelStart && pa < layout.KernelEnd {
		t.Fatalf("expected AllocRegion to stay clear of the kernel image; got region %d", region)
	}
}

func TestPrimitivesBeforeBuildTables(t *testing.T) {
	defer func() {
		panicFn = kfmt.Panic
	}()

	var reported []*kernel.Error
	panicFn = func(e interface{}) {
		if err, ok := e.(*kernel.Error); ok {
			reported = append(reported, err)
		}
	}

	m, _, mmu := newTestManager(t)

	if _, err := m.AllocRegion(0); err != errInvalidTransition {
		t.Errorf("expected AllocRegion to fail with errInvalidTransition; got %v", err)
	}
	if err := m.Insert(0, 0x00400000, vmm.PermUserRW); err != errInvalidTransition {
		t.Errorf("expected Insert to fail with errInvalidTransition; got %v", err)
	}
	if region, pe, err := m.Lookup(0x00400000); err != errInvalidTransition || pe != nil || region != mm.InvalidRegion {
		t.Errorf("expected Lookup to fail with errInvalidTransition; got %d, %v, %v", region, pe, err)
	}
	if _, ok := m.Translate(0x00012345); ok {
		t.Error("expected nothing to translate before the tables are built")
	}

	m.Invalidate(0x00400000)
	if diff := cmp.Diff([]uint32{0x00400000}, mmu.Invalidations); diff != "" {
		t.Errorf("expected Invalidate to reach the TLB (-want +got):\n%s", diff)
	}

	m.FreeRegion(0)
	m.DecRef(0)
	m.Remove(0x00400000)
	if diff := cmp.Diff([]*kernel.Error{errInvalidTransition, errInvalidTransition, errInvalidTransition}, reported); diff != "" {
		t.Fatalf("unexpected panics (-want +got):\n%s", diff)
	}
}

func TestStateString(t *testing.T) {
	for state, exp := range map[State]string{
		StateUntranslated: "untranslated",
		StateTablesBuilt:  "tables-built",
		StateTranslating:  "translating",
		State(42):         "unknown",
	} {
		if got := state.String(); got != exp {
			t.Errorf("expected %d to stringify as %q; got %q", state, exp, got)
		}
	}
}
