package kmm

import (
	"armos/kernel"
	"armos/kernel/kfmt"
	"armos/kernel/mm"
	"armos/kernel/mm/vmm"
	"encoding/binary"
)

var (
	errCheckKernelMap   = &kernel.Error{Module: "kmm", Message: "self-check: RAM is not mapped at the kernel base"}
	errCheckDirectory   = &kernel.Error{Module: "kmm", Message: "self-check: unexpected directory entry"}
	errCheckInstalled   = &kernel.Error{Module: "kmm", Message: "self-check: installed mapping does not reach the expected memory"}
	errCheckInstallRefs = &kernel.Error{Module: "kmm", Message: "self-check: unexpected reference count on an installed mapping"}
)

// SelfCheck verifies the region allocator, the page mapping primitives, the
// device window allocator and the contents of the directory. It may only
// run once translation is enabled and leaves every region as it found it.
// The virtual space used by the window checks stays reserved.
func (m *Manager) SelfCheck() *kernel.Error {
	if m.state != StateTranslating {
		return errInvalidTransition
	}

	checks := []func() *kernel.Error{
		m.regions.SelfCheck,
		m.tables.SelfCheck,
		m.windows.SelfCheck,
		m.checkDirectory,
		m.checkInstalled,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}

	return nil
}

// checkDirectory verifies that RAM is mapped at the kernel base and that
// only the expected directory entries are present.
func (m *Manager) checkDirectory() *kernel.Error {
	l := m.layout

	for off := uint64(0); off < uint64(l.MemorySize); off += mm.PageSize {
		if pa, ok := m.tables.Translate(l.KernelBase + mm.VirtAddr(off)); !ok || uint64(pa) != off {
			return errCheckKernelMap
		}
	}

	var (
		kernFirst  = l.KernelBase.DirIndex()
		kernLast   = (l.KernelBase + mm.VirtAddr(l.MemorySize-1)).DirIndex()
		stackFirst = (l.KernelStackTop - mm.VirtAddr(l.KernelStackSize)).DirIndex()
		stackLast  = (l.KernelStackTop - 1).DirIndex()
		mmioFirst  = l.MMIOBase.DirIndex()
		mmioLast   = (l.MMIOLimit - 1).DirIndex()
		console    = mm.VirtAddr(l.ConsoleSection()).DirIndex()
	)

	for index := uint32(0); index < mm.DirEntries; index++ {
		de := m.tables.Entry(index)

		switch {
		case index >= kernFirst && index <= kernLast:
			if de.Kind() != vmm.DirSection || de.Perm() != vmm.PermKernelRW {
				return errCheckDirectory
			}
		case index == console, index >= stackFirst && index <= stackLast:
			if !de.Present() {
				return errCheckDirectory
			}
		case index >= mmioFirst && index <= mmioLast:
			// MMIO tables only exist once windows reach them.
			if de.Present() && de.Kind() != vmm.DirTable {
				return errCheckDirectory
			}
		default:
			if de.Present() {
				return errCheckDirectory
			}
		}
	}

	kfmt.Printf("[kmm] kernel directory check succeeded\n")
	return nil
}

func (m *Manager) readWord(va mm.VirtAddr) (uint32, bool) {
	pa, ok := m.tables.Translate(va)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.mem.Bytes(pa, 4)), true
}

func (m *Manager) writeWord(va mm.VirtAddr, value uint32) bool {
	pa, ok := m.tables.Translate(va)
	if !ok {
		return false
	}
	binary.LittleEndian.PutUint32(m.mem.Bytes(pa, 4), value)
	return true
}

// checkInstalled reads and writes memory through freshly installed
// mappings.
func (m *Manager) checkInstalled() *kernel.Error {
	const va = mm.VirtAddr(mm.PageSize)

	var (
		regions = m.regions
		rg      [3]mm.Region
		err     *kernel.Error
	)
	for i := range rg {
		if rg[i], err = regions.Alloc(0); err != nil {
			return err
		}
	}
	pp0, pp1, pp2 := rg[0], rg[1], rg[2]

	// pp0 is the next region handed out, so it becomes the table.
	regions.Free(pp0)
	kernel.Memset(regions.Bytes(pp1)[:mm.PageSize], 1)
	kernel.Memset(regions.Bytes(pp2)[:mm.PageSize], 2)

	if err = m.Insert(pp1, va, vmm.PermKernelRW); err != nil {
		return err
	}
	if regions.RefCount(pp1) != 1 {
		return errCheckInstallRefs
	}
	if word, ok := m.readWord(va); !ok || word != 0x01010101 {
		return errCheckInstalled
	}

	if err = m.Insert(pp2, va, vmm.PermKernelRW); err != nil {
		return err
	}
	if word, ok := m.readWord(va); !ok || word != 0x02020202 {
		return errCheckInstalled
	}
	if regions.RefCount(pp2) != 1 || regions.RefCount(pp1) != 0 {
		return errCheckInstallRefs
	}

	if !m.writeWord(va, 0x03030303) {
		return errCheckInstalled
	}
	if binary.LittleEndian.Uint32(regions.Bytes(pp2)) != 0x03030303 {
		return errCheckInstalled
	}

	m.Remove(va)
	if regions.RefCount(pp2) != 0 || !regions.IsFree(pp2) {
		return errCheckInstallRefs
	}
	if m.tables.Entry(va.DirIndex()).Present() || !regions.IsFree(pp0) {
		return errCheckInstallRefs
	}

	kfmt.Printf("[kmm] installed directory check succeeded\n")
	return nil
}
