package cpu

// Emulated is a software model of the CP15 translation registers. It records
// every register write and TLB invalidation so that hosted code (tests and
// the simulator) can drive the memory-management core without hardware.
type Emulated struct {
	DACR  uint32
	TTBR0 uint32
	TTBR1 uint32
	TTBCR uint32
	SCTLR uint32

	// Invalidations lists the virtual addresses passed to
	// InvalidateTLBEntry in call order.
	Invalidations []uint32
}

// SetDomainAccess implements MMU.
func (e *Emulated) SetDomainAccess(value uint32) { e.DACR = value }

// SetTranslationTableBase0 implements MMU.
func (e *Emulated) SetTranslationTableBase0(addr uint32) { e.TTBR0 = addr }

// SetTranslationTableBase1 implements MMU.
func (e *Emulated) SetTranslationTableBase1(addr uint32) { e.TTBR1 = addr }

// SetTranslationTableControl implements MMU.
func (e *Emulated) SetTranslationTableControl(value uint32) { e.TTBCR = value }

// ReadSystemControl implements MMU.
func (e *Emulated) ReadSystemControl() uint32 { return e.SCTLR }

// WriteSystemControl implements MMU.
func (e *Emulated) WriteSystemControl(value uint32) { e.SCTLR = value }

// InvalidateTLBEntry implements MMU.
func (e *Emulated) InvalidateTLBEntry(virtAddr uint32) {
	e.Invalidations = append(e.Invalidations, virtAddr)
}

// TranslationEnabled returns true if the MMU enable bit is set in SCTLR.
func (e *Emulated) TranslationEnabled() bool {
	return e.SCTLR&SCTLRMMUEnable != 0
}
