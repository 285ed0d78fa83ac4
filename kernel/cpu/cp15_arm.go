package cpu

// CP15 implements MMU by executing the coprocessor instructions directly.
// It can only be used while running in a privileged processor mode.
type CP15 struct{}

// SetDomainAccess implements MMU.
func (CP15) SetDomainAccess(value uint32) { writeDACR(value) }

// SetTranslationTableBase0 implements MMU.
func (CP15) SetTranslationTableBase0(addr uint32) { writeTTBR0(addr) }

// SetTranslationTableBase1 implements MMU.
func (CP15) SetTranslationTableBase1(addr uint32) { writeTTBR1(addr) }

// SetTranslationTableControl implements MMU.
func (CP15) SetTranslationTableControl(value uint32) { writeTTBCR(value) }

// ReadSystemControl implements MMU.
func (CP15) ReadSystemControl() uint32 { return readSCTLR() }

// WriteSystemControl implements MMU.
func (CP15) WriteSystemControl(value uint32) { writeSCTLR(value) }

// InvalidateTLBEntry implements MMU.
func (CP15) InvalidateTLBEntry(virtAddr uint32) { invalidateTLBMVA(virtAddr) }

// Halt stops instruction execution.
func Halt()

func writeDACR(value uint32)
func writeTTBR0(value uint32)
func writeTTBR1(value uint32)
func writeTTBCR(value uint32)
func readSCTLR() uint32
func writeSCTLR(value uint32)
func invalidateTLBMVA(virtAddr uint32)
