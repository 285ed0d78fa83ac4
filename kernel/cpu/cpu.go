// Package cpu exposes the ARM system control coprocessor (CP15) operations
// needed to configure and enable address translation.
package cpu

import "armos/kernel"

// ErrHalted is the value that Halt panics with when the kernel runs outside
// of an ARM machine (e.g. inside the simulator). Callers that host the
// kernel recover it to detect a halted CPU.
var ErrHalted = &kernel.Error{Module: "cpu", Message: "cpu halted"}

// MMU is implemented by objects that provide access to the CP15 registers
// controlling address translation. All operations are side-effecting and
// cannot fail; misuse results in a hardware fault rather than an error.
type MMU interface {
	// SetDomainAccess writes the domain access control register (DACR).
	SetDomainAccess(value uint32)

	// SetTranslationTableBase0 writes TTBR0.
	SetTranslationTableBase0(addr uint32)

	// SetTranslationTableBase1 writes TTBR1.
	SetTranslationTableBase1(addr uint32)

	// SetTranslationTableControl writes the translation table base
	// control register (TTBCR).
	SetTranslationTableControl(value uint32)

	// ReadSystemControl returns the contents of the system control
	// register (SCTLR).
	ReadSystemControl() uint32

	// WriteSystemControl writes the system control register (SCTLR).
	WriteSystemControl(value uint32)

	// InvalidateTLBEntry invalidates the unified TLB entry that caches
	// the translation for virtAddr.
	InvalidateTLBEntry(virtAddr uint32)
}

// System control register bits.
const (
	// SCTLRMMUEnable enables address translation.
	SCTLRMMUEnable = uint32(1 << 0)

	// SCTLRAlignmentCheck enables strict alignment fault checking.
	SCTLRAlignmentCheck = uint32(1 << 1)

	// SCTLRDataCache enables the data and unified caches.
	SCTLRDataCache = uint32(1 << 2)

	// SCTLRInstructionCache enables the instruction cache.
	SCTLRInstructionCache = uint32(1 << 12)
)

// DomainAccess describes the access type granted to a memory domain.
type DomainAccess uint32

const (
	// DomainNoAccess generates a domain fault for any access.
	DomainNoAccess DomainAccess = 0

	// DomainClient checks accesses against the permission bits of the
	// translation table entries.
	DomainClient DomainAccess = 1

	// DomainManager grants access without checking permission bits.
	DomainManager DomainAccess = 3
)

// DomainAccessValue returns the DACR value that grants access to domain and
// no access to any other domain. Valid domains are 0-15.
func DomainAccessValue(domain uint8, access DomainAccess) uint32 {
	return (uint32(access) & 0x3) << (2 * uint32(domain&0xf))
}
