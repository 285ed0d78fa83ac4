// Package uart provides a polling driver for the ARM PrimeCell PL011 UART
// used as the kernel console.
package uart

import (
	"armos/device"
	"armos/kernel"
	"armos/kernel/kfmt"
	"armos/kernel/mm"
	"io"
)

// Register offsets and bits.
const (
	RegDR = 0x00
	RegFR = 0x18
	RegCR = 0x30

	// FRTXFF is set while the transmit FIFO is full.
	FRTXFF = 1 << 5

	CRUARTEN = 1 << 0
	CRTXE    = 1 << 8

	// registerBlockSize is the size of the PL011 register window.
	registerBlockSize = 0x1000
)

// DefaultConsoleAddr is the physical address of UART0 on the Versatile/PB
// board.
const DefaultConsoleAddr = mm.PhysAddr(0x101f1000)

var (
	// consoleAddr is the UART that probeForConsole reports.
	consoleAddr = DefaultConsoleAddr

	errNotInitialized = &kernel.Error{Module: "uart", Message: "device registers are not mapped"}
)

// SetConsoleAddr changes the physical address probed for the console UART.
// It must be called before hardware detection.
func SetConsoleAddr(pa mm.PhysAddr) {
	consoleAddr = pa
}

// PL011 drives a PL011 UART in polling mode. Only transmission is
// supported.
type PL011 struct {
	physAddr mm.PhysAddr
	virtAddr mm.VirtAddr
	regs     device.Registers
}

// NewPL011 returns a driver for the UART whose registers live at physAddr.
func NewPL011(physAddr mm.PhysAddr) *PL011 {
	return &PL011{physAddr: physAddr}
}

// DriverName returns the name of this driver.
func (u *PL011) DriverName() string {
	return "pl011_uart"
}

// DriverVersion returns the version of this driver.
func (u *PL011) DriverVersion() (uint16, uint16, uint16) {
	return 0, 0, 1
}

// DriverInit maps the UART registers into the MMIO range and enables the
// transmitter.
func (u *PL011) DriverInit(w io.Writer, bus device.Bus) *kernel.Error {
	va, err := bus.MapDevice(u.physAddr, registerBlockSize)
	if err != nil {
		return err
	}

	u.virtAddr = va
	u.regs = bus.Registers(va)
	u.regs.Write32(RegCR, u.regs.Read32(RegCR)|CRUARTEN|CRTXE)

	kfmt.Fprintf(w, "mapped registers 0x%x to 0x%x\n", uint32(u.physAddr), uint32(va))
	return nil
}

// WriteByte transmits b. It busy-waits, without a timeout, until the
// transmit FIFO has room.
func (u *PL011) WriteByte(b byte) error {
	if u.regs == nil {
		return errNotInitialized
	}

	for u.regs.Read32(RegFR)&FRTXFF != 0 {
	}
	u.regs.Write32(RegDR, uint32(b))
	return nil
}

// Write implements io.Writer. Line feeds are sent as CR LF.
func (u *PL011) Write(p []byte) (int, error) {
	for i, b := range p {
		if b == '\n' {
			if err := u.WriteByte('\r'); err != nil {
				return i, err
			}
		}
		if err := u.WriteByte(b); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// probeForConsole reports the console UART. The PL011 has no discovery
// mechanism so its presence is implied by the board.
func probeForConsole() device.Driver {
	return NewPL011(consoleAddr)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderEarly,
		Probe: probeForConsole,
	})
}
