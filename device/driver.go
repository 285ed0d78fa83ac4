// Package device defines the driver model shared by all device drivers and
// the registry the hal uses to discover them.
package device

import (
	"armos/kernel"
	"armos/kernel/mm"
	"io"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. The driver maps its
	// registers through bus. If the driver init code needs to log some
	// output, it can use the supplied io.Writer in conjunction with a
	// call to kfmt.Fprintf.
	DriverInit(w io.Writer, bus Bus) *kernel.Error
}

// Mapper reserves virtual windows for device register blocks.
type Mapper interface {
	MapDevice(pa mm.PhysAddr, size uint32) (mm.VirtAddr, *kernel.Error)
}

// Bus gives drivers access to device registers.
type Bus interface {
	Mapper

	// Registers returns an accessor for the register block mapped at va.
	Registers(va mm.VirtAddr) Registers
}

// ProbeFn is a function that scans for the presence of a particular
// piece of hardware and returns a driver for it.
type ProbeFn func() Driver

// DetectOrder specifies when each driver's probe function will be invoked
// by the hal package.
type DetectOrder int8

const (
	// DetectOrderEarly specifies that the driver's probe function should
	// be executed at the beginning of the HW detection phase. It is used
	// by the console UART so that the output of the remaining probes
	// reaches it.
	DetectOrderEarly DetectOrder = -128

	// DetectOrderNormal is used by drivers without ordering requirements.
	DetectOrderNormal DetectOrder = 0

	// DetectOrderLast specifies that the driver's probe function should
	// be executed at the end of the HW detection phase.
	DetectOrderLast DetectOrder = 127
)

// DriverInfo is a driver-defined struct that is passed to calls to
// RegisterDriver.
type DriverInfo struct {
	// Order specifies at which stage of the HW detection step should
	// the probe function be invoked.
	Order DetectOrder

	// Probe is a function that checks for the presence of a particular
	// piece of hardware and returns back a driver for it.
	Probe ProbeFn
}

// DriverInfoList is a list of registered drivers that implements
// sort.Interface.
type DriverInfoList []*DriverInfo

// Len returns the length of the driver info list.
func (l DriverInfoList) Len() int { return len(l) }

// Swap exchanges 2 elements in the driver info list.
func (l DriverInfoList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

// Less compares 2 elements of the driver info list.
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }

var (
	// registeredDrivers tracks the drivers registered via a call to
	// RegisterDriver.
	registeredDrivers DriverInfoList
)

// RegisterDriver adds the supplied driver info entry to the list of
// registered drivers. The list is consulted by the hal package when
// probing for hardware.
func RegisterDriver(info *DriverInfo) {
	registeredDrivers = append(registeredDrivers, info)
}

// DriverList returns the list of registered drivers.
func DriverList() DriverInfoList {
	return registeredDrivers
}
