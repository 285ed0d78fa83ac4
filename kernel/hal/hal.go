// Package hal probes the registered device drivers and wires the first
// console it finds to the kernel output sink.
package hal

import (
	"armos/device"
	"armos/kernel/kfmt"
	"bytes"
	"io"
	"sort"
)

// Console is a driver that can receive kernel output.
type Console interface {
	device.Driver
	io.Writer
}

// managedDevices contains the devices discovered by the HAL.
type managedDevices struct {
	activeConsole Console

	// activeDrivers tracks all initialized device drivers.
	activeDrivers []device.Driver
}

var (
	devices managedDevices
	strBuf  bytes.Buffer

	// setOutputSinkFn is replaced by tests.
	setOutputSinkFn = kfmt.SetOutputSink
)

// ActiveConsole returns the console that receives kernel output or nil if
// none was detected.
func ActiveConsole() Console {
	return devices.activeConsole
}

// ActiveDrivers returns the drivers that were successfully initialized.
func ActiveDrivers() []device.Driver {
	return devices.activeDrivers
}

// DetectHardware probes for hardware devices and initializes the appropriate
// drivers. Device registers are mapped through bus.
func DetectHardware(bus device.Bus) {
	drivers := device.DriverList()
	sort.Stable(drivers)

	probe(drivers, bus)
}

// probe executes the probe function for each driver and invokes
// onDriverInit for each successfully initialized driver.
func probe(driverInfoList device.DriverInfoList, bus device.Bus) {
	var w = kfmt.PrefixWriter{Sink: kfmt.Sink()}

	for _, info := range driverInfoList {
		drv := info.Probe()
		if drv == nil {
			continue
		}

		strBuf.Reset()
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&strBuf, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
		w.Prefix = strBuf.Bytes()

		if err := drv.DriverInit(&w, bus); err != nil {
			kfmt.Fprintf(&w, "init failed: %s\n", err.Message)
			continue
		}

		onDriverInit(drv)
		kfmt.Fprintf(&w, "initialized\n")
		devices.activeDrivers = append(devices.activeDrivers, drv)
	}
}

// onDriverInit is invoked by probe() whenever a piece of hardware is detected
// and successfully initialized. The first console becomes the output sink
// and receives everything buffered so far.
func onDriverInit(drv device.Driver) {
	cons, ok := drv.(Console)
	if !ok || devices.activeConsole != nil {
		return
	}

	devices.activeConsole = cons
	setOutputSinkFn(cons)
}
