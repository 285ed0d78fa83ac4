package main

import (
	"armos/device"
	"armos/device/uart"
	"armos/kernel"
	"armos/kernel/atags"
	"armos/kernel/cpu"
	"armos/kernel/kfmt"
	"armos/kernel/kmain"
	"armos/kernel/mm"
	"armos/kernel/mm/kmm"
	"armos/kernel/mm/physmem"
	"bytes"
	"fmt"

	"github.com/sirupsen/logrus"
)

// simBus resolves device windows back to the simulated device models.
type simBus struct {
	mgr     *kmm.Manager
	devices map[mm.PhysAddr]device.Registers
	log     logrus.FieldLogger
}

// MapDevice implements device.Mapper.
func (b *simBus) MapDevice(pa mm.PhysAddr, size uint32) (mm.VirtAddr, *kernel.Error) {
	va, err := b.mgr.MapDevice(pa, size)
	if err != nil {
		return 0, err
	}
	b.log.WithFields(logrus.Fields{
		"phys": fmt.Sprintf("0x%08x", uint32(pa)),
		"virt": fmt.Sprintf("0x%08x", uint32(va)),
		"size": size,
	}).Debug("device window mapped")
	return va, nil
}

// Registers implements device.Bus.
func (b *simBus) Registers(va mm.VirtAddr) device.Registers {
	w, ok := b.mgr.Windows().Window(va)
	if !ok {
		b.log.WithField("virt", fmt.Sprintf("0x%08x", uint32(va))).Warn("register access outside any device window")
		return absentDevice{}
	}
	if regs, ok := b.devices[w.Phys]; ok {
		return regs
	}
	return absentDevice{}
}

// absentDevice reads as zero and ignores writes.
type absentDevice struct{}

func (absentDevice) Read32(uint32) uint32   { return 0 }
func (absentDevice) Write32(uint32, uint32) {}

// consoleLog turns UART output into one log entry per line.
type consoleLog struct {
	log  logrus.FieldLogger
	line bytes.Buffer
}

func (c *consoleLog) Write(p []byte) (int, error) {
	for _, b := range p {
		switch b {
		case '\r':
		case '\n':
			c.log.Info(c.line.String())
			c.line.Reset()
		default:
			c.line.WriteByte(b)
		}
	}
	return len(p), nil
}

// Flush logs a pending partial line.
func (c *consoleLog) Flush() {
	if c.line.Len() != 0 {
		c.log.Info(c.line.String())
		c.line.Reset()
	}
}

// bootResult holds a booted simulated machine.
type bootResult struct {
	mgr     *kmm.Manager
	mmu     *cpu.Emulated
	ram     *physmem.RAM
	console *consoleLog
}

// Close releases the simulated RAM.
func (r *bootResult) Close() error {
	r.console.Flush()
	return r.ram.Close()
}

// bootMachine places the boot tags in simulated RAM and runs the kernel
// boot sequence against it. A kernel panic is reported as an error.
func bootMachine(m *Machine, selfCheck bool, log logrus.FieldLogger) (res *bootResult, err error) {
	cmdLine := m.CmdLine
	if selfCheck {
		cmdLine += " mmcheck=1"
	}

	layout := m.Layout()
	ram, err := physmem.New(layout.MemorySize)
	if err != nil {
		return nil, err
	}

	info := atags.NewBuilder().AddMem(0, uint32(layout.MemorySize)).AddCmdLine(cmdLine).Bytes()
	if uint64(m.ATAGAddr)+uint64(len(info)) > uint64(layout.KernelStart) {
		_ = ram.Close()
		return nil, fmt.Errorf("boot tags at 0x%x overlap the kernel image", m.ATAGAddr)
	}
	tags := ram.Bytes(mm.PhysAddr(m.ATAGAddr), uint32(len(info)))
	copy(tags, info)
	atags.SetInfo(tags)

	layout = kmain.LayoutFromBootInfo(layout, 0, 0)
	opts := kmain.OptionsFromBootInfo()

	var (
		console = &consoleLog{log: log.WithField("dev", "uart0")}
		mmu     = new(cpu.Emulated)
		models  = map[mm.PhysAddr]device.Registers{
			layout.ConsoleAddr: &uart.Model{Out: console},
		}
	)
	uart.SetConsoleAddr(layout.ConsoleAddr)

	defer func() {
		if r := recover(); r != nil {
			if r != cpu.ErrHalted {
				panic(r)
			}
			console.Flush()
			_ = ram.Close()
			res, err = nil, fmt.Errorf("kernel halted")
		}
	}()

	mgr, kerr := kmain.Boot(layout, ram, mmu, func(mgr *kmm.Manager) device.Bus {
		return &simBus{mgr: mgr, devices: models, log: log}
	}, opts)
	if kerr != nil {
		kfmt.Panic(kerr)
	}

	return &bootResult{mgr: mgr, mmu: mmu, ram: ram, console: console}, nil
}
