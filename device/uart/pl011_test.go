package uart

import (
	"armos/device"
	"armos/kernel"
	"armos/kernel/mm"
	"bytes"
	"testing"
)

type testBus struct {
	mapped []mm.PhysAddr
	model  *Model
	err    *kernel.Error
}

func (b *testBus) MapDevice(pa mm.PhysAddr, size uint32) (mm.VirtAddr, *kernel.Error) {
	if b.err != nil {
		return 0, b.err
	}
	b.mapped = append(b.mapped, pa)
	return 0xefe00000, nil
}

func (b *testBus) Registers(va mm.VirtAddr) device.Registers {
	return b.model
}

func TestPL011Write(t *testing.T) {
	var (
		out bytes.Buffer
		bus = &testBus{model: &Model{Out: &out, FullPolls: 3}}
		drv = NewPL011(DefaultConsoleAddr)
		log bytes.Buffer
	)

	if err := drv.DriverInit(&log, bus); err != nil {
		t.Fatal(err)
	}
	if len(bus.mapped) != 1 || bus.mapped[0] != DefaultConsoleAddr {
		t.Fatalf("expected the register block to be mapped once; got %v", bus.mapped)
	}
	if exp, got := "mapped registers 0x101f1000 to 0xefe00000\n", log.String(); got != exp {
		t.Fatalf("expected init output %q; got %q", exp, got)
	}

	n, err := drv.Write([]byte("ok\n"))
	if err != nil || n != 3 {
		t.Fatalf("expected to write 3 bytes; got %d, %v", n, err)
	}
	if exp, got := "ok\r\n", out.String(); got != exp {
		t.Fatalf("expected UART output %q; got %q", exp, got)
	}
	if bus.model.FullPolls != 0 {
		t.Fatal("expected the driver to wait for room in the FIFO")
	}
}

func TestPL011Errors(t *testing.T) {
	drv := NewPL011(DefaultConsoleAddr)
	if _, err := drv.Write([]byte("x")); err != errNotInitialized {
		t.Fatalf("expected errNotInitialized; got %v", err)
	}

	expErr := &kernel.Error{Module: "test", Message: "no window"}
	if err := drv.DriverInit(&bytes.Buffer{}, &testBus{err: expErr}); err != expErr {
		t.Fatalf("expected DriverInit to return %v; got %v", expErr, err)
	}
}

func TestProbe(t *testing.T) {
	defer SetConsoleAddr(DefaultConsoleAddr)

	SetConsoleAddr(0x101f2000)
	drv, ok := probeForConsole().(*PL011)
	if !ok || drv.physAddr != 0x101f2000 {
		t.Fatalf("expected probe to return a PL011 at 0x101f2000; got %+v", drv)
	}

	var registered bool
	for _, info := range device.DriverList() {
		if info.Order == device.DetectOrderEarly && info.Probe != nil {
			registered = true
		}
	}
	if !registered {
		t.Fatal("expected the console driver to register itself")
	}
}
