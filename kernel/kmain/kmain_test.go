package kmain

import (
	"armos/device"
	"armos/device/uart"
	"armos/kernel"
	"armos/kernel/atags"
	"armos/kernel/cpu"
	"armos/kernel/kfmt"
	"armos/kernel/mm"
	"armos/kernel/mm/kmm"
	"armos/kernel/mm/physmem"
	"bytes"
	"strings"
	"testing"
)

// consoleBus maps device windows through the manager and backs every
// window with the same UART model.
type consoleBus struct {
	mgr   *kmm.Manager
	model *uart.Model
}

func (b consoleBus) MapDevice(pa mm.PhysAddr, size uint32) (mm.VirtAddr, *kernel.Error) {
	return b.mgr.MapDevice(pa, size)
}

func (b consoleBus) Registers(va mm.VirtAddr) device.Registers {
	return b.model
}

func TestLayoutFromBootInfo(t *testing.T) {
	defer atags.SetInfo(nil)

	specs := []struct {
		info             []byte
		kernelStart      uintptr
		kernelEnd        uintptr
		expMem           mm.Size
		expStart, expEnd mm.PhysAddr
	}{
		{nil, 0, 0, 256 * mm.Mb, 0x10000, 0x200000},
		{atags.NewBuilder().AddMem(0, uint32(128*mm.Mb)).Bytes(), 0, 0, 128 * mm.Mb, 0x10000, 0x200000},
		// rounded down to a whole section
		{atags.NewBuilder().AddMem(0, uint32(128*mm.Mb+mm.PageSize)).Bytes(), 0, 0, 128 * mm.Mb, 0x10000, 0x200000},
		// clamped to what fits above the kernel base
		{atags.NewBuilder().AddMem(0, 0x40000000).Bytes(), 0, 0, 256 * mm.Mb, 0x10000, 0x200000},
		// the image only grows
		{nil, 0x8000, 0x300010, 256 * mm.Mb, 0x8000, 0x301000},
		{nil, 0x20000, 0x100000, 256 * mm.Mb, 0x10000, 0x200000},
	}

	for specIndex, spec := range specs {
		atags.SetInfo(spec.info)

		l := LayoutFromBootInfo(kmm.VersatilePB(), spec.kernelStart, spec.kernelEnd)
		if l.MemorySize != spec.expMem || l.KernelStart != spec.expStart || l.KernelEnd != spec.expEnd {
			t.Errorf("[spec %d] expected mem 0x%x, image [0x%x, 0x%x); got mem 0x%x, image [0x%x, 0x%x)",
				specIndex, spec.expMem, spec.expStart, spec.expEnd, l.MemorySize, l.KernelStart, l.KernelEnd)
		}
		if err := l.Validate(); err != nil {
			t.Errorf("[spec %d] expected a valid layout; got %v", specIndex, err)
		}
	}
}

func TestOptionsFromBootInfo(t *testing.T) {
	defer atags.SetInfo(nil)

	specs := []struct {
		cmdLine string
		exp     bool
	}{
		{"", false},
		{"console=ttyAMA0", false},
		{"mmcheck=0", false},
		{"console=ttyAMA0 mmcheck=1", true},
	}

	for specIndex, spec := range specs {
		atags.SetInfo(atags.NewBuilder().AddCmdLine(spec.cmdLine).Bytes())
		if got := OptionsFromBootInfo().SelfCheck; got != spec.exp {
			t.Errorf("[spec %d] expected SelfCheck to be %t; got %t", specIndex, spec.exp, got)
		}
	}
}

func TestBoot(t *testing.T) {
	defer atags.SetInfo(nil)
	defer kfmt.SetOutputSink(kfmt.GetOutputSink())

	atags.SetInfo(atags.NewBuilder().AddMem(0, uint32(64*mm.Mb)).AddCmdLine("mmcheck=1").Bytes())
	layout := LayoutFromBootInfo(kmm.VersatilePB(), 0, 0)

	ram, err := physmem.New(layout.MemorySize)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ram.Close() }()

	var (
		out   bytes.Buffer
		model = &uart.Model{Out: &out}
		mmu   = new(cpu.Emulated)
	)

	mgr, kerr := Boot(layout, ram, mmu, func(mgr *kmm.Manager) device.Bus {
		return consoleBus{mgr: mgr, model: model}
	}, OptionsFromBootInfo())
	if kerr != nil {
		t.Fatalf("boot failed: %v\noutput:\n%s", kerr, out.String())
	}

	if mgr.State() != kmm.StateTranslating {
		t.Fatalf("expected manager to be translating; got %s", mgr.State())
	}
	if !mmu.TranslationEnabled() {
		t.Fatal("expected the MMU to be enabled")
	}

	// The UART window must be the first one handed out.
	if w, ok := mgr.Windows().Window(layout.MMIOBase); !ok || w.Phys != uart.DefaultConsoleAddr {
		t.Fatalf("expected the console registers at the start of the MMIO range; got %+v", w)
	}

	got := out.String()
	for _, exp := range []string{
		"[kmain] 4096 regions managed",
		"[kmain] translation enabled (directory at 0x100000)\r\n",
		"[hal] pl011_uart(0.0.1): mapped registers 0x101f1000 to 0xefe00000\r\n",
		"[hal] pl011_uart(0.0.1): initialized\r\n",
		"[pmm] free list check succeeded",
		"[vmm] page mapping check succeeded",
		"[vmm] MMIO window check succeeded",
		"[kmm] kernel directory check succeeded",
		"[kmm] installed directory check succeeded",
	} {
		if !strings.Contains(got, exp) {
			t.Errorf("expected console output to contain %q; got:\n%s", exp, got)
		}
	}
}

func TestBootInvalidLayout(t *testing.T) {
	layout := kmm.VersatilePB()
	layout.DirectoryAddr++

	if _, err := Boot(layout, nil, new(cpu.Emulated), nil, Options{}); err == nil {
		t.Fatal("expected Boot to reject an invalid layout")
	}
}
