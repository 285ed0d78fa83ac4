package device

import (
	"sort"
	"testing"
	"unsafe"
)

func TestDriverInfoListSorting(t *testing.T) {
	defer func() {
		registeredDrivers = nil
	}()

	origlist := []*DriverInfo{
		{Order: DetectOrderNormal},
		{Order: DetectOrderLast},
		{Order: DetectOrderNormal - 1},
		{Order: DetectOrderEarly},
	}

	for _, drv := range origlist {
		RegisterDriver(drv)
	}

	registeredList := DriverList()
	if exp, got := len(origlist), len(registeredList); got != exp {
		t.Fatalf("expected DriverList() to return %d entries; got %d", exp, got)
	}

	sort.Sort(registeredList)
	expOrder := []int{3, 2, 0, 1}
	for i, exp := range expOrder {
		if registeredList[i] != origlist[exp] {
			t.Errorf("expected sorted entry %d to be %v; got %v", i, origlist[exp], registeredList[i])
		}
	}
}

func TestMMIO(t *testing.T) {
	var block [16]uint32
	regs := MMIO(uintptr(unsafe.Pointer(&block[0])))

	regs.Write32(0x18, 0xcafe)
	if block[6] != 0xcafe {
		t.Fatalf("expected write to offset 0x18 to reach word 6; got %v", block)
	}

	block[1] = 42
	if got := regs.Read32(4); got != 42 {
		t.Fatalf("expected to read 42 from offset 4; got %d", got)
	}

	bus := MMIOBus{}
	if got := bus.Registers(0x1000); got != MMIO(0x1000) {
		t.Fatalf("expected MMIOBus to return direct register access; got %v", got)
	}
}
