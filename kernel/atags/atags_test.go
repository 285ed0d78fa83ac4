package atags

import (
	"armos/kernel/mm"
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"
)

func TestVisitMemRegions(t *testing.T) {
	SetInfo(NewBuilder().
		AddMem(0, 128*1024*1024).
		AddCmdLine("console=ttyAMA0").
		AddMem(0x10000000, 64*1024*1024).
		Bytes())

	var got []MemRegion
	VisitMemRegions(func(region *MemRegion) bool {
		got = append(got, *region)
		return true
	})

	exp := []MemRegion{
		{PhysAddress: 0, Length: 128 * 1024 * 1024},
		{PhysAddress: 0x10000000, Length: 64 * 1024 * 1024},
	}
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Fatalf("unexpected memory regions (-want +got):\n%s", diff)
	}

	// Aborting the scan.
	var visited int
	VisitMemRegions(func(*MemRegion) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Fatalf("expected visitor to be called once; got %d", visited)
	}

	if exp, got := 320*mm.Mb, MemorySize(); got != exp {
		t.Fatalf("expected memory size %d; got %d", exp, got)
	}
}

func TestGetBootCmdLine(t *testing.T) {
	specs := []struct {
		cmdLine string
		exp     map[string]string
	}{
		{"", map[string]string{}},
		{"mmcheck=1", map[string]string{"mmcheck": "1"}},
		{"  console=ttyAMA0   nosmp root=/dev/ram=x ", map[string]string{
			"console": "ttyAMA0",
			"nosmp":   "nosmp",
			"root":    "/dev/ram=x",
		}},
	}

	for specIndex, spec := range specs {
		SetInfo(NewBuilder().AddMem(0, uint32(mm.Mb)).AddCmdLine(spec.cmdLine).Bytes())

		if diff := cmp.Diff(spec.exp, GetBootCmdLine()); diff != "" {
			t.Errorf("[spec %d] unexpected command line (-want +got):\n%s", specIndex, diff)
		}
	}
}

func TestMalformedTags(t *testing.T) {
	specs := [][]byte{
		nil,
		{1, 2, 3},
		// size 0
		{0, 0, 0, 0, 0x02, 0, 0x41, 0x54},
		// size exceeds data
		{9, 0, 0, 0, 0x02, 0, 0x41, 0x54, 0, 0, 0, 0},
	}

	for specIndex, spec := range specs {
		SetInfo(spec)
		if got := MemorySize(); got != 0 {
			t.Errorf("[spec %d] expected no memory to be reported; got %d", specIndex, got)
		}
		if got := GetBootCmdLine(); len(got) != 0 {
			t.Errorf("[spec %d] expected an empty command line; got %v", specIndex, got)
		}
	}
}

func TestSetInfoPtr(t *testing.T) {
	buf := make([]byte, maxInfoSize)
	copy(buf, NewBuilder().AddMem(0, 256*1024*1024).Bytes())

	SetInfoPtr(uintptr(unsafe.Pointer(&buf[0])))
	if exp, got := 256*mm.Mb, MemorySize(); got != exp {
		t.Fatalf("expected memory size %d; got %d", exp, got)
	}
}
