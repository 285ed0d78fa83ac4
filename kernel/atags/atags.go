// Package atags parses the ARM boot tag list that the boot loader leaves in
// memory for the kernel.
package atags

import (
	"armos/kernel/mm"
	"encoding/binary"
	"strings"
	"unsafe"
)

// maxInfoSize bounds how far SetInfoPtr lets the parser read.
const maxInfoSize = 4096

var (
	infoData  []byte
	cmdLineKV map[string]string
)

type tagType uint32

const (
	tagNone    tagType = 0x00000000
	tagCore    tagType = 0x54410001
	tagMem     tagType = 0x54410002
	tagCmdLine tagType = 0x54410009
)

// tagHeaderSize is the size of the {size, tag} header preceding each tag.
// Tag sizes are expressed in 32-bit words and include the header.
const tagHeaderSize = 8

// MemRegion describes a block of physical memory reported by an ATAG_MEM
// tag.
type MemRegion struct {
	PhysAddress mm.PhysAddr
	Length      uint32
}

// MemRegionVisitor is invoked by VisitMemRegions for each memory region. The
// visitor must return true to continue or false to abort the scan.
type MemRegionVisitor func(*MemRegion) bool

// SetInfoPtr points the parser at the tag list starting at ptr. This function
// must be invoked before invoking any other function exported by this
// package.
func SetInfoPtr(ptr uintptr) {
	SetInfo(unsafe.Slice((*byte)(unsafe.Pointer(ptr)), maxInfoSize))
}

// SetInfo points the parser at a tag list held in data.
func SetInfo(data []byte) {
	infoData = data
	cmdLineKV = nil
}

// VisitMemRegions invokes visitor for each memory region reported by the
// boot loader.
func VisitMemRegions(visitor MemRegionVisitor) {
	visitTags(func(tag tagType, payload []byte) bool {
		if tag != tagMem || len(payload) < 8 {
			return true
		}

		region := MemRegion{
			Length:      binary.LittleEndian.Uint32(payload[0:4]),
			PhysAddress: mm.PhysAddr(binary.LittleEndian.Uint32(payload[4:8])),
		}
		return visitor(&region)
	})
}

// MemorySize returns the end address of the highest memory region reported
// by the boot loader or 0 if no region was reported.
func MemorySize() mm.Size {
	var top mm.Size
	VisitMemRegions(func(region *MemRegion) bool {
		if end := mm.Size(region.PhysAddress) + mm.Size(region.Length); end > top {
			top = end
		}
		return true
	})
	return top
}

// GetBootCmdLine returns the command line key-value pairs passed to the
// kernel. Flags without a value map to themselves.
func GetBootCmdLine() map[string]string {
	if cmdLineKV != nil {
		return cmdLineKV
	}

	cmdLineKV = make(map[string]string)
	visitTags(func(tag tagType, payload []byte) bool {
		if tag != tagCmdLine {
			return true
		}

		// The command line is a NULL-terminated string padded to a word
		// boundary.
		if end := strings.IndexByte(string(payload), 0); end >= 0 {
			payload = payload[:end]
		}

		for _, pair := range strings.Fields(string(payload)) {
			kv := strings.SplitN(pair, "=", 2)
			switch len(kv) {
			case 2: // foo=bar
				cmdLineKV[kv[0]] = kv[1]
			case 1: // nofoo
				cmdLineKV[kv[0]] = kv[0]
			}
		}
		return false
	})

	return cmdLineKV
}

// visitTags walks the tag list until ATAG_NONE, a malformed tag or the end
// of the available data.
func visitTags(visitor func(tag tagType, payload []byte) bool) {
	for data := infoData; len(data) >= tagHeaderSize; {
		var (
			size = binary.LittleEndian.Uint32(data[0:4]) * 4
			tag  = tagType(binary.LittleEndian.Uint32(data[4:8]))
		)

		if tag == tagNone || size < tagHeaderSize || uint64(size) > uint64(len(data)) {
			return
		}

		if !visitor(tag, data[tagHeaderSize:size]) {
			return
		}
		data = data[size:]
	}
}
