package atags

import (
	"armos/kernel/mm"
	"encoding/binary"
)

// Builder assembles a tag list the way a boot loader would. The simulator
// uses it to hand boot information to the kernel.
type Builder struct {
	buf []byte
}

// NewBuilder returns a Builder whose list starts with an ATAG_CORE tag.
func NewBuilder() *Builder {
	b := &Builder{}
	// flags, page size, root device
	b.add(tagCore, []uint32{1, mm.PageSize, 0})
	return b
}

// AddMem appends an ATAG_MEM tag describing size bytes at start.
func (b *Builder) AddMem(start mm.PhysAddr, size uint32) *Builder {
	b.add(tagMem, []uint32{size, uint32(start)})
	return b
}

// AddCmdLine appends an ATAG_CMDLINE tag.
func (b *Builder) AddCmdLine(cmdLine string) *Builder {
	payload := make([]byte, (len(cmdLine)+1+3)&^3)
	copy(payload, cmdLine)

	words := make([]uint32, len(payload)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(payload[i*4:])
	}
	b.add(tagCmdLine, words)
	return b
}

// Bytes returns the encoded list terminated by ATAG_NONE.
func (b *Builder) Bytes() []byte {
	out := make([]byte, len(b.buf), len(b.buf)+tagHeaderSize)
	copy(out, b.buf)
	return binary.LittleEndian.AppendUint32(binary.LittleEndian.AppendUint32(out, 0), uint32(tagNone))
}

func (b *Builder) add(tag tagType, words []uint32) {
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(2+len(words)))
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(tag))
	for _, w := range words {
		b.buf = binary.LittleEndian.AppendUint32(b.buf, w)
	}
}
