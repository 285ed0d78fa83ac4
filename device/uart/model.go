package uart

import "io"

// Model emulates the transmit side of a PL011 for hosted environments.
// Bytes written to the data register are forwarded to Out.
type Model struct {
	Out io.Writer

	cr uint32

	// FullPolls is the number of FR reads that report a full FIFO before
	// space becomes available.
	FullPolls int
}

// Read32 implements device.Registers.
func (m *Model) Read32(offset uint32) uint32 {
	switch offset {
	case RegFR:
		if m.FullPolls > 0 {
			m.FullPolls--
			return FRTXFF
		}
		return 0
	case RegCR:
		return m.cr
	default:
		return 0
	}
}

// Write32 implements device.Registers.
func (m *Model) Write32(offset uint32, value uint32) {
	switch offset {
	case RegDR:
		if m.cr&(CRUARTEN|CRTXE) == CRUARTEN|CRTXE && m.Out != nil {
			_, _ = m.Out.Write([]byte{byte(value)})
		}
	case RegCR:
		m.cr = value
	}
}
