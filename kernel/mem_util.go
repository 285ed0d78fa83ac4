package kernel

// Memset sets every byte of buf to value. Instead of a byte-by-byte loop the
// implementation sets the first element and then performs log2(len(buf))
// copy calls, doubling the initialized prefix each time; region and page
// buffers are always power-of-two sized so this stays cheap.
func Memset(buf []byte, value byte) {
	if len(buf) == 0 {
		return
	}

	buf[0] = value
	for index := 1; index < len(buf); index *= 2 {
		copy(buf[index:], buf[:index])
	}
}

// Memcopy copies min(len(src), len(dst)) bytes from src to dst and returns
// the number of copied bytes.
func Memcopy(src, dst []byte) int {
	return copy(dst, src)
}
