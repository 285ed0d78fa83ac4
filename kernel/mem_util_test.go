package kernel

import "testing"

func TestMemset(t *testing.T) {
	// memset with a 0 size should be a no-op
	Memset(nil, 0x00)

	for pageCount := 1; pageCount <= 10; pageCount++ {
		buf := make([]byte, pageCount<<12)
		for i := 0; i < len(buf); i++ {
			buf[i] = 0xfe
		}

		Memset(buf, 0x00)

		for i := 0; i < len(buf); i++ {
			if got := buf[i]; got != 0x00 {
				t.Errorf("[block with %d pages] expected byte: %d to be 0x00; got 0x%x", pageCount, i, got)
			}
		}
	}

	// odd sizes must be fully covered too
	buf := make([]byte, 4097)
	Memset(buf, 0xff)
	for i, b := range buf {
		if b != 0xff {
			t.Fatalf("expected byte %d to be 0xff; got 0x%x", i, b)
		}
	}
}

func TestMemcopy(t *testing.T) {
	src := []byte{1, 2, 3, 4}
	dst := make([]byte, 3)

	if exp, got := 3, Memcopy(src, dst); got != exp {
		t.Fatalf("expected Memcopy to copy %d bytes; got %d", exp, got)
	}

	for i := range dst {
		if dst[i] != src[i] {
			t.Errorf("expected dst[%d] to be %d; got %d", i, src[i], dst[i])
		}
	}
}
