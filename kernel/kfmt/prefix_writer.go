package kfmt

import "io"

// PrefixWriter is an io.Writer that wraps another io.Writer and injects a
// prefix at the beginning of each line. The hal uses it to tag driver init
// output with the driver name.
type PrefixWriter struct {
	// A writer where all writes get sent to.
	Sink io.Writer

	// The prefix injected at the beginning of each line.
	Prefix []byte

	bytesAfterPrefix int
}

// Write writes len(p) bytes from p to the underlying sink. The injected
// prefixes are not included in the returned byte count.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	var (
		written    int
		startIndex int
	)

	if w.bytesAfterPrefix == 0 && len(p) != 0 {
		_, _ = w.Sink.Write(w.Prefix)
	}

	for curIndex, ch := range p {
		if ch != '\n' {
			continue
		}

		n, err := w.Sink.Write(p[startIndex : curIndex+1])
		written += n
		if err != nil {
			return written, err
		}

		if curIndex+1 != len(p) {
			_, _ = w.Sink.Write(w.Prefix)
		}
		w.bytesAfterPrefix = 0
		startIndex = curIndex + 1
	}

	if startIndex < len(p) {
		n, err := w.Sink.Write(p[startIndex:])
		written += n
		w.bytesAfterPrefix += n
		if err != nil {
			return written, err
		}
	}

	return written, nil
}
