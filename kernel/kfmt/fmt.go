// Package kfmt implements the kernel's diagnostics output: formatted printing
// to an attachable sink, an early ring buffer that holds output produced
// before any console exists, and the fatal Panic path.
package kfmt

import (
	"fmt"
	"io"
)

var (
	// earlyPrintBuffer is a ring buffer that stores Printf output before a
	// console driver attaches itself via SetOutputSink.
	earlyPrintBuffer ringBuffer

	// outputSink is a io.Writer where Printf will send its output. If set
	// to nil, then the output will be redirected to the earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and replays
// any data accumulated in the early print buffer to it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		_, _ = io.Copy(w, &earlyPrintBuffer)
	}
}

// GetOutputSink returns the default target for calls to Printf or nil if no
// sink has been attached yet.
func GetOutputSink() io.Writer {
	return outputSink
}

// Sink returns an io.Writer that forwards each write to the output sink that
// is active at the time of the write, or to the early print buffer.
func Sink() io.Writer {
	return sinkWriter{}
}

type sinkWriter struct{}

func (sinkWriter) Write(p []byte) (int, error) {
	if outputSink != nil {
		return outputSink.Write(p)
	}
	return earlyPrintBuffer.Write(p)
}

// Printf formats according to a format specifier and writes to the active
// output sink. If no sink is attached the output is buffered and flushed to
// the first sink passed to SetOutputSink.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer. A nil writer selects the early print buffer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	if w == nil {
		w = &earlyPrintBuffer
	}

	_, _ = fmt.Fprintf(w, format, args...)
}
