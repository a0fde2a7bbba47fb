package streamio

import (
	"fmt"
	"io"
)

// StreamWriter buffers newline-delimited records before writing them to
// an underlying io.Writer, coalescing small writes and falling through to
// a direct write for any record too large to ever fit the buffer.
type StreamWriter struct {
	w    io.Writer
	buf  []byte
	fill int
}

// NewStreamWriter builds a StreamWriter with an internal buffer of
// bufferSize bytes.
func NewStreamWriter(w io.Writer, bufferSize int) *StreamWriter {
	return &StreamWriter{w: w, buf: make([]byte, bufferSize)}
}

// Write appends key and a trailing newline to the stream. It may buffer
// the write, flush a pending buffer to make room, or (for a record that
// can never fit the buffer on its own) write straight through.
func (sw *StreamWriter) Write(key []byte) error {
	need := len(key) + 1

	if need <= len(sw.buf)-sw.fill {
		copy(sw.buf[sw.fill:], key)
		sw.buf[sw.fill+len(key)] = '\n'
		sw.fill += need

		return nil
	}

	if sw.fill > 0 {
		if err := sw.flush(); err != nil {
			return err
		}
	}

	if need <= len(sw.buf) {
		copy(sw.buf, key)
		sw.buf[len(key)] = '\n'
		sw.fill = need

		return nil
	}

	if _, err := sw.w.Write(key); err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	if _, err := sw.w.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("write record terminator: %w", err)
	}

	return nil
}

func (sw *StreamWriter) flush() error {
	if sw.fill == 0 {
		return nil
	}

	if _, err := sw.w.Write(sw.buf[:sw.fill]); err != nil {
		return fmt.Errorf("flush buffer: %w", err)
	}

	sw.fill = 0

	return nil
}

// End flushes any buffered, unwritten records. Callers must call End
// before assuming all writes have reached the underlying io.Writer.
func (sw *StreamWriter) End() error {
	return sw.flush()
}
