// Package runio reads and writes run files: sequences of
// length-prefixed records, optionally wrapped in an LZ4 frame. Rather
// than a pair of near-duplicate raw and compressed reader/writer types
// that differ only in whether an LZ4 codec sits between the record
// framing and the file, that axis is a constructor argument.
package runio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/pierrec/lz4/v4"
)

// lengthPrefixSize is the width of each record's length prefix: a full
// 8-byte little-endian unsigned length, read and written whole (earlier
// incarnations of this format decoded only the length's low byte, which
// corrupted any record 256 bytes or longer; every reader and writer here
// round-trips all 8 bytes).
const lengthPrefixSize = 8

// blockSize is the LZ4 block size used for the framed variant.
const blockSize = lz4.Block256Kb

// Writer appends length-prefixed records to a run file, optionally
// compressing the record stream with a streaming LZ4 frame.
type Writer struct {
	f  *os.File
	bw *bufio.Writer
	lz *lz4.Writer
}

// NewWriter creates (truncating if necessary) the run file at path and
// returns a Writer appending to it. When compress is true, records are
// written through an LZ4 frame: 256 KiB blocks, block-linked, no content
// checksum, default compression level.
func NewWriter(path string, compress bool) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create run file %q: %w", path, err)
	}

	w := &Writer{f: f}

	var dst io.Writer = f
	if compress {
		lz := lz4.NewWriter(f)
		if err := lz.Apply(
			lz4.BlockSizeOption(blockSize),
			lz4.ChecksumOption(false),
		); err != nil {
			f.Close()
			return nil, fmt.Errorf("configure lz4 writer: %w", err)
		}

		w.lz = lz
		dst = lz
	}

	w.bw = bufio.NewWriterSize(dst, 64*1024)

	return w, nil
}

// Write appends one record to the run file, preceded by its 8-byte
// little-endian length.
func (w *Writer) Write(record []byte) error {
	var lenBuf [lengthPrefixSize]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(record)))

	if _, err := w.bw.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write record length: %w", err)
	}

	if _, err := w.bw.Write(record); err != nil {
		return fmt.Errorf("write record payload: %w", err)
	}

	return nil
}

// End flushes any buffered bytes, closes the LZ4 frame if one is in use,
// and closes the underlying file. Callers must call End exactly once
// after the last Write.
func (w *Writer) End() error {
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("flush run file buffer: %w", err)
	}

	if w.lz != nil {
		if err := w.lz.Close(); err != nil {
			return fmt.Errorf("close lz4 frame: %w", err)
		}
	}

	if err := w.f.Close(); err != nil {
		return fmt.Errorf("close run file: %w", err)
	}

	return nil
}
