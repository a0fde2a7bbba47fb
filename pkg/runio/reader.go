package runio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pierrec/lz4/v4"

	"github.com/calvinalkan/fortsort/internal/logx"
	"github.com/calvinalkan/fortsort/pkg/ring"
)

const defaultTriggerFraction = 0.9

// Reader drains length-prefixed records back out of a run file written by
// a Writer, decompressing through LZ4 first if the file was written with
// compress=true. It buffers through a ring.Buffer so a record may be
// returned as a single contiguous slice even when it straddles whatever
// chunk boundary the last underlying Read happened to land on.
type Reader struct {
	f   *os.File
	src io.Reader
	rb  *ring.Buffer
	log logx.Logger

	trigger uint64
	eof     bool
}

// NewReader opens the run file at path for reading. bufferSize sets the
// ring buffer capacity (rounded up to a page by pkg/ring); triggerFraction
// controls how full that buffer gets before being scanned for a complete
// record, clamped to (0, 1]. compress must match how the file was
// written. log receives non-fatal diagnostics; pass logx.Discard to
// suppress it.
func NewReader(path string, bufferSize uint64, triggerFraction float64, compress bool, log logx.Logger) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open run file %q: %w", path, err)
	}

	if triggerFraction <= 0 || triggerFraction > 1 {
		triggerFraction = defaultTriggerFraction
	}

	if log == nil {
		log = logx.Discard
	}

	rb, err := ring.New(bufferSize)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create ring buffer: %w", err)
	}

	trigger := uint64(triggerFraction * float64(rb.Cap()))
	if trigger < lengthPrefixSize {
		rb.Close()
		f.Close()
		return nil, fmt.Errorf("buffer trigger size too small for a length prefix")
	}

	var src io.Reader = f
	if compress {
		src = lz4.NewReader(f)
	}

	return &Reader{f: f, src: src, rb: rb, log: log, trigger: trigger}, nil
}

// Close releases the reader's file handle and ring buffer.
func (r *Reader) Close() error {
	if err := r.rb.Close(); err != nil {
		r.f.Close()
		return fmt.Errorf("close ring buffer: %w", err)
	}

	if err := r.f.Close(); err != nil {
		return fmt.Errorf("close run file: %w", err)
	}

	return nil
}

// pendingSize reads the length prefix of the record at the front of the
// ring buffer, if one is fully present. The caller must already have
// checked Fill() >= lengthPrefixSize.
func (r *Reader) pendingSize() uint64 {
	return binary.LittleEndian.Uint64(r.rb.ReadSlice(lengthPrefixSize))
}

// haveCompleteRecord reports whether the ring buffer currently holds one
// full length-prefixed record.
func (r *Reader) haveCompleteRecord() bool {
	if r.rb.Fill() < lengthPrefixSize {
		return false
	}

	return r.rb.Fill() >= lengthPrefixSize+r.pendingSize()
}

// Next returns the next record in the run file, or (nil, nil) once the
// file is exhausted. The returned slice is owned by the caller.
func (r *Reader) Next() ([]byte, error) {
	for !r.eof && (r.rb.Fill() < r.trigger || !r.haveCompleteRecord()) {
		free := r.rb.Free()
		if free == 0 {
			break
		}

		n, err := r.src.Read(r.rb.WriteSlice(free))
		if n > 0 {
			if aerr := r.rb.AdvanceHi(uint64(n)); aerr != nil {
				return nil, fmt.Errorf("advance ring buffer: %w", aerr)
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.log.Warnf("read failed, run file may have been truncated: %v", err)
			}

			r.eof = true
		} else if n == 0 {
			r.eof = true
		}
	}

	if !r.haveCompleteRecord() {
		switch {
		case !r.eof:
			// The ring filled up without completing a record: it can never
			// complete. Callers size the buffer from max_element, so only a
			// corrupt length prefix lands here.
			r.log.Warnf("record of %d bytes does not fit the %d-byte buffer, abandoning remainder of run file", r.pendingSize(), r.rb.Cap())
		case r.rb.Fill() > 0:
			r.log.Warnf("run file had %d extraneous bytes at end", r.rb.Fill())
		}

		return nil, nil
	}

	size := r.pendingSize()
	framed := r.rb.ReadSlice(lengthPrefixSize + size)

	record := make([]byte, size)
	copy(record, framed[lengthPrefixSize:])

	if err := r.rb.AdvanceLo(lengthPrefixSize + size); err != nil {
		return nil, fmt.Errorf("advance ring buffer: %w", err)
	}

	return record, nil
}
