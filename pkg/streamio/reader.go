package streamio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/calvinalkan/fortsort/internal/logx"
	"github.com/calvinalkan/fortsort/pkg/keystore"
)

// ErrRecordTooLong indicates an input record exceeded the key-store's
// maximum record length. Unlike a full key-store (which just ends the
// current run), this is fatal: a single oversized record can never be
// sorted at any memory size that this process was configured with.
var ErrRecordTooLong = errors.New("streamio: record exceeds maximum length")

// defaultTriggerFraction is the fraction of the read buffer the reader
// tries to fill before handing records to the key-store, when the caller
// doesn't override it.
const defaultTriggerFraction = 0.9

// StreamReader splits an io.Reader into newline-delimited records and
// inserts each into a keystore.Store, refilling its internal buffer from
// the stream as needed. It carries no state across calls other than its
// own buffer, so a single StreamReader can be reused across many Read
// calls against the same underlying stream.
type StreamReader struct {
	r   io.Reader
	log logx.Logger

	buf          []byte
	trigger      int
	maxRecordLen int
}

// NewStreamReader builds a StreamReader with an internal buffer of
// bufferSize bytes. triggerFraction controls how full the buffer gets
// before being scanned for records; it is clamped to (0, 1] since a
// fraction of zero or less would never trigger a read and a fraction
// above 1 is meaningless. maxRecordLen is the configured per-record
// upper bound (the max_element option); a record longer than it fails
// fatally with ErrRecordTooLong before ever reaching the keystore,
// independent of whatever length that keystore's own capacity happens to
// admit. A maxRecordLen of 0 disables this explicit check, leaving only
// the keystore's capacity-derived bound. log receives non-fatal
// diagnostics (a failed underlying Read is treated as end-of-stream, but
// still worth a warning); pass logx.Discard to suppress it.
func NewStreamReader(r io.Reader, bufferSize int, triggerFraction float64, maxRecordLen int, log logx.Logger) *StreamReader {
	if triggerFraction <= 0 || triggerFraction > 1 {
		triggerFraction = defaultTriggerFraction
	}

	if log == nil {
		log = logx.Discard
	}

	trigger := int(triggerFraction * float64(bufferSize))
	if trigger < 1 {
		trigger = 1
	}

	return &StreamReader{
		r:            r,
		log:          log,
		buf:          make([]byte, bufferSize),
		trigger:      trigger,
		maxRecordLen: maxRecordLen,
	}
}

// Read drains the stream into ks, record by record, until either the
// stream is exhausted or ks has no room for the next record (in which
// case the unconsumed tail is saved to pb for the next Read call). It
// reports whether the stream has more data left to read: true means ks
// filled up with input remaining, false means the stream ended (a
// trailing, newline-less partial record at end-of-stream is discarded,
// matching a plain line-oriented read).
func (sr *StreamReader) Read(ks *keystore.Store, pb *Pushback) (more bool, err error) {
	fill := pb.Pop(sr.buf)
	index := 0
	eof := false

	for {
		// Refill until the trigger is reached; past the trigger, keep
		// reading only while the window holds no complete record, so a
		// record straddling the trigger mark still makes progress instead
		// of stalling between a full-enough buffer and an empty scan.
		for !eof && fill < len(sr.buf) && (fill < sr.trigger || bytes.IndexByte(sr.buf[index:fill], '\n') < 0) {
			n, rerr := sr.r.Read(sr.buf[fill:])
			fill += n

			if rerr != nil {
				if !errors.Is(rerr, io.EOF) {
					sr.log.Warnf("read failed, input may have terminated prematurely: %v", rerr)
				}

				eof = true
			} else if n == 0 {
				eof = true
			}
		}

		for {
			i := index
			for i < fill && sr.buf[i] != '\n' {
				i++
			}

			if i == fill {
				copy(sr.buf, sr.buf[index:fill])
				fill -= index
				index = 0

				if eof {
					if fill > 0 {
						sr.log.Warnf("discarding %d trailing byte(s) with no terminating newline at end of input", fill)
					}

					return false, nil
				}

				if fill == len(sr.buf) {
					return false, fmt.Errorf("record does not fit the %d-byte read buffer: %w", len(sr.buf), ErrRecordTooLong)
				}

				break
			}

			if sr.maxRecordLen > 0 && i-index > sr.maxRecordLen {
				return false, fmt.Errorf("record length %d exceeds configured maximum %d: %w", i-index, sr.maxRecordLen, ErrRecordTooLong)
			}

			if err := ks.Insert(sr.buf[index:i]); err != nil {
				if errors.Is(err, keystore.ErrNotEnoughSpace) {
					if ks.Empty() {
						return false, fmt.Errorf("record of %d bytes cannot fit an empty key store: %w", i-index, ErrRecordTooLong)
					}

					pb.Push(sr.buf[index:fill])

					return true, nil
				}

				return false, fmt.Errorf("insert record: %w: %w", err, ErrRecordTooLong)
			}

			index = i + 1
		}
	}
}
