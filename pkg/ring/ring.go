// Package ring provides a byte ring buffer whose backing storage is
// memory-mapped twice, consecutively, so that any sub-range of up to one
// ring's worth of bytes starting anywhere in the mapped window is a valid,
// linear byte slice. Consumers (framed-record decoders, line parsers) never
// need to special-case a read or write that wraps around the end of the
// ring.
package ring

import (
	"errors"
	"fmt"
)

// ErrTooLarge is returned by Advance when delta exceeds the ring's capacity.
var ErrTooLarge = errors.New("ring: advance delta exceeds capacity")

// Buffer is a doubly-mapped ring buffer of a fixed logical capacity.
//
// Base returns a slice of length 2*Cap() such that Base()[i] == Base()[i+Cap()]
// for every i in [0, Cap()). A read or write of any length up to Cap(),
// starting at any offset in [0, 2*Cap()), therefore lands on a contiguous
// view of the ring's logical contents.
type Buffer struct {
	impl   impl
	lo, hi uint64 // consumer offset in [0, cap); producer offset in [lo, lo+cap]
}

// New allocates a ring buffer with logical capacity of at least reqSize
// bytes, rounded up to a multiple of the system page size. It returns a
// wrapped error if any step of the underlying mapping fails.
func New(reqSize uint64) (*Buffer, error) {
	if reqSize == 0 {
		reqSize = 1
	}

	im, err := newImpl(reqSize)
	if err != nil {
		return nil, fmt.Errorf("ring: %w", err)
	}

	return &Buffer{impl: im}, nil
}

// Close releases the backing mapping. The Buffer must not be used again.
func (b *Buffer) Close() error {
	return b.impl.Close()
}

// Cap returns the logical ring capacity in bytes (a multiple of the page
// size, which may be larger than the size requested from New).
func (b *Buffer) Cap() uint64 {
	return b.impl.size()
}

// Base returns the doubly-mapped backing slice, of length 2*Cap(). Index i
// and index i+Cap() alias the same physical byte for every valid i.
func (b *Buffer) Base() []byte {
	return b.impl.base()
}

// Lo returns the current consumer offset, in [0, Cap()).
func (b *Buffer) Lo() uint64 { return b.lo }

// Hi returns the current producer offset, in [Lo(), Lo()+Cap()].
func (b *Buffer) Hi() uint64 { return b.hi }

// Fill returns the number of live bytes currently in the ring.
func (b *Buffer) Fill() uint64 {
	return b.hi - b.lo
}

// Free returns the number of bytes that can be written before the ring is
// full (Cap() - Fill()).
func (b *Buffer) Free() uint64 {
	return b.impl.size() - b.Fill()
}

// AdvanceLo moves the consumer offset forward by delta, wrapping modulo
// Cap(). Returns ErrTooLarge if delta exceeds Cap().
func (b *Buffer) AdvanceLo(delta uint64) error {
	if delta > b.impl.size() {
		return ErrTooLarge
	}

	b.lo += delta
	if b.lo >= b.impl.size() {
		b.lo -= b.impl.size()
		b.hi -= b.impl.size()
	}

	return nil
}

// AdvanceHi moves the producer offset forward by delta; the offset wraps
// together with the consumer offset when AdvanceLo crosses Cap(). Returns
// ErrTooLarge if delta exceeds Cap().
func (b *Buffer) AdvanceHi(delta uint64) error {
	if delta > b.impl.size() {
		return ErrTooLarge
	}

	b.impl.mirror(b.hi, delta)

	b.hi += delta

	return nil
}

// Reset drops any buffered content without releasing the mapping.
func (b *Buffer) Reset() {
	b.lo = 0
	b.hi = 0
}

// WriteSlice returns a linear slice of length n starting at the producer
// offset, suitable for a single Read() call to fill. The caller must follow
// up with AdvanceHi(n) once n bytes have actually been written into it.
// n must not exceed Free().
func (b *Buffer) WriteSlice(n uint64) []byte {
	base := b.impl.base()

	return base[b.hi : b.hi+n]
}

// ReadSlice returns a linear, read-only view of the n live bytes starting at
// the consumer offset. n must not exceed Fill(). The returned slice aliases
// the ring's storage and is only valid until the next AdvanceLo/AdvanceHi or
// Reset call.
func (b *Buffer) ReadSlice(n uint64) []byte {
	base := b.impl.base()

	return base[b.lo : b.lo+n]
}

// impl is the platform-specific doubly-mapped backing store.
type impl interface {
	base() []byte
	size() uint64
	Close() error

	// mirror is called after n bytes have been written at offset off (in
	// [0, 2*size())) via a WriteSlice the caller already filled, before the
	// producer offset advances past them. A true doubly-mapped
	// implementation aliases both halves already and no-ops here; a
	// plain-slice fallback uses it to copy the written range into its
	// mirror half so the next ReadSlice/WriteSlice call still sees a
	// contiguous view.
	mirror(off, n uint64)
}
