// Package keystore provides a constant-memory arena for variable-length
// byte records: a fixed-capacity buffer that grows an index table from one
// end and record payloads from the other, supporting in-place sort with no
// per-insert allocation.
package keystore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"sort"
)

// Sentinel errors. Implementations may wrap these with additional context;
// callers should classify with errors.Is.
var (
	// ErrKeyTooLong indicates a record longer than MaxKeyLen for this store.
	ErrKeyTooLong = errors.New("keystore: key too long")
	// ErrNotEnoughSpace indicates the store has no room for the record.
	ErrNotEnoughSpace = errors.New("keystore: not enough space")
	// ErrInvalidInput indicates a construction argument was invalid.
	ErrInvalidInput = errors.New("keystore: invalid input")
)

// entrySize is the width in bytes of one packed (length, offset) index
// entry: (length << offBits) | offset in a single machine word.
const entrySize = 8

// Comparator orders two raw records. It must behave like bytes.Compare:
// negative if a < b, zero if equal, positive if a > b.
type Comparator func(a, b []byte) int

// ByteOrder is the default Comparator: lexicographic by byte value, with a
// shorter key ordering before a longer one that shares its full length as a
// prefix (the same result bytes.Compare gives — see
// TestByteOrderMatchesBytesCompare).
func ByteOrder(a, b []byte) int {
	return compareBytes(a, b)
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}

			return 1
		}
	}

	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Store is a bounded arena: index entries grow from buf[0:], record
// payloads grow downward from buf[len(buf):]. Not safe for concurrent use;
// callers own a Store from a single goroutine (see RunCreator in
// pkg/sorter, which is exactly that owner).
type Store struct {
	buf []byte

	loFill uint64 // bytes used by the index table, grows up from 0
	keyOff uint64 // start of the live payload region, shrinks down from len(buf)

	offBits   uint
	offMask   uint64
	maxKeyLen uint64

	cmp Comparator
}

// New creates a Store over a freshly allocated buffer of exactly capacity
// bytes. capacity must be at least entrySize+1 so at least one minimal
// record can ever fit; cmp may be nil for ByteOrder.
func New(capacity uint64, cmp Comparator) (*Store, error) {
	if capacity < entrySize+1 {
		return nil, fmt.Errorf("capacity %d too small for any record: %w", capacity, ErrInvalidInput)
	}

	if cmp == nil {
		cmp = ByteOrder
	}

	offBits := bitsFor(capacity)

	return &Store{
		buf:       make([]byte, capacity),
		keyOff:    capacity,
		offBits:   offBits,
		offMask:   (uint64(1) << offBits) - 1,
		maxKeyLen: ^uint64(0) >> offBits,
		cmp:       cmp,
	}, nil
}

// bitsFor returns ceil(log2(capacity+1)), the number of bits needed to
// represent any offset in [0, capacity].
func bitsFor(capacity uint64) uint {
	return uint(bits.Len64(capacity))
}

// MaxKeyLen is the largest record length this store can ever accept,
// independent of current fill.
func (s *Store) MaxKeyLen() uint64 { return s.maxKeyLen }

// KeySpace returns the number of payload bytes available to the next
// insert, reserving room for that insert's own index entry.
func (s *Store) KeySpace() uint64 {
	avail := s.keyOff - s.loFill
	if avail < entrySize {
		return 0
	}

	return avail - entrySize
}

// Empty reports whether any record has been inserted since construction or
// the last Clear.
func (s *Store) Empty() bool { return s.loFill == 0 }

// Len returns the number of records currently held.
func (s *Store) Len() int { return int(s.loFill / entrySize) }

// Insert copies key into the arena and appends an index entry for it.
func (s *Store) Insert(key []byte) error {
	klen := uint64(len(key))

	if klen > s.maxKeyLen {
		return fmt.Errorf("key length %d exceeds max %d: %w", klen, s.maxKeyLen, ErrKeyTooLong)
	}

	if klen > s.KeySpace() {
		return fmt.Errorf("need %d bytes, have %d: %w", klen, s.KeySpace(), ErrNotEnoughSpace)
	}

	s.keyOff -= klen
	copy(s.buf[s.keyOff:s.keyOff+klen], key)

	entry := (klen << s.offBits) | s.keyOff
	binary.LittleEndian.PutUint64(s.buf[s.loFill:s.loFill+entrySize], entry)
	s.loFill += entrySize

	return nil
}

// unpack returns the (offset, length) pair an index entry encodes.
func (s *Store) unpack(entry uint64) (offset, length uint64) {
	return entry & s.offMask, entry >> s.offBits
}

func (s *Store) entryAt(i int) uint64 {
	off := uint64(i) * entrySize

	return binary.LittleEndian.Uint64(s.buf[off : off+entrySize])
}

func (s *Store) setEntryAt(i int, v uint64) {
	off := uint64(i) * entrySize
	binary.LittleEndian.PutUint64(s.buf[off:off+entrySize], v)
}

func (s *Store) recordAt(i int) []byte {
	entry := s.entryAt(i)
	off, length := s.unpack(entry)

	return s.buf[off : off+length]
}

// Sort permutes the index table in place into non-decreasing order under
// the configured Comparator (or ByteOrder). Ties are broken by shorter-key-
// first; sort is not required to be stable across equal, equal-length
// records. Payload bytes are never moved.
func (s *Store) Sort() {
	n := s.Len()
	entries := make([]uint64, n)

	for i := 0; i < n; i++ {
		entries[i] = s.entryAt(i)
	}

	sort.Slice(entries, func(i, j int) bool {
		offA, lenA := s.unpack(entries[i])
		offB, lenB := s.unpack(entries[j])

		a := s.buf[offA : offA+lenA]
		b := s.buf[offB : offB+lenB]

		c := s.cmp(a, b)
		if c != 0 {
			return c < 0
		}

		return lenA < lenB
	})

	for i, e := range entries {
		s.setEntryAt(i, e)
	}
}

// Clear resets the store to empty. Payload bytes become logically dead but
// are not overwritten; a subsequent Insert may reuse the space.
func (s *Store) Clear() {
	s.loFill = 0
	s.keyOff = uint64(len(s.buf))
}

// Visit calls fn once per record, in current index order (insertion order
// until Sort permutes it). The slice passed to fn aliases the store's
// backing buffer and must not be retained past the call, nor mutated.
func (s *Store) Visit(fn func(record []byte)) {
	n := s.Len()
	for i := 0; i < n; i++ {
		fn(s.recordAt(i))
	}
}
