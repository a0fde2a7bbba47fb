package keystore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestInsert_KeyTooLong exercises the ErrKeyTooLong path directly against
// a hand-built Store with an artificially narrow max_key_len, since no
// capacity small enough to actually allocate ever produces a max_key_len
// small enough to exceed with a real []byte (off_bits grows far slower
// than the buffer itself, so ErrNotEnoughSpace always fires first at any
// realistic size).
func TestInsert_KeyTooLong(t *testing.T) {
	s := &Store{
		buf:       make([]byte, 64),
		keyOff:    64,
		offBits:   60,
		offMask:   (uint64(1) << 60) - 1,
		maxKeyLen: ^uint64(0) >> 60,
		cmp:       ByteOrder,
	}

	require.Less(t, s.MaxKeyLen(), uint64(64))

	err := s.Insert(make([]byte, s.MaxKeyLen()+1))
	require.ErrorIs(t, err, ErrKeyTooLong)
}

func TestBitsFor(t *testing.T) {
	cases := []struct {
		capacity uint64
		want     uint
	}{
		{9, 4},
		{64, 7},
		{1023, 10},
		{1024, 11},
	}

	for _, c := range cases {
		require.Equal(t, c.want, bitsFor(c.capacity))
	}
}
