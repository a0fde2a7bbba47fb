package keystore_test

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/fortsort/pkg/keystore"
)

func TestByteOrderMatchesBytesCompare(t *testing.T) {
	cases := [][2]string{
		{"a", "ab"},
		{"ab", "a"},
		{"a", "a"},
		{"", "a"},
		{"abc", "abd"},
	}

	for _, c := range cases {
		require.Equal(t, bytes.Compare([]byte(c[0]), []byte(c[1])), keystore.ByteOrder([]byte(c[0]), []byte(c[1])))
	}
}

func TestInsert_InsertionOrderPreserved(t *testing.T) {
	s, err := keystore.New(4096, nil)
	require.NoError(t, err)

	keys := []string{"zebra", "apple", "mango", "apple"}
	for _, k := range keys {
		require.NoError(t, s.Insert([]byte(k)))
	}

	require.Equal(t, len(keys), s.Len())

	var got []string
	s.Visit(func(r []byte) { got = append(got, string(r)) })
	require.Equal(t, keys, got)
}

func TestKeySpace_DecreasesByLenPlusEntrySize(t *testing.T) {
	s, err := keystore.New(4096, nil)
	require.NoError(t, err)

	before := s.KeySpace()
	require.NoError(t, s.Insert([]byte("hello")))
	after := s.KeySpace()

	require.Equal(t, before-after, uint64(len("hello")+8))
}

func TestNew_MaxKeyLenFormula(t *testing.T) {
	// max_key_len = (2^64 - 1) >> off_bits, off_bits = ceil(log2(capacity+1)).
	// At any capacity small enough to actually allocate, off_bits is tiny
	// and max_key_len vastly exceeds the buffer itself, so in practice
	// every over-long insert fails with ErrNotEnoughSpace long before it
	// could ever hit ErrKeyTooLong (see TestInsert_KeyTooLong in the
	// internal test file for that path exercised directly).
	s, err := keystore.New(64, nil)
	require.NoError(t, err)
	require.Greater(t, s.MaxKeyLen(), uint64(64))
}

func TestInsert_NotEnoughSpace(t *testing.T) {
	s, err := keystore.New(32, nil)
	require.NoError(t, err)

	for {
		if err := s.Insert([]byte("abcd")); err != nil {
			require.ErrorIs(t, err, keystore.ErrNotEnoughSpace)
			break
		}
	}
}

func TestSort_AdjacentEntriesNonDecreasing(t *testing.T) {
	s, err := keystore.New(4096, nil)
	require.NoError(t, err)

	keys := []string{"banana", "apple", "cherry", "ab", "a", "aa"}
	for _, k := range keys {
		require.NoError(t, s.Insert([]byte(k)))
	}

	s.Sort()

	var got []string
	s.Visit(func(r []byte) { got = append(got, string(r)) })

	for i := 1; i < len(got); i++ {
		require.LessOrEqual(t, keystore.ByteOrder([]byte(got[i-1]), []byte(got[i])), 0)
	}
	require.Len(t, got, len(keys))
}

func TestSort_ShorterIsLesserOnTie(t *testing.T) {
	s, err := keystore.New(4096, nil)
	require.NoError(t, err)

	require.NoError(t, s.Insert([]byte("ab")))
	require.NoError(t, s.Insert([]byte("a")))

	s.Sort()

	var got []string
	s.Visit(func(r []byte) { got = append(got, string(r)) })
	require.Equal(t, []string{"a", "ab"}, got)
}

func TestClear_ResetsFillAndSpace(t *testing.T) {
	s, err := keystore.New(4096, nil)
	require.NoError(t, err)

	require.NoError(t, s.Insert([]byte("hello")))
	require.False(t, s.Empty())

	s.Clear()
	require.True(t, s.Empty())
	require.Equal(t, 0, s.Len())
}

func TestVisit_NotInvalidatedByInsert(t *testing.T) {
	s, err := keystore.New(4096, nil)
	require.NoError(t, err)

	require.NoError(t, s.Insert([]byte("a")))

	var seen []string
	s.Visit(func(r []byte) {
		seen = append(seen, string(r))
		if len(seen) == 1 {
			require.NoError(t, s.Insert([]byte("b")))
		}
	})

	require.Equal(t, []string{"a"}, seen)
	require.Equal(t, 2, s.Len())
}

func TestLocaleComparator_OrdersLikeCollator(t *testing.T) {
	cmp, err := keystore.LocaleComparator("en")
	require.NoError(t, err)

	s, err := keystore.New(4096, cmp)
	require.NoError(t, err)

	for _, k := range []string{"banana", "Apple", "cherry"} {
		require.NoError(t, s.Insert([]byte(k)))
	}

	s.Sort()

	var got []string
	s.Visit(func(r []byte) { got = append(got, string(r)) })
	require.Equal(t, []string{"Apple", "banana", "cherry"}, got)
}

func TestLocaleComparator_InvalidLocale(t *testing.T) {
	_, err := keystore.LocaleComparator("not a locale !!")
	require.ErrorIs(t, err, keystore.ErrInvalidInput)
}

// TestLocaleComparatorFactory_IndependentConcurrentInstances exercises the
// reason the factory exists: every Store sorting concurrently under the
// same locale must get its own Collator-backed Comparator rather than
// share one, since *collate.Collator.Compare is not safe for concurrent
// use. Each goroutine here builds and sorts with its own instance from
// the same factory; running under -race would catch any sharing.
func TestLocaleComparatorFactory_IndependentConcurrentInstances(t *testing.T) {
	factory, err := keystore.LocaleComparatorFactory("en")
	require.NoError(t, err)

	const workers = 8

	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			cmp := factory()

			s, err := keystore.New(4096, cmp)
			require.NoError(t, err)

			for _, k := range []string{"banana", "Apple", "cherry"} {
				require.NoError(t, s.Insert([]byte(k)))
			}

			s.Sort()

			var got []string
			s.Visit(func(r []byte) { got = append(got, string(r)) })
			require.Equal(t, []string{"Apple", "banana", "cherry"}, got)
		}()
	}

	wg.Wait()
}

func TestNew_CapacityTooSmall(t *testing.T) {
	_, err := keystore.New(4, nil)
	require.ErrorIs(t, err, keystore.ErrInvalidInput)
}

func ExampleStore_insertSortVisit() {
	s, _ := keystore.New(4096, nil)
	for _, k := range []string{"b", "a", "c"} {
		_ = s.Insert([]byte(k))
	}

	s.Sort()
	s.Visit(func(r []byte) { fmt.Println(string(r)) })
	// Output:
	// a
	// b
	// c
}
