package streamio_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/fortsort/pkg/keystore"
	"github.com/calvinalkan/fortsort/pkg/streamio"
)

func TestPushback_PushPop(t *testing.T) {
	pb := streamio.NewPushback(16)

	dst := make([]byte, 16)
	require.Equal(t, 0, pb.Pop(dst))

	pb.Push([]byte("hello"))
	n := pb.Pop(dst)
	require.Equal(t, "hello", string(dst[:n]))

	// Pop drains it; a second pop returns nothing.
	require.Equal(t, 0, pb.Pop(dst))
}

func TestStreamReader_SplitsRecordsOnNewline(t *testing.T) {
	src := strings.NewReader("alpha\nbeta\ngamma\n")
	sr := streamio.NewStreamReader(src, 64, 0.9, 0, nil)

	ks, err := keystore.New(4096, nil)
	require.NoError(t, err)

	pb := streamio.NewPushback(64)
	more, err := sr.Read(ks, pb)
	require.NoError(t, err)
	require.False(t, more)

	var got []string
	ks.Visit(func(r []byte) { got = append(got, string(r)) })
	require.Equal(t, []string{"alpha", "beta", "gamma"}, got)
}

func TestStreamReader_DropsTrailingRecordWithoutNewline(t *testing.T) {
	src := strings.NewReader("alpha\nbeta\nincomplete")
	sr := streamio.NewStreamReader(src, 64, 0.9, 0, nil)

	ks, err := keystore.New(4096, nil)
	require.NoError(t, err)

	pb := streamio.NewPushback(64)
	more, err := sr.Read(ks, pb)
	require.NoError(t, err)
	require.False(t, more)

	var got []string
	ks.Visit(func(r []byte) { got = append(got, string(r)) })
	require.Equal(t, []string{"alpha", "beta"}, got)
}

func TestStreamReader_EmptyInput(t *testing.T) {
	sr := streamio.NewStreamReader(strings.NewReader(""), 64, 0.9, 0, nil)

	ks, err := keystore.New(4096, nil)
	require.NoError(t, err)

	pb := streamio.NewPushback(64)
	more, err := sr.Read(ks, pb)
	require.NoError(t, err)
	require.False(t, more)
	require.True(t, ks.Empty())
}

func TestStreamReader_PushbackCarriesOverWhenKeystoreFull(t *testing.T) {
	src := strings.NewReader("a\nb\nc\nd\ne\n")

	// Keystore capacity tight enough that only a couple of 1-byte records
	// fit before NotEnoughSpace forces a pushback-and-return.
	ks, err := keystore.New(32, nil)
	require.NoError(t, err)

	sr := streamio.NewStreamReader(src, 64, 0.9, 0, nil)
	pb := streamio.NewPushback(64)

	var all []string
	for {
		more, err := sr.Read(ks, pb)
		require.NoError(t, err)

		ks.Visit(func(r []byte) { all = append(all, string(r)) })
		ks.Clear()

		if !more {
			break
		}
	}

	require.Equal(t, []string{"a", "b", "c", "d", "e"}, all)
}

func TestStreamReader_RecordStraddlingTriggerStillCompletes(t *testing.T) {
	// 60 bytes before the newline: past the 0.9*64=57-byte trigger but
	// within the 64-byte buffer, so the reader must keep reading beyond
	// the trigger to find the record's end.
	record := strings.Repeat("x", 60)
	src := strings.NewReader(record + "\n")
	sr := streamio.NewStreamReader(src, 64, 0.9, 0, nil)

	ks, err := keystore.New(4096, nil)
	require.NoError(t, err)

	pb := streamio.NewPushback(64)
	more, err := sr.Read(ks, pb)
	require.NoError(t, err)
	require.False(t, more)

	var got []string
	ks.Visit(func(r []byte) { got = append(got, string(r)) })
	require.Equal(t, []string{record}, got)
}

func TestStreamReader_RecordLargerThanBufferIsFatal(t *testing.T) {
	src := strings.NewReader(strings.Repeat("x", 100) + "\n")
	sr := streamio.NewStreamReader(src, 64, 0.9, 0, nil)

	ks, err := keystore.New(4096, nil)
	require.NoError(t, err)

	pb := streamio.NewPushback(64)
	_, err = sr.Read(ks, pb)
	require.ErrorIs(t, err, streamio.ErrRecordTooLong)
}

func TestStreamReader_RecordLargerThanEmptyKeystoreIsFatal(t *testing.T) {
	// A record that can never fit the keystore must fail instead of
	// bouncing between pushback and an always-empty store forever.
	src := strings.NewReader(strings.Repeat("x", 40) + "\n")
	sr := streamio.NewStreamReader(src, 64, 0.9, 0, nil)

	ks, err := keystore.New(32, nil)
	require.NoError(t, err)

	pb := streamio.NewPushback(64)
	_, err = sr.Read(ks, pb)
	require.ErrorIs(t, err, streamio.ErrRecordTooLong)
}

func TestStreamReader_RejectsRecordOverConfiguredMax(t *testing.T) {
	src := strings.NewReader("short\ntoolongforthislimit\n")
	sr := streamio.NewStreamReader(src, 64, 0.9, 10, nil)

	ks, err := keystore.New(4096, nil)
	require.NoError(t, err)

	pb := streamio.NewPushback(64)
	_, err = sr.Read(ks, pb)
	require.ErrorIs(t, err, streamio.ErrRecordTooLong)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) {
	return 0, errors.New("boom")
}

func TestStreamReader_TreatsReadErrorAsEOF(t *testing.T) {
	sr := streamio.NewStreamReader(errReader{}, 64, 0.9, 0, nil)

	ks, err := keystore.New(4096, nil)
	require.NoError(t, err)

	pb := streamio.NewPushback(64)
	more, err := sr.Read(ks, pb)
	require.NoError(t, err)
	require.False(t, more)
}

func TestStreamWriter_BuffersAndFlushesOnEnd(t *testing.T) {
	var buf bytes.Buffer
	sw := streamio.NewStreamWriter(&buf, 64)

	require.NoError(t, sw.Write([]byte("alpha")))
	require.NoError(t, sw.Write([]byte("beta")))
	require.Empty(t, buf.String())

	require.NoError(t, sw.End())
	require.Equal(t, "alpha\nbeta\n", buf.String())
}

func TestStreamWriter_FlushesWhenRecordDoesNotFit(t *testing.T) {
	var buf bytes.Buffer
	sw := streamio.NewStreamWriter(&buf, 8)

	require.NoError(t, sw.Write([]byte("abc")))
	require.NoError(t, sw.Write([]byte("defgh")))
	require.NoError(t, sw.End())

	require.Equal(t, "abc\ndefgh\n", buf.String())
}

func TestStreamWriter_OversizedRecordWritesThrough(t *testing.T) {
	var buf bytes.Buffer
	sw := streamio.NewStreamWriter(&buf, 4)

	require.NoError(t, sw.Write([]byte("much-too-long-for-the-buffer")))
	require.NoError(t, sw.End())

	require.Equal(t, "much-too-long-for-the-buffer\n", buf.String())
}

var _ io.Reader = errReader{}
