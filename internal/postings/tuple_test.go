package postings

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTuple_ByteIdentical(t *testing.T) {
	src, err := FromBytes(build(t, randomLists(rand.New(rand.NewPCG(21, 22)), 12)...))
	require.NoError(t, err)

	encoded := src.AppendTuple([]byte("prefix"))
	require.Len(t, encoded, len("prefix")+src.TupleSize())

	buf := NewSharedBuffer(encoded)
	window, err := buf.Window(len("prefix"), src.TupleSize())
	require.NoError(t, err)

	got, n, err := DecodeTuple(window)
	require.NoError(t, err)
	assert.Equal(t, src.TupleSize(), n)
	require.NoError(t, window.Release())

	wantRanges, wantEntries := src.Tuple()
	gotRanges, gotEntries := got.Tuple()
	assert.Equal(t, wantRanges, gotRanges)
	assert.Equal(t, wantEntries, gotEntries)
	assert.Equal(t, ModeShared, got.Mode())

	// The decoded segments alias the shared buffer rather than copies of it.
	assert.Same(t, &encoded[len("prefix")+8], &gotRanges[0])

	require.NoError(t, buf.Release())
	require.NoError(t, got.Close())
	assert.Equal(t, int64(0), buf.Refs())
}

func TestTuple_FromTuple(t *testing.T) {
	src, err := FromBytes(build(t, []Entry{entryA}, []Entry{entryB, entryC}))
	require.NoError(t, err)

	ranges, entries := src.Tuple()
	s, err := FromTuple(Owned(ranges), Owned(entries))
	require.NoError(t, err)

	l, ok := s.Get(1)
	require.True(t, ok)
	assert.Equal(t, []Entry{entryB, entryC}, l.Entries())
}

func TestTuple_Malformed(t *testing.T) {
	src, err := FromBytes(build(t, []Entry{entryA}))
	require.NoError(t, err)
	encoded := src.AppendTuple(nil)

	for _, cut := range []int{0, 4, 8, 20, len(encoded) - 1} {
		_, _, err := DecodeTuple(Owned(encoded[:cut]))
		assert.ErrorIs(t, err, ErrMalformed, "cut=%d", cut)
	}

	_, err = FromTuple(Owned(make([]byte, RangeSize+1)), Owned(nil))
	assert.ErrorIs(t, err, ErrMalformed)
}
