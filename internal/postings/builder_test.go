package postings

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestBuilder_InsertID(t *testing.T) {
	b := NewMemoryBuilder()
	require.NoError(t, b.InsertID(0, []Entry{entryA}))

	err := b.InsertID(2, []Entry{entryB})
	require.ErrorIs(t, err, ErrOutOfOrder)
	err = b.InsertID(0, []Entry{entryB})
	require.ErrorIs(t, err, ErrOutOfOrder)

	require.NoError(t, b.InsertID(1, []Entry{entryB, entryC}))
	assert.Equal(t, uint64(2), b.Len())

	buf, err := b.Bytes()
	require.NoError(t, err)
	s, err := FromBytes(buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), s.Len())
}

func TestBuilder_Finished(t *testing.T) {
	b := NewMemoryBuilder()
	require.NoError(t, b.Insert([]Entry{entryA}))
	require.NoError(t, b.Finish())

	assert.ErrorIs(t, b.Insert(nil), ErrFinished)
	assert.ErrorIs(t, b.InsertID(1, nil), ErrFinished)
	assert.ErrorIs(t, b.Finish(), ErrFinished)

	w, err := b.IntoInner()
	require.NoError(t, err)
	buf, ok := w.(*bytes.Buffer)
	require.True(t, ok)
	assert.Equal(t, EntrySize+RangeSize+TrailerSize, buf.Len())
}

func TestBuilder_StreamsToWriter(t *testing.T) {
	var out bytes.Buffer
	b := NewBuilder(&out)
	require.NoError(t, b.Insert([]Entry{entryA, entryC}))
	require.NoError(t, b.InsertRaw(AppendEntries(nil, []Entry{entryB})))

	_, err := b.Bytes()
	assert.ErrorIs(t, err, ErrNotMemory)

	w, err := b.IntoInner()
	require.NoError(t, err)
	assert.Same(t, &out, w)
	assert.Equal(t, int64(out.Len()), b.Written())

	s, err := FromBytes(out.Bytes())
	require.NoError(t, err)
	l, ok := s.Get(1)
	require.True(t, ok)
	assert.Equal(t, []Entry{entryB}, l.Entries())
}

func TestBuilder_LargeList(t *testing.T) {
	list := make([]Entry, chunkEntries*3+5)
	for i := range list {
		list[i] = Entry{DocumentID: uint64(i), Attribute: uint16(i % 7), AttributeIndex: uint32(i)}
	}
	s, err := FromBytes(build(t, nil, list))
	require.NoError(t, err)

	l, ok := s.Get(1)
	require.True(t, ok)
	assert.Equal(t, list, l.Entries())
}

func TestBuilder_WriteErrorIsSticky(t *testing.T) {
	boom := errors.New("disk full")
	b := NewBuilder(failingWriter{err: boom})
	require.NoError(t, b.Insert([]Entry{entryA}))

	err := b.Finish()
	require.ErrorIs(t, err, boom)
	assert.ErrorIs(t, b.Insert([]Entry{entryB}), boom)
	assert.ErrorIs(t, b.Finish(), boom)

	_, err = b.IntoInner()
	assert.ErrorIs(t, err, boom)
}

func TestBuilder_InsertRawRejectsPartialEntry(t *testing.T) {
	b := NewMemoryBuilder()
	require.Error(t, b.InsertRaw(make([]byte, EntrySize+1)))
	assert.Equal(t, uint64(0), b.Len())
}
