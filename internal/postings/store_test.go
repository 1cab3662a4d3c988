package postings

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	entryA = Entry{DocumentID: 0, Attribute: 3, AttributeIndex: 11}
	entryB = Entry{DocumentID: 1, Attribute: 4, AttributeIndex: 21}
	entryC = Entry{DocumentID: 2, Attribute: 8, AttributeIndex: 2}
)

func build(t testing.TB, lists ...[]Entry) []byte {
	t.Helper()
	b := NewMemoryBuilder()
	for _, l := range lists {
		require.NoError(t, b.Insert(l))
	}
	out, err := b.Bytes()
	require.NoError(t, err)
	return out
}

func randomLists(r *rand.Rand, n int) [][]Entry {
	lists := make([][]Entry, n)
	for i := range lists {
		l := make([]Entry, r.IntN(40))
		for j := range l {
			l[j] = Entry{
				DocumentID:     r.Uint64(),
				Attribute:      uint16(r.Uint32()),
				AttributeIndex: r.Uint32(),
			}
		}
		lists[i] = l
	}
	return lists
}

func TestEntry_Encoding(t *testing.T) {
	var b [EntrySize]byte
	e := Entry{DocumentID: 0x0102030405060708, Attribute: 0x090a, AttributeIndex: 0x0b0c0d0e}
	PutEntry(b[:], e)

	assert.Equal(t, []byte{
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
		0x0a, 0x09,
		0x0e, 0x0d, 0x0c, 0x0b,
	}, b[:])
	assert.Equal(t, e, ReadEntry(b[:]))
}

func TestStore_Scenario(t *testing.T) {
	s, err := FromBytes(build(t, []Entry{entryA}, []Entry{entryA, entryB, entryC}, []Entry{entryA, entryC}))
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, uint64(3), s.Len())
	require.Equal(t, uint64(6), s.EntryCount())

	l, ok := s.Get(0)
	require.True(t, ok)
	assert.Equal(t, []Entry{entryA}, l.Entries())

	l, ok = s.Get(1)
	require.True(t, ok)
	assert.Equal(t, []Entry{entryA, entryB, entryC}, l.Entries())

	l, ok = s.Get(2)
	require.True(t, ok)
	assert.Equal(t, []Entry{entryA, entryC}, l.Entries())
	assert.Equal(t, entryC, l.At(1))

	_, ok = s.Get(3)
	assert.False(t, ok)
}

func TestStore_RoundTrip(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 20; trial++ {
		lists := randomLists(r, r.IntN(64))
		s, err := FromBytes(build(t, lists...))
		require.NoError(t, err)

		require.Equal(t, uint64(len(lists)), s.Len())
		for i, want := range lists {
			got, ok := s.Get(uint64(i))
			require.True(t, ok)
			require.Equal(t, len(want), got.Len())
			if len(want) > 0 {
				assert.Equal(t, want, got.Entries())
			}
		}
		for _, id := range []uint64{uint64(len(lists)), uint64(len(lists)) + 1, ^uint64(0)} {
			_, ok := s.Get(id)
			assert.False(t, ok)
		}
		require.NoError(t, s.Close())
	}
}

func TestStore_TrailerConsistency(t *testing.T) {
	lists := randomLists(rand.New(rand.NewPCG(1, 2)), 17)

	var wantEntries, wantRanges []byte
	var off uint64
	for _, l := range lists {
		wantEntries = AppendEntries(wantEntries, l)
		var rb [RangeSize]byte
		putRange(rb[:], Range{Start: off, End: off + uint64(len(l))})
		wantRanges = append(wantRanges, rb[:]...)
		off += uint64(len(l))
	}

	buf := build(t, lists...)
	rangesLen := binary.LittleEndian.Uint64(buf[len(buf)-TrailerSize:])
	require.Equal(t, uint64(len(wantRanges)), rangesLen)

	body := uint64(len(buf) - TrailerSize)
	assert.Equal(t, wantRanges, buf[body-rangesLen:body])
	assert.Equal(t, wantEntries, buf[:body-rangesLen])

	s, err := FromBytes(buf)
	require.NoError(t, err)
	ranges, entries := s.Tuple()
	assert.Equal(t, wantRanges, ranges)
	assert.Equal(t, wantEntries, entries)
}

func TestStore_Contiguous(t *testing.T) {
	lists := randomLists(rand.New(rand.NewPCG(3, 4)), 32)
	s, err := FromBytes(build(t, lists...))
	require.NoError(t, err)

	var prev uint64
	for id := uint64(0); id < s.Len(); id++ {
		r, ok := s.RangeOf(id)
		require.True(t, ok)
		assert.Equal(t, prev, r.Start)
		assert.Equal(t, uint64(len(lists[id])), r.Len())
		prev = r.End
	}
	assert.Equal(t, s.EntryCount(), prev)
}

func TestStore_EmptyBuild(t *testing.T) {
	buf := build(t)
	assert.Len(t, buf, TrailerSize)

	s, err := FromBytes(buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), s.Len())
	for _, id := range []uint64{0, 1, 1 << 40} {
		_, ok := s.Get(id)
		assert.False(t, ok)
	}
}

func TestStore_SingleEmptyList(t *testing.T) {
	s, err := FromBytes(build(t, []Entry{}))
	require.NoError(t, err)

	l, ok := s.Get(0)
	require.True(t, ok)
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Entries())

	_, ok = s.Get(1)
	assert.False(t, ok)
}

func TestLoad_Malformed(t *testing.T) {
	trailer := func(n uint64) []byte {
		return binary.LittleEndian.AppendUint64(nil, n)
	}
	badRange := func() []byte {
		var rb [RangeSize]byte
		putRange(rb[:], Range{Start: 0, End: 2})
		buf := AppendEntries(nil, []Entry{entryA})
		buf = append(buf, rb[:]...)
		return append(buf, trailer(RangeSize)...)
	}
	inverted := func() []byte {
		var rb [RangeSize]byte
		putRange(rb[:], Range{Start: 1, End: 0})
		buf := AppendEntries(nil, []Entry{entryA})
		buf = append(buf, rb[:]...)
		return append(buf, trailer(RangeSize)...)
	}

	cases := map[string][]byte{
		"empty":               nil,
		"short":               make([]byte, 7),
		"ranges underflow":    trailer(1),
		"ranges overflow":     append(make([]byte, 10), trailer(11)...),
		"ranges not aligned":  append(make([]byte, 8), trailer(8)...),
		"entries not aligned": append(make([]byte, 5), trailer(0)...),
		"range past entries":  badRange(),
		"range inverted":      inverted(),
	}
	for name, buf := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromBytes(buf)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestStore_SharedBuffer(t *testing.T) {
	storeBytes := build(t, []Entry{entryA}, []Entry{entryB, entryC})
	blob := append(append([]byte("header--"), storeBytes...), []byte("--footer")...)

	buf := NewSharedBuffer(blob)
	s, err := FromSharedBytes(buf, 8, len(storeBytes))
	require.NoError(t, err)
	assert.Equal(t, ModeShared, s.Mode())
	assert.Equal(t, int64(3), buf.Refs())

	require.NoError(t, buf.Release())
	assert.Equal(t, int64(2), buf.Refs())

	l, ok := s.Get(1)
	require.True(t, ok)
	assert.Equal(t, []Entry{entryB, entryC}, l.Entries())

	clone, err := s.Clone()
	require.NoError(t, err)
	assert.Equal(t, int64(4), buf.Refs())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, int64(2), buf.Refs())

	l, ok = clone.Get(0)
	require.True(t, ok)
	assert.Equal(t, []Entry{entryA}, l.Entries())

	require.NoError(t, clone.Close())
	assert.Equal(t, int64(0), buf.Refs())

	_, err = buf.Window(0, 1)
	assert.ErrorIs(t, err, ErrReleased)
}

func TestStore_OpenMapped(t *testing.T) {
	src, err := FromBytes(build(t, []Entry{entryA}, []Entry{entryA, entryB, entryC}, []Entry{entryA, entryC}))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "postings.bin")
	require.NoError(t, src.WriteFile(path))

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, ModeMapped, s.Mode())
	assert.Equal(t, src.Size(), s.Size())
	l, ok := s.Get(1)
	require.True(t, ok)
	assert.Equal(t, []Entry{entryA, entryB, entryC}, l.Entries())
}

func TestStore_WriteToMatchesBuild(t *testing.T) {
	buf := build(t, randomLists(rand.New(rand.NewPCG(5, 6)), 9)...)
	s, err := FromBytes(buf)
	require.NoError(t, err)

	var out bytes.Buffer
	n, err := s.WriteTo(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(len(buf)), n)
	assert.Equal(t, buf, out.Bytes())
}

func TestStore_ConcurrentReaders(t *testing.T) {
	lists := randomLists(rand.New(rand.NewPCG(8, 9)), 50)
	s, err := FromBytes(build(t, lists...))
	require.NoError(t, err)

	errs := make(chan error, 8)
	for w := 0; w < 8; w++ {
		go func() {
			for i, want := range lists {
				got, ok := s.Get(uint64(i))
				if !ok || got.Len() != len(want) {
					errs <- errors.New("mismatched list")
					return
				}
			}
			errs <- nil
		}()
	}
	for w := 0; w < 8; w++ {
		require.NoError(t, <-errs)
	}
}

func BenchmarkStore_Get(b *testing.B) {
	lists := randomLists(rand.New(rand.NewPCG(1, 1)), 1024)
	s, err := FromBytes(build(b, lists...))
	require.NoError(b, err)

	b.ReportAllocs()
	b.ResetTimer()
	var n int
	for i := 0; i < b.N; i++ {
		l, _ := s.Get(uint64(i % 1024))
		n += l.Len()
	}
	_ = n
}
