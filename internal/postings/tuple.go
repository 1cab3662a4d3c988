package postings

import (
	"encoding/binary"
	"fmt"
)

// Tuple returns the raw ranges and entries segments of the store.
func (s *Store) Tuple() (ranges, entries []byte) {
	return s.ranges.Bytes(), s.entries.Bytes()
}

// TupleSize returns the length of the AppendTuple encoding.
func (s *Store) TupleSize() int {
	return 8 + s.ranges.Len() + 8 + s.entries.Len()
}

// AppendTuple appends the embedded form of the store to dst:
//
//	[u64 LE len(ranges)][ranges][u64 LE len(entries)][entries]
func (s *Store) AppendTuple(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, uint64(s.ranges.Len()))
	dst = append(dst, s.ranges.Bytes()...)
	dst = binary.LittleEndian.AppendUint64(dst, uint64(s.entries.Len()))
	return append(dst, s.entries.Bytes()...)
}

// DecodeTuple reconstructs a store from the AppendTuple encoding held in d.
// The store references sub-windows of d; the caller keeps its own reference.
func DecodeTuple(d Data) (*Store, int, error) {
	b := d.Bytes()
	off := 0
	next := func(what string) (Data, error) {
		if len(b)-off < 8 {
			return Data{}, fmt.Errorf("%w: truncated %s length", ErrMalformed, what)
		}
		n := binary.LittleEndian.Uint64(b[off:])
		off += 8
		if n > uint64(len(b)-off) {
			return Data{}, fmt.Errorf("%w: %s length %d exceeds %d remaining bytes", ErrMalformed, what, n, len(b)-off)
		}
		w, err := d.Range(off, int(n))
		if err != nil {
			return Data{}, err
		}
		off += int(n)
		return w, nil
	}

	ranges, err := next("ranges")
	if err != nil {
		return nil, 0, err
	}
	entries, err := next("entries")
	if err != nil {
		_ = ranges.Release()
		return nil, 0, err
	}
	s, err := newStore(ranges, entries)
	if err != nil {
		_ = ranges.Release()
		_ = entries.Release()
		return nil, 0, err
	}
	return s, off, nil
}

// FromTuple builds a store from separate ranges and entries windows. The
// store takes its own references; callers release theirs independently.
func FromTuple(ranges, entries Data) (*Store, error) {
	r, err := ranges.Range(0, ranges.Len())
	if err != nil {
		return nil, err
	}
	e, err := entries.Range(0, entries.Len())
	if err != nil {
		_ = r.Release()
		return nil, err
	}
	s, err := newStore(r, e)
	if err != nil {
		_ = r.Release()
		_ = e.Release()
		return nil, err
	}
	return s, nil
}
