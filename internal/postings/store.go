package postings

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
)

// ErrMalformed is returned when a buffer does not hold a valid store layout.
var ErrMalformed = errors.New("postings: malformed store")

// Store maps term ids to posting lists. It is immutable and safe for
// concurrent readers; lists returned by Get are valid until Close.
type Store struct {
	ranges  Data
	entries Data
	count   uint64
}

// Load validates the trailer-anchored layout in data and returns a store
// holding its own windows over the two segments. The caller keeps its
// reference on data and releases it independently.
func Load(data Data) (*Store, error) {
	b := data.Bytes()
	if len(b) < TrailerSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the trailer", ErrMalformed, len(b))
	}
	body := uint64(len(b) - TrailerSize)
	rangesLen := binary.LittleEndian.Uint64(b[body:])
	if rangesLen > body {
		return nil, fmt.Errorf("%w: ranges length %d exceeds %d available bytes", ErrMalformed, rangesLen, body)
	}
	entriesLen := body - rangesLen

	ranges, err := data.Range(int(entriesLen), int(rangesLen))
	if err != nil {
		return nil, err
	}
	entries, err := data.Range(0, int(entriesLen))
	if err != nil {
		_ = ranges.Release()
		return nil, err
	}
	s, err := newStore(ranges, entries)
	if err != nil {
		_ = ranges.Release()
		_ = entries.Release()
		return nil, err
	}
	return s, nil
}

// FromBytes loads a store from an exclusively owned buffer.
func FromBytes(b []byte) (*Store, error) {
	return Load(Owned(b))
}

// FromSharedBytes loads a store from the window [off, off+n) of buf.
func FromSharedBytes(buf *SharedBuffer, off, n int) (*Store, error) {
	d, err := buf.Window(off, n)
	if err != nil {
		return nil, err
	}
	defer d.Release()
	return Load(d)
}

// Open memory-maps the store file at path.
func Open(path string) (*Store, error) {
	buf, err := MapFile(path)
	if err != nil {
		return nil, err
	}
	defer buf.Release()
	s, err := FromSharedBytes(buf, 0, buf.Len())
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return s, nil
}

// newStore takes ownership of both windows and validates them.
func newStore(ranges, entries Data) (*Store, error) {
	if ranges.Len()%RangeSize != 0 {
		return nil, fmt.Errorf("%w: ranges segment of %d bytes is not a multiple of %d", ErrMalformed, ranges.Len(), RangeSize)
	}
	if entries.Len()%EntrySize != 0 {
		return nil, fmt.Errorf("%w: entries segment of %d bytes is not a multiple of %d", ErrMalformed, entries.Len(), EntrySize)
	}
	entryCount := uint64(entries.Len() / EntrySize)
	rb := ranges.Bytes()
	count := uint64(len(rb) / RangeSize)
	for i := uint64(0); i < count; i++ {
		r := readRange(rb[i*RangeSize:])
		if r.Start > r.End || r.End > entryCount {
			return nil, fmt.Errorf("%w: range %d [%d,%d) outside %d entries", ErrMalformed, i, r.Start, r.End, entryCount)
		}
	}
	return &Store{ranges: ranges, entries: entries, count: count}, nil
}

// Len returns the number of posting lists (term ids) in the store.
func (s *Store) Len() uint64 { return s.count }

// EntryCount returns the total number of entries across all lists.
func (s *Store) EntryCount() uint64 { return uint64(s.entries.Len() / EntrySize) }

// Size returns the encoded size of the store including its trailer.
func (s *Store) Size() int { return s.entries.Len() + s.ranges.Len() + TrailerSize }

// Mode reports how the store's bytes are held.
func (s *Store) Mode() Mode { return s.entries.Mode() }

// RangeOf returns the entry window of id.
func (s *Store) RangeOf(id uint64) (Range, bool) {
	if id >= s.count {
		return Range{}, false
	}
	return readRange(s.ranges.Bytes()[id*RangeSize:]), true
}

// Get returns the posting list of id, or false when id is out of range.
func (s *Store) Get(id uint64) (List, bool) {
	r, ok := s.RangeOf(id)
	if !ok {
		return List{}, false
	}
	return List{b: s.entries.Bytes()[r.Start*EntrySize : r.End*EntrySize]}, true
}

// All iterates over every (id, list) pair in id order.
func (s *Store) All() iter.Seq2[uint64, List] {
	return func(yield func(uint64, List) bool) {
		for id := uint64(0); id < s.count; id++ {
			l, _ := s.Get(id)
			if !yield(id, l) {
				return
			}
		}
	}
}

// Clone returns a second store over the same bytes with its own references.
func (s *Store) Clone() (*Store, error) {
	ranges, err := s.ranges.Range(0, s.ranges.Len())
	if err != nil {
		return nil, err
	}
	entries, err := s.entries.Range(0, s.entries.Len())
	if err != nil {
		_ = ranges.Release()
		return nil, err
	}
	return &Store{ranges: ranges, entries: entries, count: s.count}, nil
}

// Close releases the store's references on its backing buffers.
func (s *Store) Close() error {
	return errors.Join(s.ranges.Release(), s.entries.Release())
}

// WriteTo writes the store in its trailer-anchored layout.
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	var total int64
	var trailer [TrailerSize]byte
	binary.LittleEndian.PutUint64(trailer[:], uint64(s.ranges.Len()))
	for _, part := range [][]byte{s.entries.Bytes(), s.ranges.Bytes(), trailer[:]} {
		n, err := w.Write(part)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteFile writes the store to path, replacing any existing file atomically.
func (s *Store) WriteFile(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}
	if _, err := s.WriteTo(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// List is a zero-copy view over one posting list.
type List struct {
	b []byte
}

// Len returns the number of entries in the list.
func (l List) Len() int { return len(l.b) / EntrySize }

// At decodes the i-th entry.
func (l List) At(i int) Entry { return ReadEntry(l.b[i*EntrySize:]) }

// Bytes returns the raw encoded entries.
func (l List) Bytes() []byte { return l.b }

// Entries decodes the whole list into a new slice.
func (l List) Entries() []Entry {
	out := make([]Entry, l.Len())
	for i := range out {
		out[i] = l.At(i)
	}
	return out
}

// All iterates over the entries of the list.
func (l List) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for i := 0; i < l.Len(); i++ {
			if !yield(l.At(i)) {
				return
			}
		}
	}
}
