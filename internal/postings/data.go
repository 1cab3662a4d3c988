package postings

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/mmap"
)

// ErrReleased is returned when a window is requested from a buffer whose
// last reference has already been dropped.
var ErrReleased = errors.New("postings: buffer released")

// Mode identifies how the bytes behind a Data window are owned.
type Mode uint8

const (
	ModeOwned Mode = iota
	ModeShared
	ModeMapped
)

func (m Mode) String() string {
	switch m {
	case ModeOwned:
		return "owned"
	case ModeShared:
		return "shared"
	case ModeMapped:
		return "mapped"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// SharedBuffer is a reference-counted allocation that many Data windows can
// point into. It starts with one reference held by its creator; the backing
// memory (or mapping) is released when the last reference is dropped.
type SharedBuffer struct {
	b       []byte
	refs    atomic.Int64
	mapped  bool
	closeFn func() error
}

// NewSharedBuffer wraps b. The caller owns the initial reference.
func NewSharedBuffer(b []byte) *SharedBuffer {
	s := &SharedBuffer{b: b}
	s.refs.Store(1)
	return s
}

// Mapped wraps an open mapping; the mapping is closed on the last release.
func Mapped(m *mmap.Mapping) *SharedBuffer {
	s := &SharedBuffer{b: m.Bytes(), mapped: true, closeFn: m.Close}
	s.refs.Store(1)
	return s
}

// MapFile memory-maps path read-only.
func MapFile(path string) (*SharedBuffer, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mapping %s: %w", path, err)
	}
	_ = m.Advise(mmap.AccessRandom)
	return Mapped(m), nil
}

// Len returns the size of the whole buffer.
func (s *SharedBuffer) Len() int { return len(s.b) }

// Refs returns the current reference count.
func (s *SharedBuffer) Refs() int64 { return s.refs.Load() }

func (s *SharedBuffer) tryRetain() bool {
	for {
		refs := s.refs.Load()
		if refs <= 0 {
			return false
		}
		if s.refs.CompareAndSwap(refs, refs+1) {
			return true
		}
	}
}

// Release drops one reference.
func (s *SharedBuffer) Release() error {
	switch n := s.refs.Add(-1); {
	case n == 0:
		if s.closeFn != nil {
			return s.closeFn()
		}
	case n < 0:
		return ErrReleased
	}
	return nil
}

// Window returns a Data view over [off, off+n) holding its own reference.
func (s *SharedBuffer) Window(off, n int) (Data, error) {
	if !s.tryRetain() {
		return Data{}, ErrReleased
	}
	if off < 0 || n < 0 || off+n > len(s.b) {
		_ = s.Release()
		return Data{}, fmt.Errorf("postings: window [%d,+%d) out of bounds of %d bytes", off, n, len(s.b))
	}
	return Data{b: s.b[off : off+n : off+n], owner: s, released: new(atomic.Bool)}, nil
}

// Data is a window of bytes backing a store segment. Owned data belongs to the
// window alone; shared and mapped windows each hold one reference on their
// SharedBuffer and must be released exactly once. Release is idempotent.
type Data struct {
	b        []byte
	owner    *SharedBuffer
	released *atomic.Bool
}

// Owned returns a window that exclusively owns b.
func Owned(b []byte) Data {
	return Data{b: b}
}

// Shared returns a window over [off, off+n) of buf.
func Shared(buf *SharedBuffer, off, n int) (Data, error) {
	return buf.Window(off, n)
}

// Bytes returns the window contents. They must not be modified, and must not
// be used after Release.
func (d Data) Bytes() []byte { return d.b }

// Len returns the window length.
func (d Data) Len() int { return len(d.b) }

// Mode reports the ownership mode of the window.
func (d Data) Mode() Mode {
	switch {
	case d.owner == nil:
		return ModeOwned
	case d.owner.mapped:
		return ModeMapped
	default:
		return ModeShared
	}
}

// Range returns a sub-window [off, off+n) without copying. For shared and
// mapped data the new window holds its own reference.
func (d Data) Range(off, n int) (Data, error) {
	if off < 0 || n < 0 || off+n > len(d.b) {
		return Data{}, fmt.Errorf("postings: range [%d,+%d) out of bounds of %d bytes", off, n, len(d.b))
	}
	if d.owner == nil {
		return Data{b: d.b[off : off+n : off+n]}, nil
	}
	if d.released.Load() || !d.owner.tryRetain() {
		return Data{}, ErrReleased
	}
	return Data{b: d.b[off : off+n : off+n], owner: d.owner, released: new(atomic.Bool)}, nil
}

// Release drops the window's reference on its buffer.
func (d Data) Release() error {
	if d.owner == nil || d.released.Swap(true) {
		return nil
	}
	return d.owner.Release()
}
