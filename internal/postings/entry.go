package postings

import (
	"encoding/binary"
	"fmt"
)

const (
	// EntrySize is the encoded width of an Entry.
	EntrySize = 14
	// RangeSize is the encoded width of a Range.
	RangeSize = 16
	// TrailerSize is the width of the ranges-length trailer.
	TrailerSize = 8
)

// Entry is one (term, document) occurrence.
type Entry struct {
	DocumentID     uint64
	Attribute      uint16
	AttributeIndex uint32
}

func (e Entry) String() string {
	return fmt.Sprintf("(doc=%d attr=%d pos=%d)", e.DocumentID, e.Attribute, e.AttributeIndex)
}

// PutEntry encodes e into the first EntrySize bytes of b.
func PutEntry(b []byte, e Entry) {
	_ = b[EntrySize-1]
	binary.LittleEndian.PutUint64(b[0:8], e.DocumentID)
	binary.LittleEndian.PutUint16(b[8:10], e.Attribute)
	binary.LittleEndian.PutUint32(b[10:14], e.AttributeIndex)
}

// ReadEntry decodes the Entry stored in the first EntrySize bytes of b.
func ReadEntry(b []byte) Entry {
	_ = b[EntrySize-1]
	return Entry{
		DocumentID:     binary.LittleEndian.Uint64(b[0:8]),
		Attribute:      binary.LittleEndian.Uint16(b[8:10]),
		AttributeIndex: binary.LittleEndian.Uint32(b[10:14]),
	}
}

// AppendEntries appends the encoding of entries to dst.
func AppendEntries(dst []byte, entries []Entry) []byte {
	n := len(dst)
	dst = append(dst, make([]byte, len(entries)*EntrySize)...)
	for i, e := range entries {
		PutEntry(dst[n+i*EntrySize:], e)
	}
	return dst
}

// Range is a half-open [Start, End) window into the entry array, counted in
// entries, not bytes.
type Range struct {
	Start uint64
	End   uint64
}

// Len returns the number of entries covered by r.
func (r Range) Len() uint64 { return r.End - r.Start }

func putRange(b []byte, r Range) {
	_ = b[RangeSize-1]
	binary.LittleEndian.PutUint64(b[0:8], r.Start)
	binary.LittleEndian.PutUint64(b[8:16], r.End)
}

func readRange(b []byte) Range {
	_ = b[RangeSize-1]
	return Range{
		Start: binary.LittleEndian.Uint64(b[0:8]),
		End:   binary.LittleEndian.Uint64(b[8:16]),
	}
}
