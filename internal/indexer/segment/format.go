package segment

import (
	"encoding/binary"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/postings"
)

// MagicBytes identifies a valid .spdx generation file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 1
	HeaderSize    int    = 16
	FooterSize    int    = sectionCount*16 + 8
)

// Sections of a generation file, in file order.
const (
	SectionDocuments = iota
	SectionSchema
	SectionDictionary
	SectionLive
	SectionPostings
	sectionCount
)

var sectionNames = [sectionCount]string{"documents", "schema", "dictionary", "live", "postings"}

// Header is written at the start of every generation file.
type Header struct {
	Magic      uint32
	Version    uint32
	Generation uint64
}

func (h Header) encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint64(b[8:16], h.Generation)
	return b
}

func decodeHeader(b []byte) (Header, error) {
	h := Header{
		Magic:      binary.LittleEndian.Uint32(b[0:4]),
		Version:    binary.LittleEndian.Uint32(b[4:8]),
		Generation: binary.LittleEndian.Uint64(b[8:16]),
	}
	if h.Magic != MagicBytes {
		return h, fmt.Errorf("invalid generation file: bad magic bytes %x", h.Magic)
	}
	if h.Version != FormatVersion {
		return h, fmt.Errorf("unsupported generation file version %d", h.Version)
	}
	return h, nil
}

// Section locates one section of the file.
type Section struct {
	Offset uint64
	Length uint64
}

// Footer closes every generation file: the section table, a checksum of the
// schema section and the magic bytes again.
type Footer struct {
	Sections       [sectionCount]Section
	SchemaChecksum uint32
}

func (f Footer) encode() []byte {
	b := make([]byte, FooterSize)
	for i, s := range f.Sections {
		binary.LittleEndian.PutUint64(b[i*16:], s.Offset)
		binary.LittleEndian.PutUint64(b[i*16+8:], s.Length)
	}
	binary.LittleEndian.PutUint32(b[sectionCount*16:], f.SchemaChecksum)
	binary.LittleEndian.PutUint32(b[sectionCount*16+4:], MagicBytes)
	return b
}

func decodeFooter(b []byte, fileSize uint64) (Footer, error) {
	var f Footer
	if magic := binary.LittleEndian.Uint32(b[sectionCount*16+4:]); magic != MagicBytes {
		return f, fmt.Errorf("invalid generation file: bad footer magic %x", magic)
	}
	prevEnd := uint64(HeaderSize)
	for i := range f.Sections {
		s := Section{
			Offset: binary.LittleEndian.Uint64(b[i*16:]),
			Length: binary.LittleEndian.Uint64(b[i*16+8:]),
		}
		if s.Offset != prevEnd || s.Length > fileSize || s.Offset+s.Length > fileSize-uint64(FooterSize) {
			return f, fmt.Errorf("invalid generation file: %s section [%d,+%d) out of place", sectionNames[i], s.Offset, s.Length)
		}
		prevEnd = s.Offset + s.Length
		f.Sections[i] = s
	}
	if prevEnd != fileSize-uint64(FooterSize) {
		return f, fmt.Errorf("invalid generation file: %d trailing bytes before footer", fileSize-uint64(FooterSize)-prevEnd)
	}
	f.SchemaChecksum = binary.LittleEndian.Uint32(b[sectionCount*16:])
	return f, nil
}

// Schema describes the documents of a generation.
type Schema struct {
	PrimaryKey string         `json:"primaryKey"`
	Fields     []string       `json:"fields"`
	NextID     uint32         `json:"nextId"`
	Settings   index.Settings `json:"settings"`
}

// Contents is everything a generation file holds.
type Contents struct {
	Schema     Schema
	Documents  []index.StoredDocument
	Dictionary []string
	Live       *roaring.Bitmap
	Lists      [][]postings.Entry
}
