package segment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/postings"
)

// Reader is an open generation file. The postings store points straight into
// the file data; everything else is decoded on open.
type Reader struct {
	filePath   string
	header     Header
	footer     Footer
	schema     Schema
	documents  []index.StoredDocument
	dictionary []string
	live       *roaring.Bitmap
	store      *postings.Store
}

// OpenReader opens the generation file at path, memory-mapping it when
// useMmap is set and reading it into a shared buffer otherwise.
func OpenReader(path string, useMmap bool) (*Reader, error) {
	var buf *postings.SharedBuffer
	if useMmap {
		b, err := postings.MapFile(path)
		if err != nil {
			return nil, fmt.Errorf("opening generation file: %w", err)
		}
		buf = b
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("opening generation file: %w", err)
		}
		buf = postings.NewSharedBuffer(data)
	}
	defer buf.Release()

	whole, err := buf.Window(0, buf.Len())
	if err != nil {
		return nil, err
	}
	defer whole.Release()

	r, err := decode(whole)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.filePath = path
	return r, nil
}

func decode(data postings.Data) (*Reader, error) {
	b := data.Bytes()
	if len(b) < HeaderSize+FooterSize {
		return nil, fmt.Errorf("invalid generation file: %d bytes is too short", len(b))
	}
	header, err := decodeHeader(b[:HeaderSize])
	if err != nil {
		return nil, err
	}
	footer, err := decodeFooter(b[len(b)-FooterSize:], uint64(len(b)))
	if err != nil {
		return nil, err
	}
	section := func(i int) []byte {
		s := footer.Sections[i]
		return b[s.Offset : s.Offset+s.Length]
	}

	schemaData := section(SectionSchema)
	if crc32.ChecksumIEEE(schemaData) != footer.SchemaChecksum {
		return nil, fmt.Errorf("invalid generation file: schema checksum mismatch")
	}
	r := &Reader{header: header, footer: footer}
	if err := json.Unmarshal(schemaData, &r.schema); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(section(SectionDocuments)))
	dec.UseNumber()
	if err := dec.Decode(&r.documents); err != nil {
		return nil, fmt.Errorf("parsing documents: %w", err)
	}
	if err := json.Unmarshal(section(SectionDictionary), &r.dictionary); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	r.live = roaring.New()
	if live := section(SectionLive); len(live) > 0 {
		if err := r.live.UnmarshalBinary(live); err != nil {
			return nil, fmt.Errorf("parsing live documents: %w", err)
		}
	}

	ps := footer.Sections[SectionPostings]
	window, err := data.Range(int(ps.Offset), int(ps.Length))
	if err != nil {
		return nil, err
	}
	defer window.Release()
	store, err := postings.Load(window)
	if err != nil {
		return nil, fmt.Errorf("loading postings: %w", err)
	}
	if store.Len() != uint64(len(r.dictionary)) {
		store.Close()
		return nil, fmt.Errorf("invalid generation file: %d posting lists for %d terms", store.Len(), len(r.dictionary))
	}
	r.store = store
	return r, nil
}

// Path returns the file the reader was opened from.
func (r *Reader) Path() string { return r.filePath }

// Generation returns the generation number recorded in the header.
func (r *Reader) Generation() uint64 { return r.header.Generation }

// Schema returns the decoded schema.
func (r *Reader) Schema() Schema { return r.schema }

// Documents returns the stored live documents.
func (r *Reader) Documents() []index.StoredDocument { return r.documents }

// Dictionary returns the sorted term dictionary; a term's index is its id.
func (r *Reader) Dictionary() []string { return r.dictionary }

// Live returns the live document bitmap.
func (r *Reader) Live() *roaring.Bitmap { return r.live }

// Postings returns the postings store embedded in the file.
func (r *Reader) Postings() *postings.Store { return r.store }

// Sections returns the section table.
func (r *Reader) Sections() [sectionCount]Section { return r.footer.Sections }

// Terms returns the number of terms.
func (r *Reader) Terms() int { return len(r.dictionary) }

// DocCount returns the number of live documents.
func (r *Reader) DocCount() uint64 { return r.live.GetCardinality() }

// Close releases the file data.
func (r *Reader) Close() error {
	return r.store.Close()
}
