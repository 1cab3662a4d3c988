package index

import (
	"fmt"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/postings"
)

// MemoryIndex accumulates the inverted index of one generation before it is
// written out. It is owned by a single builder goroutine.
type MemoryIndex struct {
	index   map[string][]postings.Entry
	entries int
	docs    int
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index: make(map[string][]postings.Entry),
	}
}

// AddDocument indexes the searchable attributes of doc. The attribute number
// of a field is its position in attrs. Documents must be added in ascending
// id order for the posting lists to come out sorted.
func (m *MemoryIndex) AddDocument(id uint32, doc Document, attrs []string) error {
	if len(attrs) > math.MaxUint16+1 {
		return fmt.Errorf("too many searchable attributes: %d", len(attrs))
	}
	for attr, field := range attrs {
		value, ok := doc[field]
		if !ok {
			continue
		}
		for _, token := range tokenizer.TokenizeValue(value) {
			m.index[token.Term] = append(m.index[token.Term], postings.Entry{
				DocumentID:     uint64(id),
				Attribute:      uint16(attr),
				AttributeIndex: uint32(token.Position),
			})
			m.entries++
		}
	}
	m.docs++
	return nil
}

// Snapshot returns every term with its postings, sorted by term. The index
// of a term in the result is its term id.
func (m *MemoryIndex) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0, len(m.index))
	for term, list := range m.index {
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: list,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

// Terms returns the number of distinct terms.
func (m *MemoryIndex) Terms() int {
	return len(m.index)
}

// Size returns the number of posting entries.
func (m *MemoryIndex) Size() int {
	return m.entries
}

// DocCount returns the number of documents added.
func (m *MemoryIndex) DocCount() int {
	return m.docs
}
