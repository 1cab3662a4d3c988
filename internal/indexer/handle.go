package indexer

import (
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/postings"
)

// Handle is a reader's pin on one generation. Everything read through it
// stays consistent and valid until Release, regardless of later commits.
type Handle struct {
	gen      *Generation
	released atomic.Bool
}

// Release unpins the generation. It is idempotent.
func (h *Handle) Release() {
	if h.released.Swap(true) {
		return
	}
	h.gen.release()
}

// Generation returns the sequence number of the pinned generation.
func (h *Handle) Generation() uint64 { return h.gen.seq }

// TermID resolves a normalized term to its id.
func (h *Handle) TermID(term string) (uint64, bool) { return h.gen.termID(term) }

// Postings returns the posting list of a normalized term.
func (h *Handle) Postings(term string) (postings.List, bool) {
	id, ok := h.gen.termID(term)
	if !ok {
		return postings.List{}, false
	}
	return h.gen.store.Get(id)
}

// Search normalizes word the way documents are tokenized and returns its
// posting list.
func (h *Handle) Search(word string) (postings.List, bool) {
	term := tokenizer.Normalize(word)
	if term == "" {
		return postings.List{}, false
	}
	return h.Postings(term)
}

// Store returns the postings store of the generation.
func (h *Handle) Store() *postings.Store { return h.gen.store }

// Terms returns the sorted term dictionary.
func (h *Handle) Terms() []string { return h.gen.dictionary }

// Document returns the stored document with the given external id.
func (h *Handle) Document(id string) (index.Document, bool) { return h.gen.table.Get(id) }

// DisplayedDocument returns the document restricted to the displayed
// attributes.
func (h *Handle) DisplayedDocument(id string) (index.Document, bool) {
	doc, ok := h.gen.table.Get(id)
	if !ok {
		return nil, false
	}
	out := make(index.Document)
	for _, f := range h.gen.settings.Displayed(h.gen.table.Fields()) {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out, true
}

// NumDocuments returns the number of live documents.
func (h *Handle) NumDocuments() uint64 { return h.gen.table.Len() }

// Fields returns every known attribute in first-seen order.
func (h *Handle) Fields() []string { return h.gen.table.Fields() }

// PrimaryKey returns the attribute holding document ids, or "".
func (h *Handle) PrimaryKey() string { return h.gen.table.PrimaryKey() }

// Settings returns a copy of the generation's settings.
func (h *Handle) Settings() index.Settings { return h.gen.settings.Clone() }
