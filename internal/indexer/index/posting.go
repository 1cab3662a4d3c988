package index

import "github.com/Adithya-Monish-Kumar-K/searchcore/internal/postings"

// Document is a stored document: attribute name to decoded value.
type Document map[string]any

// TermEntry pairs a term with its posting list, ordered by document, then
// attribute, then position.
type TermEntry struct {
	Term     string
	Postings []postings.Entry
}
