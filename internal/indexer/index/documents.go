package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
)

var (
	// ErrMissingDocumentID is returned when a document lacks its primary key.
	ErrMissingDocumentID = errors.New("document has no primary key value")
	// ErrInvalidDocumentID is returned when a primary key value cannot be used
	// as a document id.
	ErrInvalidDocumentID = errors.New("invalid document id")
)

// DocumentTable holds the documents of one index generation: the mapping
// between external ids (primary key values) and dense internal ids, the
// stored documents, the set of live internal ids and the order in which
// fields were first seen.
type DocumentTable struct {
	primaryKey string
	fields     []string
	docs       map[uint32]Document
	ids        map[string]uint32
	live       *roaring.Bitmap
	nextID     uint32
}

// StoredDocument is the persisted form of one live document.
type StoredDocument struct {
	ID     uint32   `json:"i"`
	Key    string   `json:"k"`
	Fields Document `json:"f"`
}

func NewDocumentTable() *DocumentTable {
	return &DocumentTable{
		docs: make(map[uint32]Document),
		ids:  make(map[string]uint32),
		live: roaring.New(),
	}
}

// Restore rebuilds a table from persisted state.
func Restore(primaryKey string, fields []string, nextID uint32, docs []StoredDocument, live *roaring.Bitmap) (*DocumentTable, error) {
	t := NewDocumentTable()
	t.primaryKey = primaryKey
	t.fields = slices.Clone(fields)
	t.nextID = nextID
	for _, d := range docs {
		if d.ID >= nextID {
			return nil, fmt.Errorf("document %q has id %d beyond next id %d", d.Key, d.ID, nextID)
		}
		t.docs[d.ID] = d.Fields
		t.ids[d.Key] = d.ID
	}
	if live != nil {
		t.live = live
	} else {
		for _, d := range docs {
			t.live.Add(d.ID)
		}
	}
	if t.live.GetCardinality() != uint64(len(t.docs)) {
		return nil, fmt.Errorf("live set holds %d ids for %d documents", t.live.GetCardinality(), len(t.docs))
	}
	return t, nil
}

// Clone returns a copy that can be mutated without affecting t. Stored
// documents are never mutated in place, so they are shared.
func (t *DocumentTable) Clone() *DocumentTable {
	return &DocumentTable{
		primaryKey: t.primaryKey,
		fields:     slices.Clone(t.fields),
		docs:       maps.Clone(t.docs),
		ids:        maps.Clone(t.ids),
		live:       t.live.Clone(),
		nextID:     t.nextID,
	}
}

// PrimaryKey returns the attribute holding document ids, or "".
func (t *DocumentTable) PrimaryKey() string { return t.primaryKey }

// SetPrimaryKey sets the primary key. It fails once documents are stored
// under a different key.
func (t *DocumentTable) SetPrimaryKey(key string) error {
	if key == t.primaryKey {
		return nil
	}
	if t.Len() > 0 && t.primaryKey != "" {
		return fmt.Errorf("primary key is already %q", t.primaryKey)
	}
	t.primaryKey = key
	return nil
}

// Fields returns the known fields in first-seen order.
func (t *DocumentTable) Fields() []string { return t.fields }

// NextID returns the internal id the next new document will receive.
func (t *DocumentTable) NextID() uint32 { return t.nextID }

// Len returns the number of live documents.
func (t *DocumentTable) Len() uint64 { return t.live.GetCardinality() }

// Live returns the bitmap of live internal ids. It must not be modified.
func (t *DocumentTable) Live() *roaring.Bitmap { return t.live }

// Get returns the document stored under the external id.
func (t *DocumentTable) Get(key string) (Document, bool) {
	id, ok := t.ids[key]
	if !ok {
		return nil, false
	}
	return t.docs[id], true
}

// InternalID returns the internal id of an external id.
func (t *DocumentTable) InternalID(key string) (uint32, bool) {
	id, ok := t.ids[key]
	return id, ok
}

// Put stores doc, replacing any document with the same id. It reports
// whether a document was replaced.
func (t *DocumentTable) Put(doc Document, keys []string) (bool, error) {
	key, err := t.documentID(doc)
	if err != nil {
		return false, err
	}
	t.observe(keys, doc)
	if id, ok := t.ids[key]; ok {
		t.docs[id] = doc
		return true, nil
	}
	if t.nextID == ^uint32(0) {
		return false, fmt.Errorf("document id space exhausted")
	}
	id := t.nextID
	t.nextID++
	t.ids[key] = id
	t.docs[id] = doc
	t.live.Add(id)
	return false, nil
}

// Merge updates the fields present in doc on the stored document with the
// same id, inserting it when missing.
func (t *DocumentTable) Merge(doc Document, keys []string) (bool, error) {
	key, err := t.documentID(doc)
	if err != nil {
		return false, err
	}
	prev, ok := t.Get(key)
	if !ok {
		return t.Put(doc, keys)
	}
	merged := maps.Clone(prev)
	maps.Copy(merged, doc)
	return t.Put(merged, keys)
}

// Delete removes the document with the external id.
func (t *DocumentTable) Delete(key string) bool {
	id, ok := t.ids[key]
	if !ok {
		return false
	}
	delete(t.ids, key)
	delete(t.docs, id)
	t.live.Remove(id)
	return true
}

// Clear removes every document and returns how many were removed. Field
// order and the primary key are kept; internal ids are never reused.
func (t *DocumentTable) Clear() uint64 {
	n := t.Len()
	t.docs = make(map[uint32]Document)
	t.ids = make(map[string]uint32)
	t.live = roaring.New()
	return n
}

// Each calls fn for every live document in ascending internal id order.
func (t *DocumentTable) Each(fn func(id uint32, doc Document) error) error {
	it := t.live.Iterator()
	for it.HasNext() {
		id := it.Next()
		if err := fn(id, t.docs[id]); err != nil {
			return err
		}
	}
	return nil
}

// Stored returns the persisted form of every live document.
func (t *DocumentTable) Stored() []StoredDocument {
	keys := make(map[uint32]string, len(t.ids))
	for k, id := range t.ids {
		keys[id] = k
	}
	out := make([]StoredDocument, 0, len(t.docs))
	_ = t.Each(func(id uint32, doc Document) error {
		out = append(out, StoredDocument{ID: id, Key: keys[id], Fields: doc})
		return nil
	})
	return out
}

// Invert builds the inverted index of every live document.
func (t *DocumentTable) Invert(settings Settings) (*MemoryIndex, error) {
	attrs := settings.Searchable(t.fields)
	m := NewMemoryIndex()
	err := t.Each(func(id uint32, doc Document) error {
		return m.AddDocument(id, doc, attrs)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (t *DocumentTable) observe(keys []string, doc Document) {
	if len(keys) == 0 {
		keys = slices.Sorted(maps.Keys(doc))
	}
	for _, k := range keys {
		if !slices.Contains(t.fields, k) {
			t.fields = append(t.fields, k)
		}
	}
}

func (t *DocumentTable) documentID(doc Document) (string, error) {
	if t.primaryKey == "" {
		return "", fmt.Errorf("%w: primary key is not set", ErrMissingDocumentID)
	}
	v, ok := doc[t.primaryKey]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: attribute %q", ErrMissingDocumentID, t.primaryKey)
	}
	return DocumentID(v)
}

// DocumentID converts a primary key value to an external id. Strings must be
// made of alphanumerics, '-' and '_'; integers are formatted in base 10.
func DocumentID(v any) (string, error) {
	switch x := v.(type) {
	case string:
		if x == "" || strings.IndexFunc(x, invalidIDRune) >= 0 {
			return "", fmt.Errorf("%w: %q", ErrInvalidDocumentID, x)
		}
		return x, nil
	case json.Number:
		if _, err := strconv.ParseInt(x.String(), 10, 64); err != nil {
			return "", fmt.Errorf("%w: %s", ErrInvalidDocumentID, x)
		}
		return x.String(), nil
	case float64:
		if x != float64(int64(x)) {
			return "", fmt.Errorf("%w: %v", ErrInvalidDocumentID, x)
		}
		return strconv.FormatInt(int64(x), 10), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	default:
		return "", fmt.Errorf("%w: %v", ErrInvalidDocumentID, v)
	}
}

func invalidIDRune(r rune) bool {
	return !(r == '-' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
}

// InferPrimaryKey picks the first attribute whose name contains "id",
// case-insensitively.
func InferPrimaryKey(keys []string) (string, bool) {
	for _, k := range keys {
		if strings.Contains(strings.ToLower(k), "id") {
			return k, true
		}
	}
	return "", false
}
