package index

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/postings"
)

func newTable(t *testing.T) *DocumentTable {
	t.Helper()
	tbl := NewDocumentTable()
	require.NoError(t, tbl.SetPrimaryKey("id"))
	return tbl
}

func TestDocumentTable_PutReplaceDelete(t *testing.T) {
	tbl := newTable(t)

	replaced, err := tbl.Put(Document{"id": "a", "title": "first"}, []string{"id", "title"})
	require.NoError(t, err)
	assert.False(t, replaced)
	replaced, err = tbl.Put(Document{"id": json.Number("7"), "body": "x"}, []string{"id", "body"})
	require.NoError(t, err)
	assert.False(t, replaced)

	replaced, err = tbl.Put(Document{"id": "a", "title": "second"}, nil)
	require.NoError(t, err)
	assert.True(t, replaced)

	assert.Equal(t, uint64(2), tbl.Len())
	assert.Equal(t, []string{"id", "title", "body"}, tbl.Fields())

	doc, ok := tbl.Get("a")
	require.True(t, ok)
	assert.Equal(t, "second", doc["title"])

	id, ok := tbl.InternalID("7")
	require.True(t, ok)
	assert.Equal(t, uint32(1), id)

	assert.True(t, tbl.Delete("a"))
	assert.False(t, tbl.Delete("a"))
	assert.Equal(t, uint64(1), tbl.Len())
	assert.False(t, tbl.Live().Contains(0))
}

func TestDocumentTable_Merge(t *testing.T) {
	tbl := newTable(t)
	_, err := tbl.Put(Document{"id": "a", "title": "t", "body": "b"}, nil)
	require.NoError(t, err)

	replaced, err := tbl.Merge(Document{"id": "a", "body": "new"}, nil)
	require.NoError(t, err)
	assert.True(t, replaced)

	doc, _ := tbl.Get("a")
	assert.Equal(t, Document{"id": "a", "title": "t", "body": "new"}, doc)
}

func TestDocumentTable_CloneIsolation(t *testing.T) {
	tbl := newTable(t)
	_, err := tbl.Put(Document{"id": "a"}, nil)
	require.NoError(t, err)

	clone := tbl.Clone()
	_, err = clone.Put(Document{"id": "b"}, nil)
	require.NoError(t, err)
	clone.Delete("a")

	assert.Equal(t, uint64(1), tbl.Len())
	_, ok := tbl.Get("a")
	assert.True(t, ok)
	_, ok = tbl.Get("b")
	assert.False(t, ok)
}

func TestDocumentTable_ClearKeepsIDsMonotonic(t *testing.T) {
	tbl := newTable(t)
	_, _ = tbl.Put(Document{"id": "a"}, nil)
	_, _ = tbl.Put(Document{"id": "b"}, nil)

	assert.Equal(t, uint64(2), tbl.Clear())
	assert.Equal(t, uint64(0), tbl.Len())

	_, err := tbl.Put(Document{"id": "a"}, nil)
	require.NoError(t, err)
	id, _ := tbl.InternalID("a")
	assert.Equal(t, uint32(2), id)
}

func TestDocumentTable_InvalidIDs(t *testing.T) {
	tbl := newTable(t)

	_, err := tbl.Put(Document{"title": "no id"}, nil)
	assert.ErrorIs(t, err, ErrMissingDocumentID)

	for _, v := range []any{"", "has space", 1.5, json.Number("1e3"), []any{"x"}} {
		_, err := tbl.Put(Document{"id": v}, nil)
		assert.ErrorIs(t, err, ErrInvalidDocumentID, "value %v", v)
	}
	assert.Equal(t, uint64(0), tbl.Len())
}

func TestDocumentTable_RequiresPrimaryKey(t *testing.T) {
	tbl := NewDocumentTable()
	_, err := tbl.Put(Document{"id": "a"}, nil)
	assert.ErrorIs(t, err, ErrMissingDocumentID)
}

func TestDocumentTable_RestoreRoundTrip(t *testing.T) {
	tbl := newTable(t)
	_, _ = tbl.Put(Document{"id": "a", "x": "1"}, []string{"id", "x"})
	_, _ = tbl.Put(Document{"id": "b", "y": "2"}, []string{"id", "y"})
	tbl.Delete("a")

	restored, err := Restore(tbl.PrimaryKey(), tbl.Fields(), tbl.NextID(), tbl.Stored(), tbl.Live().Clone())
	require.NoError(t, err)

	assert.Equal(t, tbl.Fields(), restored.Fields())
	assert.Equal(t, tbl.Len(), restored.Len())
	doc, ok := restored.Get("b")
	require.True(t, ok)
	assert.Equal(t, "2", doc["y"])
	_, ok = restored.Get("a")
	assert.False(t, ok)

	_, err = Restore("id", nil, 1, []StoredDocument{{ID: 3, Key: "z"}}, nil)
	require.Error(t, err)
}

func TestDocumentTable_Invert(t *testing.T) {
	tbl := newTable(t)
	_, _ = tbl.Put(Document{"id": "a", "title": "quick fox", "body": "fox"}, []string{"id", "title", "body"})
	_, _ = tbl.Put(Document{"id": "b", "title": "lazy dog"}, nil)

	settings := DefaultSettings()
	settings.SearchableAttributes = []string{"title", "body"}
	m, err := tbl.Invert(settings)
	require.NoError(t, err)
	assert.Equal(t, 2, m.DocCount())

	snap := m.Snapshot()
	var fox []postings.Entry
	for _, te := range snap {
		if te.Term == "fox" {
			fox = te.Postings
		}
	}
	assert.Equal(t, []postings.Entry{
		{DocumentID: 0, Attribute: 0, AttributeIndex: 1},
		{DocumentID: 0, Attribute: 1, AttributeIndex: 0},
	}, fox)

	for i := 1; i < len(snap); i++ {
		assert.Less(t, snap[i-1].Term, snap[i].Term)
	}
}

func TestInferPrimaryKey(t *testing.T) {
	key, ok := InferPrimaryKey([]string{"title", "movieId", "id"})
	require.True(t, ok)
	assert.Equal(t, "movieId", key)

	_, ok = InferPrimaryKey([]string{"title", "body"})
	assert.False(t, ok)
}
