package controller

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
)

func TestSetting_TriState(t *testing.T) {
	var s Settings
	require.NoError(t, json.Unmarshal([]byte(`{"criteria":null,"displayedAttributes":["a","b"]}`), &s))

	assert.True(t, s.SearchableAttributes.IsZero())
	assert.True(t, s.Criteria.IsNull())
	v, ok := s.DisplayedAttributes.Get()
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, v)

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"displayedAttributes":["a","b"],"criteria":null}`, string(out))
}

func TestSetting_NilValueSurvivesEncoding(t *testing.T) {
	meta := SettingsMeta(Settings{
		Criteria:          Value[[]string](nil),
		FacetedAttributes: Value[map[string]string](nil),
	})
	out, err := json.Marshal(meta)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Settings","criteria":[],"facetedAttributes":{}}`, string(out))

	var back UpdateMeta
	require.NoError(t, json.Unmarshal(out, &back))
	require.NotNil(t, back.Settings)
	assert.False(t, back.Settings.Criteria.IsNull())
	assert.False(t, back.Settings.FacetedAttributes.IsNull())

	cur := index.DefaultSettings()
	want := meta.Settings.Apply(cur)
	got := back.Settings.Apply(cur)
	assert.Equal(t, want, got)
	assert.Empty(t, got.Criteria)
	assert.NotNil(t, got.Criteria)
}

func TestSettings_RejectsUnknownField(t *testing.T) {
	var s Settings
	err := json.Unmarshal([]byte(`{"synonyms":{}}`), &s)
	require.Error(t, err)
}

func TestSettings_Apply(t *testing.T) {
	cur := index.DefaultSettings()
	cur.SearchableAttributes = []string{"title"}
	cur.Criteria = []string{"words"}

	change := Settings{
		DisplayedAttributes: Value([]string{"title", "body"}),
		Criteria:            Null[[]string](),
	}
	got := change.Apply(cur)

	assert.Equal(t, []string{"title", "body"}, got.DisplayedAttributes)
	assert.Equal(t, []string{"title"}, got.SearchableAttributes, "absent fields are kept")
	assert.Equal(t, index.DefaultCriteria, got.Criteria, "null resets to the default")

	cleared := SettingsCleared().Apply(got)
	assert.Nil(t, cleared.DisplayedAttributes)
	assert.Nil(t, cleared.SearchableAttributes)
}

func TestSettings_ApplyFacetedAttributes(t *testing.T) {
	cur := index.DefaultSettings()
	cur.FacetedAttributes = map[string]string{"genre": "string"}

	absent := Settings{Criteria: Value([]string{"words"})}.Apply(cur)
	assert.Equal(t, map[string]string{"genre": "string"}, absent.FacetedAttributes)

	null := Settings{FacetedAttributes: Null[map[string]string]()}.Apply(cur)
	assert.Nil(t, null.FacetedAttributes)

	set := map[string]string{"year": "integer"}
	value := Settings{FacetedAttributes: Value(set)}.Apply(cur)
	assert.Equal(t, map[string]string{"year": "integer"}, value.FacetedAttributes)

	set["year"] = "float"
	assert.Equal(t, "integer", value.FacetedAttributes["year"], "applied settings do not alias the change")
	assert.Equal(t, map[string]string{"genre": "string"}, cur.FacetedAttributes)
}

func TestSettings_Validate(t *testing.T) {
	ok := Settings{Criteria: Value([]string{"typo", "desc(price)"})}
	assert.NoError(t, ok.Validate())

	bad := Settings{Criteria: Value([]string{"popularity"})}
	assert.Error(t, bad.Validate())

	badFacet := Settings{FacetedAttributes: Value(map[string]string{"price": "money"})}
	assert.Error(t, badFacet.Validate())
}

func TestFacets_RejectsZero(t *testing.T) {
	var f Facets
	require.Error(t, json.Unmarshal([]byte(`{"levelGroupSize":0}`), &f))
	require.NoError(t, json.Unmarshal([]byte(`{"minLevelSize":3}`), &f))
	require.NotNil(t, f.MinLevelSize)
	assert.Equal(t, uint(3), *f.MinLevelSize)
	assert.Nil(t, f.LevelGroupSize)
}

func TestUpdateMeta_JSON(t *testing.T) {
	tests := []struct {
		name string
		meta UpdateMeta
		want string
	}{
		{
			name: "documents addition",
			meta: DocumentsAdditionMeta(UpdateDocuments, FormatCSV),
			want: `{"type":"DocumentsAddition","method":"UpdateDocuments","format":"Csv"}`,
		},
		{
			name: "clear",
			meta: ClearDocumentsMeta(),
			want: `{"type":"ClearDocuments"}`,
		},
		{
			name: "settings",
			meta: SettingsMeta(Settings{Criteria: Null[[]string]()}),
			want: `{"type":"Settings","criteria":null}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.meta)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))

			var back UpdateMeta
			require.NoError(t, json.Unmarshal(b, &back))
			assert.Equal(t, tt.meta.Kind, back.Kind)
			assert.Equal(t, tt.meta.Method, back.Method)
			assert.Equal(t, tt.meta.Format, back.Format)
		})
	}
}

func TestUpdateMeta_RejectsMalformed(t *testing.T) {
	for _, in := range []string{
		`{"type":"Compact"}`,
		`{"method":"ReplaceDocuments"}`,
		`{"type":"DocumentsAddition","method":"Upsert","format":"Json"}`,
		`{"type":"ClearDocuments","extra":1}`,
	} {
		var m UpdateMeta
		assert.Error(t, json.Unmarshal([]byte(in), &m), in)
	}
}

func TestUpdateStatus_JSON(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e := Enqueued{UpdateID: 7, Meta: ClearDocumentsMeta(), EnqueuedAt: at}
	p := e.Start(at.Add(time.Second))
	done := p.Succeed(DocumentDeletionResult(4), at.Add(2*time.Second))

	b, err := json.Marshal(NewProcessed(done))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "processed", raw["status"])
	assert.Equal(t, float64(7), raw["updateId"])
	assert.Contains(t, raw, "startedProcessingAt")

	var back UpdateStatus
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, StatusProcessed, back.Kind)
	assert.True(t, back.Terminal())
	assert.Equal(t, uint64(7), back.UpdateID())
	assert.Equal(t, KindClearDocuments, back.Meta().Kind)
	assert.Equal(t, uint64(4), back.Processed.Success.Deleted)
}

func TestUpdateStatus_Failed(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f := Enqueued{UpdateID: 1, Meta: DeleteDocumentsMeta(), EnqueuedAt: at}.Start(at).Fail("boom", at)

	b, err := json.Marshal(NewFailed(f))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "failed", raw["status"])
	assert.Equal(t, "boom", raw["error"])
	assert.EqualError(t, f, "update 1 failed: boom")

	var back UpdateStatus
	require.NoError(t, json.Unmarshal(b, &back))
	require.NotNil(t, back.Failed)
	assert.Equal(t, "boom", back.Failed.Cause)
}

func TestUpdateStatus_RejectsUnknownStatus(t *testing.T) {
	var s UpdateStatus
	assert.Error(t, json.Unmarshal([]byte(`{"status":"aborted","updateId":1}`), &s))
}
