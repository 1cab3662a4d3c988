package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, DefaultCriteria, s.Criteria)
	assert.Nil(t, s.SearchableAttributes)
	assert.Equal(t, []string{"a", "b"}, s.Searchable([]string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, s.Displayed([]string{"a", "b"}))

	s.Criteria[0] = "changed"
	assert.Equal(t, "typo", DefaultCriteria[0])
}

func TestSettings_Clone(t *testing.T) {
	s := DefaultSettings()
	s.FacetedAttributes = map[string]string{"genre": "string"}
	c := s.Clone()
	c.FacetedAttributes["year"] = "integer"
	assert.Len(t, s.FacetedAttributes, 1)
}

func TestValidateCriteria(t *testing.T) {
	require.NoError(t, ValidateCriteria([]string{"typo", "asc(price)", "desc(date)"}))
	require.Error(t, ValidateCriteria([]string{"magic"}))
	require.Error(t, ValidateCriteria([]string{"asc()"}))
}

func TestValidateFacets(t *testing.T) {
	require.NoError(t, ValidateFacets(map[string]string{"genre": "string", "year": "Integer"}))
	require.Error(t, ValidateFacets(map[string]string{"genre": "text"}))
}
