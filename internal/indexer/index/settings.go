package index

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Facet defaults, matching what a freshly created index uses.
const (
	DefaultLevelGroupSize = 4
	DefaultMinLevelSize   = 5
)

// DefaultCriteria is the ranking rule order of an index whose criteria were
// never set or were reset.
var DefaultCriteria = []string{"typo", "words", "proximity", "attribute", "wordsPosition", "exactness"}

// Settings is the resolved configuration of one index generation. A nil
// attribute list means every known field, in field order.
type Settings struct {
	DisplayedAttributes  []string          `json:"displayedAttributes"`
	SearchableAttributes []string          `json:"searchableAttributes"`
	FacetedAttributes    map[string]string `json:"facetedAttributes"`
	Criteria             []string          `json:"criteria"`
	LevelGroupSize       int               `json:"levelGroupSize"`
	MinLevelSize         int               `json:"minLevelSize"`
}

// DefaultSettings returns the settings of a new index.
func DefaultSettings() Settings {
	return Settings{
		Criteria:       slices.Clone(DefaultCriteria),
		LevelGroupSize: DefaultLevelGroupSize,
		MinLevelSize:   DefaultMinLevelSize,
	}
}

// Clone returns a deep copy of s.
func (s Settings) Clone() Settings {
	s.DisplayedAttributes = slices.Clone(s.DisplayedAttributes)
	s.SearchableAttributes = slices.Clone(s.SearchableAttributes)
	s.FacetedAttributes = maps.Clone(s.FacetedAttributes)
	s.Criteria = slices.Clone(s.Criteria)
	return s
}

// Searchable returns the attributes to index given the known fields.
func (s Settings) Searchable(fields []string) []string {
	if s.SearchableAttributes == nil {
		return fields
	}
	return s.SearchableAttributes
}

// Displayed returns the attributes returned to readers given the known fields.
func (s Settings) Displayed(fields []string) []string {
	if s.DisplayedAttributes == nil {
		return fields
	}
	return s.DisplayedAttributes
}

// ValidateCriteria checks every ranking rule name.
func ValidateCriteria(criteria []string) error {
	for _, c := range criteria {
		if slices.Contains(DefaultCriteria, c) {
			continue
		}
		if field, ok := orderField(c); ok && field != "" {
			continue
		}
		return fmt.Errorf("invalid ranking rule %q", c)
	}
	return nil
}

// orderField extracts the field of an asc(field) or desc(field) rule.
func orderField(c string) (string, bool) {
	for _, prefix := range []string{"asc(", "desc("} {
		if strings.HasPrefix(c, prefix) && strings.HasSuffix(c, ")") {
			return strings.TrimSpace(c[len(prefix) : len(c)-1]), true
		}
	}
	return "", false
}

// ValidateFacets checks every faceted attribute type.
func ValidateFacets(facets map[string]string) error {
	for field, typ := range facets {
		switch strings.ToLower(typ) {
		case "string", "integer", "float":
		default:
			return fmt.Errorf("invalid facet type %q for attribute %q", typ, field)
		}
	}
	return nil
}
