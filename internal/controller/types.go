package controller

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/docfmt"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/meta"
)

// IndexMetadata describes one index.
type IndexMetadata = meta.IndexMetadata

// IndexSettings carries the arguments of CreateIndex and UpdateIndex. Nil
// fields are not supplied.
type IndexSettings struct {
	Name       *string
	PrimaryKey *string
}

// IndexDocumentsMethod selects how added documents meet existing ones.
type IndexDocumentsMethod string

const (
	// ReplaceDocuments replaces a stored document as a whole.
	ReplaceDocuments IndexDocumentsMethod = "ReplaceDocuments"
	// UpdateDocuments merges the supplied fields into the stored document.
	UpdateDocuments IndexDocumentsMethod = "UpdateDocuments"
)

func (m IndexDocumentsMethod) valid() bool {
	return m == ReplaceDocuments || m == UpdateDocuments
}

// UpdateFormat tags the encoding of a documents payload.
type UpdateFormat string

const (
	FormatJSON       UpdateFormat = UpdateFormat(docfmt.JSON)
	FormatJSONStream UpdateFormat = UpdateFormat(docfmt.JSONStream)
	FormatCSV        UpdateFormat = UpdateFormat(docfmt.CSV)
)

func (f UpdateFormat) valid() bool {
	return f == FormatJSON || f == FormatJSONStream || f == FormatCSV
}

// Setting is a tri-state settings field: absent, explicitly null, or set to
// a value. The zero Setting is absent.
type Setting[T any] struct {
	present bool
	valid   bool
	value   T
}

// Unset returns an absent setting.
func Unset[T any]() Setting[T] { return Setting[T]{} }

// Null returns a setting that resets the field to its default.
func Null[T any]() Setting[T] { return Setting[T]{present: true} }

// Value returns a setting that sets the field to v. A nil slice or map is
// stored as an empty one so that it stays distinct from null once encoded.
func Value[T any](v T) Setting[T] { return Setting[T]{present: true, valid: true, value: nonNil(v)} }

func nonNil[T any](v T) T {
	rv := reflect.ValueOf(&v).Elem()
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			rv.Set(reflect.MakeSlice(rv.Type(), 0, 0))
		}
	case reflect.Map:
		if rv.IsNil() {
			rv.Set(reflect.MakeMap(rv.Type()))
		}
	}
	return v
}

// IsZero reports whether the setting is absent.
func (s Setting[T]) IsZero() bool { return !s.present }

// IsNull reports whether the setting is present and null.
func (s Setting[T]) IsNull() bool { return s.present && !s.valid }

// Get returns the value of a setting that is present and not null.
func (s Setting[T]) Get() (T, bool) { return s.value, s.valid }

func (s Setting[T]) MarshalJSON() ([]byte, error) {
	if !s.valid {
		return []byte("null"), nil
	}
	return json.Marshal(nonNil(s.value))
}

func (s *Setting[T]) UnmarshalJSON(b []byte) error {
	s.present = true
	if string(bytes.TrimSpace(b)) == "null" {
		var zero T
		s.valid, s.value = false, zero
		return nil
	}
	s.valid = true
	return json.Unmarshal(b, &s.value)
}

// apply resolves the setting against the current value and its default.
func apply[T any](s Setting[T], cur, def T) T {
	switch {
	case !s.present:
		return cur
	case !s.valid:
		return def
	default:
		return s.value
	}
}

// Settings is a partial settings change. Every field is tri-state.
type Settings struct {
	DisplayedAttributes  Setting[[]string]          `json:"displayedAttributes,omitzero"`
	SearchableAttributes Setting[[]string]          `json:"searchableAttributes,omitzero"`
	FacetedAttributes    Setting[map[string]string] `json:"facetedAttributes,omitzero"`
	Criteria             Setting[[]string]          `json:"criteria,omitzero"`
}

// SettingsCleared returns a change resetting every field to its default.
func SettingsCleared() Settings {
	return Settings{
		DisplayedAttributes:  Null[[]string](),
		SearchableAttributes: Null[[]string](),
		FacetedAttributes:    Null[map[string]string](),
		Criteria:             Null[[]string](),
	}
}

type settingsJSON Settings

func (s *Settings) UnmarshalJSON(b []byte) error {
	var v settingsJSON
	if err := decodeStrict(b, &v); err != nil {
		return fmt.Errorf("decoding settings: %w", err)
	}
	*s = Settings(v)
	return nil
}

// Validate checks the values carried by the change.
func (s Settings) Validate() error {
	if v, ok := s.Criteria.Get(); ok {
		if err := index.ValidateCriteria(v); err != nil {
			return err
		}
	}
	if v, ok := s.FacetedAttributes.Get(); ok {
		if err := index.ValidateFacets(v); err != nil {
			return err
		}
	}
	return nil
}

// Apply returns cur with the change applied.
func (s Settings) Apply(cur index.Settings) index.Settings {
	def := index.DefaultSettings()
	out := cur.Clone()
	out.DisplayedAttributes = slices.Clone(apply(s.DisplayedAttributes, out.DisplayedAttributes, def.DisplayedAttributes))
	out.SearchableAttributes = slices.Clone(apply(s.SearchableAttributes, out.SearchableAttributes, def.SearchableAttributes))
	out.FacetedAttributes = maps.Clone(apply(s.FacetedAttributes, out.FacetedAttributes, def.FacetedAttributes))
	out.Criteria = slices.Clone(apply(s.Criteria, out.Criteria, def.Criteria))
	return out
}

// Facets changes the facet level configuration. Nil fields are unchanged.
type Facets struct {
	LevelGroupSize *uint `json:"levelGroupSize,omitempty"`
	MinLevelSize   *uint `json:"minLevelSize,omitempty"`
}

type facetsJSON Facets

func (f *Facets) UnmarshalJSON(b []byte) error {
	var v facetsJSON
	if err := decodeStrict(b, &v); err != nil {
		return fmt.Errorf("decoding facets: %w", err)
	}
	if (v.LevelGroupSize != nil && *v.LevelGroupSize == 0) || (v.MinLevelSize != nil && *v.MinLevelSize == 0) {
		return errors.New("decoding facets: sizes must be non-zero")
	}
	*f = Facets(v)
	return nil
}

// UpdateKind is the discriminant of UpdateMeta.
type UpdateKind string

const (
	KindDocumentsAddition UpdateKind = "DocumentsAddition"
	KindClearDocuments    UpdateKind = "ClearDocuments"
	KindDeleteDocuments   UpdateKind = "DeleteDocuments"
	KindSettings          UpdateKind = "Settings"
	KindFacets            UpdateKind = "Facets"
)

// UpdateMeta describes a queued mutation, independent of its payload. Only
// the fields of Kind's variant are set.
type UpdateMeta struct {
	Kind     UpdateKind
	Method   IndexDocumentsMethod
	Format   UpdateFormat
	Settings *Settings
	Facets   *Facets
}

func DocumentsAdditionMeta(method IndexDocumentsMethod, format UpdateFormat) UpdateMeta {
	return UpdateMeta{Kind: KindDocumentsAddition, Method: method, Format: format}
}

func ClearDocumentsMeta() UpdateMeta  { return UpdateMeta{Kind: KindClearDocuments} }
func DeleteDocumentsMeta() UpdateMeta { return UpdateMeta{Kind: KindDeleteDocuments} }

func SettingsMeta(s Settings) UpdateMeta { return UpdateMeta{Kind: KindSettings, Settings: &s} }
func FacetsMeta(f Facets) UpdateMeta     { return UpdateMeta{Kind: KindFacets, Facets: &f} }

type documentsAddition struct {
	Method IndexDocumentsMethod `json:"method"`
	Format UpdateFormat         `json:"format"`
}

func (m UpdateMeta) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case KindDocumentsAddition:
		return tagged("type", string(m.Kind), documentsAddition{Method: m.Method, Format: m.Format})
	case KindClearDocuments, KindDeleteDocuments:
		return tagged("type", string(m.Kind), nil)
	case KindSettings:
		if m.Settings == nil {
			return nil, errors.New("settings update without settings")
		}
		return tagged("type", string(m.Kind), m.Settings)
	case KindFacets:
		if m.Facets == nil {
			return nil, errors.New("facets update without facets")
		}
		return tagged("type", string(m.Kind), m.Facets)
	default:
		return nil, fmt.Errorf("unknown update kind %q", m.Kind)
	}
}

func (m *UpdateMeta) UnmarshalJSON(b []byte) error {
	tag, rest, err := untag(b, "type")
	if err != nil {
		return fmt.Errorf("decoding update meta: %w", err)
	}
	out := UpdateMeta{Kind: UpdateKind(tag)}
	switch out.Kind {
	case KindDocumentsAddition:
		var v documentsAddition
		if err := decodeStrict(rest, &v); err != nil {
			return fmt.Errorf("decoding %s: %w", tag, err)
		}
		if !v.Method.valid() {
			return fmt.Errorf("decoding %s: unknown method %q", tag, v.Method)
		}
		if !v.Format.valid() {
			return fmt.Errorf("decoding %s: unknown format %q", tag, v.Format)
		}
		out.Method, out.Format = v.Method, v.Format
	case KindClearDocuments, KindDeleteDocuments:
		if err := decodeStrict(rest, &struct{}{}); err != nil {
			return fmt.Errorf("decoding %s: %w", tag, err)
		}
	case KindSettings:
		out.Settings = new(Settings)
		if err := json.Unmarshal(rest, out.Settings); err != nil {
			return err
		}
	case KindFacets:
		out.Facets = new(Facets)
		if err := json.Unmarshal(rest, out.Facets); err != nil {
			return err
		}
	default:
		return fmt.Errorf("decoding update meta: unknown type %q", tag)
	}
	*m = out
	return nil
}

// UpdateResultKind is the discriminant of UpdateResult.
type UpdateResultKind string

const (
	ResultDocumentsAddition UpdateResultKind = "DocumentsAddition"
	ResultDocumentDeletion  UpdateResultKind = "DocumentDeletion"
	ResultOther             UpdateResultKind = "Other"
)

// UpdateResult holds the statistics of a processed update.
type UpdateResult struct {
	Kind              UpdateResultKind
	NumberOfDocuments uint64
	Deleted           uint64
}

func DocumentsAdditionResult(n uint64) UpdateResult {
	return UpdateResult{Kind: ResultDocumentsAddition, NumberOfDocuments: n}
}

func DocumentDeletionResult(deleted uint64) UpdateResult {
	return UpdateResult{Kind: ResultDocumentDeletion, Deleted: deleted}
}

func OtherResult() UpdateResult { return UpdateResult{Kind: ResultOther} }

func (r UpdateResult) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case ResultDocumentsAddition:
		return tagged("type", string(r.Kind), struct {
			NumberOfDocuments uint64 `json:"numberOfDocuments"`
		}{r.NumberOfDocuments})
	case ResultDocumentDeletion:
		return tagged("type", string(r.Kind), struct {
			Deleted uint64 `json:"deleted"`
		}{r.Deleted})
	case ResultOther:
		return tagged("type", string(r.Kind), nil)
	default:
		return nil, fmt.Errorf("unknown update result %q", r.Kind)
	}
}

func (r *UpdateResult) UnmarshalJSON(b []byte) error {
	tag, rest, err := untag(b, "type")
	if err != nil {
		return fmt.Errorf("decoding update result: %w", err)
	}
	out := UpdateResult{Kind: UpdateResultKind(tag)}
	switch out.Kind {
	case ResultDocumentsAddition:
		var v struct {
			NumberOfDocuments uint64 `json:"numberOfDocuments"`
		}
		err = decodeStrict(rest, &v)
		out.NumberOfDocuments = v.NumberOfDocuments
	case ResultDocumentDeletion:
		var v struct {
			Deleted uint64 `json:"deleted"`
		}
		err = decodeStrict(rest, &v)
		out.Deleted = v.Deleted
	case ResultOther:
		err = decodeStrict(rest, &struct{}{})
	default:
		err = fmt.Errorf("unknown type %q", tag)
	}
	if err != nil {
		return fmt.Errorf("decoding update result: %w", err)
	}
	*r = out
	return nil
}

// tagged encodes payload as a JSON object with the tag field first.
func tagged(key, tag string, payload any) ([]byte, error) {
	head, err := json.Marshal(map[string]string{key: tag})
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return head, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("variant %s does not encode as an object", tag)
	}
	if string(body) == "{}" {
		return head, nil
	}
	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	return append(out, body[1:]...), nil
}

// untag splits the tag field off a JSON object and returns the remaining
// fields re-encoded as an object.
func untag(b []byte, key string) (string, []byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return "", nil, err
	}
	raw, ok := fields[key]
	if !ok {
		return "", nil, fmt.Errorf("missing %q field", key)
	}
	var tag string
	if err := json.Unmarshal(raw, &tag); err != nil {
		return "", nil, fmt.Errorf("field %q: %w", key, err)
	}
	delete(fields, key)
	rest, err := json.Marshal(fields)
	if err != nil {
		return "", nil, err
	}
	return tag, rest, nil
}

func decodeStrict(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
