// Package docfmt decodes update payloads into documents. Every decoder keeps
// the order in which a record's attributes appeared so that callers can
// infer a primary key and field order from it.
package docfmt

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Format tags the encoding of a payload.
type Format string

const (
	JSON       Format = "Json"
	JSONStream Format = "JsonStream"
	CSV        Format = "Csv"
)

// Record is one decoded document.
type Record struct {
	Keys   []string
	Values map[string]any
}

// Decoder turns a payload into records.
type Decoder interface {
	Decode(format Format, payload []byte) ([]Record, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(format Format, payload []byte) ([]Record, error)

func (f DecoderFunc) Decode(format Format, payload []byte) ([]Record, error) {
	return f(format, payload)
}

// Default decodes the three built-in formats.
var Default Decoder = DecoderFunc(Decode)

// Decode decodes payload according to format.
func Decode(format Format, payload []byte) ([]Record, error) {
	switch format {
	case JSON:
		return decodeJSONArray(payload)
	case JSONStream:
		return decodeJSONStream(payload)
	case CSV:
		return decodeCSV(payload)
	default:
		return nil, fmt.Errorf("unsupported update format %q", format)
	}
}

func newDecoder(payload []byte) *json.Decoder {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	return dec
}

func decodeJSONArray(payload []byte) ([]Record, error) {
	dec := newDecoder(payload)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("reading json payload: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("json payload must be an array of documents")
	}
	var records []Record
	for dec.More() {
		rec, err := decodeObject(dec)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("reading json payload: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after json array")
	}
	return records, nil
}

func decodeJSONStream(payload []byte) ([]Record, error) {
	dec := newDecoder(payload)
	var records []Record
	for {
		rec, err := decodeObject(dec)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
}

func decodeObject(dec *json.Decoder) (Record, error) {
	tok, err := dec.Token()
	if err != nil {
		return Record{}, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return Record{}, fmt.Errorf("expected a json object, found %v", tok)
	}
	rec := Record{Values: make(map[string]any)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Record{}, err
		}
		key := tok.(string)
		var value any
		if err := dec.Decode(&value); err != nil {
			return Record{}, fmt.Errorf("attribute %q: %w", key, err)
		}
		if _, dup := rec.Values[key]; !dup {
			rec.Keys = append(rec.Keys, key)
		}
		rec.Values[key] = value
	}
	if _, err := dec.Token(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func decodeCSV(payload []byte) ([]Record, error) {
	r := csv.NewReader(bytes.NewReader(payload))
	r.ReuseRecord = false
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	var records []Record
	for {
		row, err := r.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv row %d: %w", len(records)+1, err)
		}
		rec := Record{Keys: header, Values: make(map[string]any, len(header))}
		for i, name := range header {
			if row[i] == "" {
				rec.Values[name] = nil
				continue
			}
			rec.Values[name] = row[i]
		}
		records = append(records, rec)
	}
}
