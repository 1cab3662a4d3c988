// Package meta persists the catalog of indexes: one IndexMetadata record per
// index name. FileStore keeps the catalog in a JSON file beside the index
// data; PostgresStore keeps it in a table.
package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IndexMetadata describes one index. Name and UUID never change once the
// index exists; a swap moves a UUID to another name.
type IndexMetadata struct {
	Name       string    `json:"name"`
	UUID       uuid.UUID `json:"uuid"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	PrimaryKey *string   `json:"primaryKey"`
}

type indexMetadataJSON IndexMetadata

// UnmarshalJSON rejects unknown fields.
func (m *IndexMetadata) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var v indexMetadataJSON
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decoding index metadata: %w", err)
	}
	*m = IndexMetadata(v)
	return nil
}

// Clone returns a copy that shares nothing with m.
func (m IndexMetadata) Clone() IndexMetadata {
	if m.PrimaryKey != nil {
		pk := *m.PrimaryKey
		m.PrimaryKey = &pk
	}
	return m
}

// Store persists index metadata keyed by name.
type Store interface {
	// List returns every record, ordered by creation time.
	List(ctx context.Context) ([]IndexMetadata, error)
	// Put inserts or replaces the given records atomically.
	Put(ctx context.Context, ms ...IndexMetadata) error
	// Delete removes the record for name. Deleting a missing name is not an
	// error.
	Delete(ctx context.Context, name string) error
	Close() error
}
