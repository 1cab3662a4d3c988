package meta

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/postgres"
)

// Schema creates the catalog table. The uuid constraint is deferred so a
// swap can move two uuids between names inside one transaction.
const Schema = `CREATE TABLE IF NOT EXISTS index_metadata (
	name        TEXT PRIMARY KEY,
	uuid        UUID NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	primary_key TEXT,
	CONSTRAINT index_metadata_uuid_key UNIQUE (uuid) DEFERRABLE INITIALLY DEFERRED
)`

// PostgresStore keeps the catalog in the index_metadata table.
type PostgresStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewPostgresStore wraps db. Call Migrate before first use on a fresh
// database.
func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: slog.Default().With("component", "meta-postgres"),
	}
}

// Migrate creates the catalog table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("creating index_metadata table: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]IndexMetadata, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT name, uuid, created_at, updated_at, primary_key
		FROM index_metadata ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("querying index metadata: %w", err)
	}
	defer rows.Close()

	var out []IndexMetadata
	for rows.Next() {
		var (
			m  IndexMetadata
			id string
			pk sql.NullString
		)
		if err := rows.Scan(&m.Name, &id, &m.CreatedAt, &m.UpdatedAt, &pk); err != nil {
			return nil, fmt.Errorf("scanning index metadata: %w", err)
		}
		if m.UUID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("index %q has invalid uuid %q: %w", m.Name, id, err)
		}
		if pk.Valid {
			m.PrimaryKey = &pk.String
		}
		m.CreatedAt = m.CreatedAt.UTC()
		m.UpdatedAt = m.UpdatedAt.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating index metadata: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Put(ctx context.Context, ms ...IndexMetadata) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, m := range ms {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO index_metadata (name, uuid, created_at, updated_at, primary_key)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (name) DO UPDATE SET
					uuid = EXCLUDED.uuid,
					created_at = EXCLUDED.created_at,
					updated_at = EXCLUDED.updated_at,
					primary_key = EXCLUDED.primary_key`,
				m.Name, m.UUID.String(), m.CreatedAt, m.UpdatedAt, nullableString(m.PrimaryKey))
			if err != nil {
				return fmt.Errorf("upserting metadata for index %q: %w", m.Name, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) Delete(ctx context.Context, name string) error {
	if _, err := s.db.DB.ExecContext(ctx, `DELETE FROM index_metadata WHERE name = $1`, name); err != nil {
		return fmt.Errorf("deleting metadata for index %q: %w", name, err)
	}
	return nil
}

// Close leaves the shared database handle open; its owner closes it.
func (s *PostgresStore) Close() error { return nil }

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
