package controller

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/meta"
)

func TestCatalogSorted_TiesMatchMetaStore(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	metas := []IndexMetadata{
		{Name: "zeta", UUID: uuid.New(), CreatedAt: at, UpdatedAt: at},
		{Name: "alpha", UUID: uuid.New(), CreatedAt: at, UpdatedAt: at},
		{Name: "early", UUID: uuid.New(), CreatedAt: at.Add(-time.Microsecond), UpdatedAt: at},
	}

	cat := newCatalog()
	for _, m := range metas {
		cat.put(&entry{meta: m})
	}
	var inMemory []string
	for _, e := range cat.sorted() {
		inMemory = append(inMemory, e.meta.Name)
	}
	assert.Equal(t, []string{"early", "alpha", "zeta"}, inMemory)

	ctx := context.Background()
	dir := t.TempDir()
	store, err := meta.OpenFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, metas...))

	reopened, err := meta.OpenFileStore(dir)
	require.NoError(t, err)
	persisted, err := reopened.List(ctx)
	require.NoError(t, err)
	var onDisk []string
	for _, m := range persisted {
		onDisk = append(onDisk, m.Name)
	}
	assert.Equal(t, inMemory, onDisk)
}
