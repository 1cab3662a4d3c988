package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
)

func TestRegistry_CreateGetRemove(t *testing.T) {
	base := t.TempDir()
	r := New(base, indexer.Options{Mmap: true})
	defer r.Close()

	id := uuid.New()
	e, err := r.Create(id)
	require.NoError(t, err)
	assert.DirExists(t, r.Dir(id))

	_, err = r.Create(id)
	assert.ErrorIs(t, err, ErrExists)

	got, ok := r.Get(id)
	require.True(t, ok)
	assert.Same(t, e, got)
	assert.Equal(t, 1, r.Len())

	require.NoError(t, r.Remove(id))
	_, ok = r.Get(id)
	assert.False(t, ok)
	assert.NoDirExists(t, r.Dir(id))
	require.NoError(t, r.Remove(id))
}

func TestRegistry_OpenRecoversInParallel(t *testing.T) {
	base := t.TempDir()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	r := New(base, indexer.Options{})
	for _, id := range ids {
		e, err := r.Create(id)
		require.NoError(t, err)
		_, err = e.Apply(context.Background(), func(txn *indexer.Txn) error {
			if err := txn.Table.SetPrimaryKey("id"); err != nil {
				return err
			}
			_, err := txn.Table.Put(index.Document{"id": id.String(), "title": "hello"}, nil)
			return err
		})
		require.NoError(t, err)
	}
	require.NoError(t, r.Close())
	assert.Equal(t, 0, r.Len())

	r = New(base, indexer.Options{})
	defer r.Close()
	require.NoError(t, r.Open(context.Background(), ids))
	for _, id := range ids {
		e, ok := r.Get(id)
		require.True(t, ok)
		assert.Equal(t, uint64(1), e.Generation())
	}
}

func TestRegistry_RemoveOrphans(t *testing.T) {
	base := t.TempDir()
	r := New(base, indexer.Options{})
	defer r.Close()

	kept := uuid.New()
	_, err := r.Create(kept)
	require.NoError(t, err)

	orphan := uuid.New()
	require.NoError(t, os.MkdirAll(filepath.Join(base, orphan.String()), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "not-an-index"), 0o755))

	removed, err := r.RemoveOrphans()
	require.NoError(t, err)
	assert.Equal(t, []string{orphan.String()}, removed)
	assert.DirExists(t, r.Dir(kept))
	assert.DirExists(t, filepath.Join(base, "not-an-index"))
}
