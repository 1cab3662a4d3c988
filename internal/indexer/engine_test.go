package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/segment"
)

func addDocs(docs ...index.Document) func(*Txn) error {
	return func(txn *Txn) error {
		if err := txn.Table.SetPrimaryKey("id"); err != nil {
			return err
		}
		for _, d := range docs {
			if _, err := txn.Table.Put(d, nil); err != nil {
				return err
			}
		}
		return nil
	}
}

func openEngine(t *testing.T, dir string, mmap bool) *Engine {
	t.Helper()
	e, err := Open(dir, Options{Mmap: mmap})
	require.NoError(t, err)
	return e
}

func genFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "gen_*.spdx"))
	require.NoError(t, err)
	return matches
}

func TestEngine_EmptyIndex(t *testing.T) {
	e := openEngine(t, t.TempDir(), true)
	defer e.Close()

	h, err := e.Acquire()
	require.NoError(t, err)
	defer h.Release()

	assert.Equal(t, uint64(0), h.Generation())
	assert.Equal(t, uint64(0), h.NumDocuments())
	_, ok := h.Postings("anything")
	assert.False(t, ok)
}

func TestEngine_ApplyPublishesGeneration(t *testing.T) {
	for _, mmap := range []bool{true, false} {
		dir := t.TempDir()
		e := openEngine(t, dir, mmap)

		info, err := e.Apply(context.Background(), addDocs(
			index.Document{"id": "1", "title": "quick brown fox"},
			index.Document{"id": "2", "title": "lazy fox"},
		))
		require.NoError(t, err)
		assert.Equal(t, uint64(1), info.Generation)
		assert.Equal(t, uint64(2), info.Documents)
		assert.Positive(t, info.StoreBytes)

		h, err := e.Acquire()
		require.NoError(t, err)

		l, ok := h.Search("Fox")
		require.True(t, ok)
		require.Equal(t, 2, l.Len())
		assert.Equal(t, uint64(0), l.At(0).DocumentID)
		assert.Equal(t, uint64(1), l.At(1).DocumentID)
		assert.Equal(t, uint16(1), l.At(0).Attribute)

		id, ok := h.TermID("fox")
		require.True(t, ok)
		assert.Equal(t, "fox", h.Terms()[id])

		doc, ok := h.Document("2")
		require.True(t, ok)
		assert.Equal(t, "lazy fox", doc["title"])
		assert.Equal(t, "id", h.PrimaryKey())
		assert.Equal(t, []string{"id", "title"}, h.Fields())

		h.Release()
		require.NoError(t, e.Close())
	}
}

func TestEngine_SnapshotIsolation(t *testing.T) {
	dir := t.TempDir()
	e := openEngine(t, dir, true)
	defer e.Close()

	_, err := e.Apply(context.Background(), addDocs(index.Document{"id": "1", "title": "alpha"}))
	require.NoError(t, err)

	old, err := e.Acquire()
	require.NoError(t, err)

	_, err = e.Apply(context.Background(), func(txn *Txn) error {
		txn.Table.Delete("1")
		_, err := txn.Table.Put(index.Document{"id": "2", "title": "beta"}, nil)
		return err
	})
	require.NoError(t, err)

	// The pinned generation is untouched and its file is still there.
	assert.Equal(t, uint64(1), old.Generation())
	_, ok := old.Search("alpha")
	assert.True(t, ok)
	_, ok = old.Document("2")
	assert.False(t, ok)
	assert.Len(t, genFiles(t, dir), 2)

	cur, err := e.Acquire()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), cur.Generation())
	_, ok = cur.Search("alpha")
	assert.False(t, ok)
	_, ok = cur.Search("beta")
	assert.True(t, ok)
	cur.Release()

	old.Release()
	old.Release()
	files := genFiles(t, dir)
	require.Len(t, files, 1)
	assert.Equal(t, segment.FileName(2), filepath.Base(files[0]))
}

func TestEngine_FailedMutationKeepsGeneration(t *testing.T) {
	dir := t.TempDir()
	e := openEngine(t, dir, true)
	defer e.Close()

	_, err := e.Apply(context.Background(), addDocs(index.Document{"id": "1", "title": "alpha"}))
	require.NoError(t, err)

	boom := errors.New("bad payload")
	_, err = e.Apply(context.Background(), func(txn *Txn) error {
		txn.Table.Clear()
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(1), e.Generation())

	h, err := e.Acquire()
	require.NoError(t, err)
	defer h.Release()
	assert.Equal(t, uint64(1), h.NumDocuments())
}

func TestEngine_CancelledBeforeCommit(t *testing.T) {
	dir := t.TempDir()
	e := openEngine(t, dir, true)
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	_, err := e.Apply(ctx, func(txn *Txn) error {
		cancel()
		return addDocs(index.Document{"id": "1"})(txn)
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(0), e.Generation())
	assert.Empty(t, genFiles(t, dir))
}

func TestEngine_Recovery(t *testing.T) {
	dir := t.TempDir()
	e := openEngine(t, dir, true)
	_, err := e.Apply(context.Background(), addDocs(index.Document{"id": "1", "title": "alpha"}))
	require.NoError(t, err)
	_, err = e.Apply(context.Background(), func(txn *Txn) error {
		txn.Settings.SearchableAttributes = []string{"title"}
		_, err := txn.Table.Put(index.Document{"id": "2", "title": "beta"}, nil)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	// Leftovers of an interrupted write and a stale generation are cleaned up.
	require.NoError(t, os.WriteFile(filepath.Join(dir, segment.FileName(3)+".tmp"), []byte("partial"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, segment.FileName(0)), []byte("stale"), 0o644))

	e = openEngine(t, dir, false)
	defer e.Close()
	assert.Equal(t, uint64(2), e.Generation())
	assert.Len(t, genFiles(t, dir), 1)

	h, err := e.Acquire()
	require.NoError(t, err)
	defer h.Release()
	assert.Equal(t, uint64(2), h.NumDocuments())
	assert.Equal(t, []string{"title"}, h.Settings().SearchableAttributes)
	l, ok := h.Search("beta")
	require.True(t, ok)
	assert.Equal(t, uint16(0), l.At(0).Attribute)

	info, err := e.Apply(context.Background(), addDocs(index.Document{"id": "3", "title": "gamma"}))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), info.Generation)
}

func TestEngine_DropRemovesDataAfterLastRelease(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	e := openEngine(t, dir, true)
	_, err := e.Apply(context.Background(), addDocs(index.Document{"id": "1", "title": "alpha"}))
	require.NoError(t, err)

	h, err := e.Acquire()
	require.NoError(t, err)

	require.NoError(t, e.Drop())
	_, err = e.Acquire()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = e.Apply(context.Background(), addDocs())
	assert.ErrorIs(t, err, ErrClosed)

	_, ok := h.Search("alpha")
	assert.True(t, ok)
	assert.DirExists(t, dir)

	h.Release()
	assert.NoDirExists(t, dir)
}

func TestEngine_ConcurrentReadersDuringApply(t *testing.T) {
	e := openEngine(t, t.TempDir(), true)
	defer e.Close()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				h, err := e.Acquire()
				if err != nil {
					return
				}
				if l, ok := h.Search("common"); ok {
					_ = l.Entries()
				}
				h.Release()
			}
		}()
	}

	for i := 0; i < 10; i++ {
		_, err := e.Apply(context.Background(), addDocs(index.Document{"id": string(rune('a' + i)), "title": "common word"}))
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	h, err := e.Acquire()
	require.NoError(t, err)
	defer h.Release()
	assert.Equal(t, uint64(10), h.NumDocuments())
}
