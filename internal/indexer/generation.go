package indexer

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/postings"
)

// Generation is one committed, immutable version of an index. It is
// reference counted: the engine holds one reference while the generation is
// current and every Handle holds one more. The last release closes it and
// runs its cleanup, if any was set by retire.
type Generation struct {
	refs       atomic.Int64
	seq        uint64
	reader     *segment.Reader
	store      *postings.Store
	table      *index.DocumentTable
	settings   index.Settings
	dictionary []string

	cleanupMu sync.Mutex
	cleanup   func()
}

func newGeneration(seq uint64, store *postings.Store, table *index.DocumentTable, settings index.Settings, dictionary []string) *Generation {
	g := &Generation{
		seq:        seq,
		store:      store,
		table:      table,
		settings:   settings,
		dictionary: dictionary,
	}
	g.refs.Store(1)
	return g
}

func generationFromReader(r *segment.Reader) (*Generation, error) {
	schema := r.Schema()
	table, err := index.Restore(schema.PrimaryKey, schema.Fields, schema.NextID, r.Documents(), r.Live())
	if err != nil {
		return nil, err
	}
	g := newGeneration(r.Generation(), r.Postings(), table, schema.Settings, r.Dictionary())
	g.reader = r
	return g, nil
}

func (g *Generation) tryRetain() bool {
	for {
		refs := g.refs.Load()
		if refs <= 0 {
			return false
		}
		if g.refs.CompareAndSwap(refs, refs+1) {
			return true
		}
	}
}

func (g *Generation) release() {
	if g.refs.Add(-1) != 0 {
		return
	}
	if g.reader != nil {
		_ = g.reader.Close()
	} else if g.store != nil {
		_ = g.store.Close()
	}
	g.cleanupMu.Lock()
	f := g.cleanup
	g.cleanupMu.Unlock()
	if f != nil {
		f()
	}
}

// retire sets the cleanup run once the last holder releases the generation.
func (g *Generation) retire(f func()) {
	g.cleanupMu.Lock()
	g.cleanup = f
	g.cleanupMu.Unlock()
}

func (g *Generation) path() string {
	if g.reader == nil {
		return ""
	}
	return g.reader.Path()
}

func (g *Generation) termID(term string) (uint64, bool) {
	i := sort.SearchStrings(g.dictionary, term)
	if i >= len(g.dictionary) || g.dictionary[i] != term {
		return 0, false
	}
	return uint64(i), true
}
