// Package indexer owns the on-disk state of a single index. An Engine holds
// the current committed generation; readers pin a generation through a
// Handle while Apply builds and publishes the next one.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/postings"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/tracing"
)

// ErrClosed is returned by an engine after Close or Drop.
var ErrClosed = errors.New("indexer: engine closed")

// Options controls how generations are stored.
type Options struct {
	// Mmap maps generation files instead of reading them into memory.
	Mmap bool
}

// Txn is the mutable state handed to an Apply mutation. It starts as a copy
// of the current generation.
type Txn struct {
	Table    *index.DocumentTable
	Settings index.Settings
}

// CommitInfo describes a generation published by Apply.
type CommitInfo struct {
	Generation uint64
	Documents  uint64
	Terms      int
	StoreBytes int
}

type Engine struct {
	dir     string
	opts    Options
	writer  *segment.Writer
	current atomic.Pointer[Generation]
	applyMu sync.Mutex
	closed  atomic.Bool
	logger  *slog.Logger
}

// Open opens the engine rooted at dir, recovering the newest readable
// generation file. A directory without generations yields an empty index.
func Open(dir string, opts Options) (*Engine, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	e := &Engine{
		dir:    dir,
		opts:   opts,
		writer: segment.NewWriter(dir),
		logger: slog.Default().With("component", "indexer", "dir", dir),
	}
	gen, err := e.loadLatestGeneration()
	if err != nil {
		return nil, fmt.Errorf("loading existing generations: %w", err)
	}
	if gen == nil {
		gen, err = emptyGeneration()
		if err != nil {
			return nil, err
		}
	}
	e.current.Store(gen)
	return e, nil
}

func emptyGeneration() (*Generation, error) {
	b := postings.NewMemoryBuilder()
	buf, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	store, err := postings.FromBytes(buf)
	if err != nil {
		return nil, err
	}
	return newGeneration(0, store, index.NewDocumentTable(), index.DefaultSettings(), nil), nil
}

// Dir returns the engine's data directory.
func (e *Engine) Dir() string { return e.dir }

// Acquire pins the current generation.
func (e *Engine) Acquire() (*Handle, error) {
	for {
		if e.closed.Load() {
			return nil, ErrClosed
		}
		gen := e.current.Load()
		if gen.tryRetain() {
			return &Handle{gen: gen}, nil
		}
		// The generation was superseded and fully released between the load
		// and the retain; the replacement is already published.
		runtime.Gosched()
	}
}

// Generation returns the sequence number of the current generation.
func (e *Engine) Generation() uint64 {
	return e.current.Load().seq
}

// Apply runs mutate against a copy of the current state, writes the result
// as a new generation and publishes it. Nothing is published when mutate
// fails or ctx is done before the commit point.
func (e *Engine) Apply(ctx context.Context, mutate func(*Txn) error) (CommitInfo, error) {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	if e.closed.Load() {
		return CommitInfo{}, ErrClosed
	}

	cur := e.current.Load()
	txn := &Txn{
		Table:    cur.table.Clone(),
		Settings: cur.settings.Clone(),
	}
	if err := mutate(txn); err != nil {
		return CommitInfo{}, err
	}
	if err := ctx.Err(); err != nil {
		return CommitInfo{}, err
	}

	_, span := tracing.StartChildSpan(ctx, "indexer.build")
	mem, err := txn.Table.Invert(txn.Settings)
	if err != nil {
		span.End()
		return CommitInfo{}, fmt.Errorf("building inverted index: %w", err)
	}
	terms := mem.Snapshot()
	contents := segment.Contents{
		Schema: segment.Schema{
			PrimaryKey: txn.Table.PrimaryKey(),
			Fields:     txn.Table.Fields(),
			NextID:     txn.Table.NextID(),
			Settings:   txn.Settings,
		},
		Documents:  txn.Table.Stored(),
		Dictionary: make([]string, len(terms)),
		Live:       txn.Table.Live(),
		Lists:      make([][]postings.Entry, len(terms)),
	}
	for i, te := range terms {
		contents.Dictionary[i] = te.Term
		contents.Lists[i] = te.Postings
	}
	span.SetAttr("terms", len(terms))
	span.SetAttr("entries", mem.Size())
	span.End()

	seq := cur.seq + 1
	_, span = tracing.StartChildSpan(ctx, "indexer.write")
	path, err := e.writer.Write(seq, contents)
	span.End()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("writing generation %d: %w", seq, err)
	}
	reader, err := segment.OpenReader(path, e.opts.Mmap)
	if err != nil {
		os.Remove(path)
		return CommitInfo{}, fmt.Errorf("opening generation %d: %w", seq, err)
	}
	if err := ctx.Err(); err != nil {
		reader.Close()
		os.Remove(path)
		return CommitInfo{}, err
	}

	next := newGeneration(seq, reader.Postings(), txn.Table, txn.Settings, contents.Dictionary)
	next.reader = reader
	e.current.Store(next)
	e.supersede(cur)

	info := CommitInfo{
		Generation: seq,
		Documents:  txn.Table.Len(),
		Terms:      len(terms),
		StoreBytes: reader.Postings().Size(),
	}
	e.logger.Info("generation committed",
		"generation", seq,
		"documents", info.Documents,
		"terms", info.Terms,
		"store_bytes", info.StoreBytes,
	)
	return info, nil
}

// supersede drops the engine's reference on a replaced generation and
// removes its file once the last reader lets go.
func (e *Engine) supersede(old *Generation) {
	if p := old.path(); p != "" {
		old.retire(func() {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				e.logger.Error("removing superseded generation", "path", p, "error", err)
			}
		})
	}
	old.release()
}

// Close releases the current generation. Files stay on disk.
func (e *Engine) Close() error {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	if e.closed.Swap(true) {
		return nil
	}
	e.current.Load().release()
	return nil
}

// Drop closes the engine and deletes its directory once the last reader
// has released its handle.
func (e *Engine) Drop() error {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	if e.closed.Swap(true) {
		return ErrClosed
	}
	gen := e.current.Load()
	dir := e.dir
	gen.retire(func() {
		if err := os.RemoveAll(dir); err != nil {
			e.logger.Error("removing index directory", "error", err)
		}
	})
	gen.release()
	return nil
}

func (e *Engine) loadLatestGeneration() (*Generation, error) {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading data directory: %w", err)
	}
	type genFile struct {
		seq  uint64
		name string
	}
	var files []genFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(name, ".tmp") {
			os.Remove(filepath.Join(e.dir, name))
			continue
		}
		if !strings.HasPrefix(name, "gen_") || !strings.HasSuffix(name, ".spdx") {
			continue
		}
		seq, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(name, "gen_"), ".spdx"), 10, 64)
		if err != nil {
			continue
		}
		files = append(files, genFile{seq: seq, name: name})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].seq > files[j].seq })

	var gen *Generation
	for _, f := range files {
		path := filepath.Join(e.dir, f.name)
		if gen != nil {
			os.Remove(path)
			continue
		}
		reader, err := segment.OpenReader(path, e.opts.Mmap)
		if err != nil {
			e.logger.Error("failed to open generation, skipping",
				"generation", f.seq,
				"error", err,
			)
			continue
		}
		g, err := generationFromReader(reader)
		if err != nil {
			reader.Close()
			e.logger.Error("failed to restore generation, skipping",
				"generation", f.seq,
				"error", err,
			)
			continue
		}
		gen = g
		e.logger.Info("loaded existing generation",
			"generation", g.seq,
			"terms", reader.Terms(),
			"docs", reader.DocCount(),
		)
	}
	return gen, nil
}
