// Package registry maps index uuids to their indexer.Engine instances. Each
// engine owns its own data directory named after the uuid under the
// registry's base directory.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer"
)

// ErrExists is returned by Create for an uuid that already has an engine.
var ErrExists = errors.New("registry: engine already exists")

// Registry maps index uuids to dedicated indexer.Engine instances.
type Registry struct {
	engines map[uuid.UUID]*indexer.Engine
	mu      sync.RWMutex
	baseDir string
	opts    indexer.Options
	logger  *slog.Logger
}

// New creates an empty registry rooted at baseDir.
func New(baseDir string, opts indexer.Options) *Registry {
	return &Registry{
		engines: make(map[uuid.UUID]*indexer.Engine),
		baseDir: baseDir,
		opts:    opts,
		logger:  slog.Default().With("component", "index-registry"),
	}
}

// Dir returns the data directory of the engine for id.
func (r *Registry) Dir(id uuid.UUID) string {
	return filepath.Join(r.baseDir, id.String())
}

// Open recovers the engines of every id in parallel. On failure every engine
// opened by this call is closed again.
func (r *Registry) Open(ctx context.Context, ids []uuid.UUID) error {
	engines := make([]*indexer.Engine, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			engine, err := indexer.Open(r.Dir(id), r.opts)
			if err != nil {
				return fmt.Errorf("opening engine for index %s: %w", id, err)
			}
			engines[i] = engine
			r.logger.Info("index engine recovered",
				"uuid", id,
				"generation", engine.Generation(),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, e := range engines {
			if e != nil {
				e.Close()
			}
		}
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, id := range ids {
		r.engines[id] = engines[i]
	}
	return nil
}

// Create opens a fresh engine for id.
func (r *Registry) Create(id uuid.UUID) (*indexer.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.engines[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, id)
	}
	engine, err := indexer.Open(r.Dir(id), r.opts)
	if err != nil {
		return nil, fmt.Errorf("creating engine for index %s: %w", id, err)
	}
	r.engines[id] = engine
	r.logger.Info("index engine created", "uuid", id)
	return engine, nil
}

// Get returns the engine for id.
func (r *Registry) Get(id uuid.UUID) (*indexer.Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	engine, ok := r.engines[id]
	return engine, ok
}

// Len returns the number of registered engines.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}

// Remove unregisters the engine for id and drops its data once no reader
// holds it any more.
func (r *Registry) Remove(id uuid.UUID) error {
	r.mu.Lock()
	engine, ok := r.engines[id]
	delete(r.engines, id)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	if err := engine.Drop(); err != nil && !errors.Is(err, indexer.ErrClosed) {
		return fmt.Errorf("dropping engine for index %s: %w", id, err)
	}
	r.logger.Info("index engine dropped", "uuid", id)
	return nil
}

// RemoveOrphans deletes data directories that belong to no registered engine.
func (r *Registry) RemoveOrphans() ([]string, error) {
	entries, err := os.ReadDir(r.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var removed []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := uuid.Parse(entry.Name())
		if err != nil {
			continue
		}
		if _, ok := r.engines[id]; ok {
			continue
		}
		if err := os.RemoveAll(filepath.Join(r.baseDir, entry.Name())); err != nil {
			return removed, err
		}
		removed = append(removed, entry.Name())
		r.logger.Info("removed orphaned index directory", "uuid", id)
	}
	return removed, nil
}

// Close closes every engine in parallel.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var g errgroup.Group
	for id, engine := range r.engines {
		g.Go(func() error {
			if err := engine.Close(); err != nil {
				r.logger.Error("close failed", "uuid", id, "error", err)
				return err
			}
			return nil
		})
	}
	err := g.Wait()
	r.engines = make(map[uuid.UUID]*indexer.Engine)
	return err
}
