package controller

import (
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer"
)

type entry struct {
	meta   IndexMetadata
	engine *indexer.Engine
}

// catalog is an immutable name → index mapping. Writers publish a modified
// copy; readers load the current one without locking.
type catalog struct {
	byName map[string]*entry
	byUUID map[uuid.UUID]*entry
}

func newCatalog() *catalog {
	return &catalog{
		byName: make(map[string]*entry),
		byUUID: make(map[uuid.UUID]*entry),
	}
}

func (c *catalog) clone() *catalog {
	return &catalog{
		byName: maps.Clone(c.byName),
		byUUID: maps.Clone(c.byUUID),
	}
}

func (c *catalog) put(e *entry) {
	if old, ok := c.byName[e.meta.Name]; ok && c.byUUID[old.meta.UUID] == old {
		delete(c.byUUID, old.meta.UUID)
	}
	c.byName[e.meta.Name] = e
	c.byUUID[e.meta.UUID] = e
}

func (c *catalog) remove(name string) {
	if e, ok := c.byName[name]; ok {
		delete(c.byName, name)
		if c.byUUID[e.meta.UUID] == e {
			delete(c.byUUID, e.meta.UUID)
		}
	}
}

// sorted returns the entries in creation order, ties broken by name as the
// metadata stores list them.
func (c *catalog) sorted() []*entry {
	out := slices.Collect(maps.Values(c.byName))
	slices.SortFunc(out, func(a, b *entry) int {
		if cmp := a.meta.CreatedAt.Compare(b.meta.CreatedAt); cmp != 0 {
			return cmp
		}
		return strings.Compare(a.meta.Name, b.meta.Name)
	})
	return out
}
