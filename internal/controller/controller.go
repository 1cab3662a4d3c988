// Package controller governs a named collection of indexes. Reads (index
// handles, metadata, update status) work on committed state and never wait
// for writers; writes are queued as updates that move through
// Enqueued → Processing → Processed | Failed and are applied one at a time
// per index.
package controller

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer"
)

// IndexController is the contract of an index-management subsystem.
// Unknown index names, update ids and the like are reported through the
// boolean of the read methods, never as errors.
type IndexController interface {
	// AddDocuments enqueues a documents addition. The index is created with
	// default settings when it does not exist.
	AddDocuments(ctx context.Context, index string, method IndexDocumentsMethod, format UpdateFormat, payload []byte) (UpdateStatus, error)
	// ClearDocuments enqueues the removal of every document of index.
	ClearDocuments(ctx context.Context, index string) (UpdateStatus, error)
	// DeleteDocuments enqueues the removal of the documents with the given
	// ids.
	DeleteDocuments(ctx context.Context, index string, ids []string) (UpdateStatus, error)
	// UpdateSettings enqueues a settings change. The index is created when
	// it does not exist.
	UpdateSettings(ctx context.Context, index string, settings Settings) (UpdateStatus, error)

	CreateIndex(ctx context.Context, settings IndexSettings) (IndexMetadata, error)
	// UpdateIndex assigns the primary key of an index that has none. The
	// name can never change.
	UpdateIndex(ctx context.Context, name string, settings IndexSettings) (IndexMetadata, error)
	DeleteIndex(ctx context.Context, name string) error
	// SwapIndices exchanges the indexes two names refer to in one step.
	SwapIndices(ctx context.Context, name1, name2 string) error

	// HandleUpdate applies a dequeued update and commits the result. A
	// failure is returned as *Failed and leaves the index unchanged.
	HandleUpdate(ctx context.Context, index string, updateID uint64, processing Processing, payload []byte) (Processed, error)

	// Index pins the current generation of the named index. The caller
	// releases the handle.
	Index(name string) (*indexer.Handle, bool, error)
	UpdateStatus(index string, id uint64) (UpdateStatus, bool, error)
	AllUpdateStatus(index string) ([]UpdateStatus, error)
	ListIndexes() ([]IndexMetadata, error)
}

// Notifier is told about every terminal update.
type Notifier interface {
	Notify(ctx context.Context, index IndexMetadata, status UpdateStatus) error
}

// IndexRemovalNotifier is implemented by notifiers that keep state per
// index. DeleteIndex calls it after the index's update records are gone.
type IndexRemovalNotifier interface {
	IndexRemoved(ctx context.Context, index IndexMetadata) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, index IndexMetadata, status UpdateStatus) error

func (f NotifierFunc) Notify(ctx context.Context, index IndexMetadata, status UpdateStatus) error {
	return f(ctx, index, status)
}
