package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/controller/updates"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/docfmt"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/registry"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/meta"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/tracing"
)

var indexNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,400}$`)

const (
	// Causes recorded for updates that could not run to completion.
	causeIndexDeleted = "index deleted"
	causeTimedOut     = "update timed out"

	notifyTimeout = 5 * time.Second
)

// Option configures a LocalController.
type Option func(*LocalController)

// WithMetaStore persists index metadata in s instead of the file store
// under the data directory.
func WithMetaStore(s meta.Store) Option {
	return func(c *LocalController) { c.metaStore = s }
}

func WithNotifier(n Notifier) Option {
	return func(c *LocalController) { c.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *LocalController) { c.metrics = m }
}

// WithDecoder replaces the payload decoder used by documents additions.
func WithDecoder(d docfmt.Decoder) Option {
	return func(c *LocalController) { c.decoder = d }
}

// LocalController runs every index of one data directory in process.
//
// Layout under the data directory:
//
//	indexes.json             catalog (FileStore)
//	indexes/<uuid>/          generation files of each index
//	updates/<uuid>/          status records and spooled payloads
type LocalController struct {
	cfg       config.IndexerConfig
	catalog   atomic.Pointer[catalog]
	writeMu   sync.Mutex
	registry  *registry.Registry
	updates   *updates.Store[UpdateStatus]
	scheduler *updates.Scheduler
	metaStore meta.Store
	notifier  Notifier
	metrics   *metrics.Metrics
	decoder   docfmt.Decoder
	now       func() time.Time
	closed    atomic.Bool
	logger    *slog.Logger
}

var _ IndexController = (*LocalController)(nil)

// NewLocal opens the controller rooted at cfg.DataDir, recovering every
// index and re-scheduling the updates that had not finished.
func NewLocal(ctx context.Context, cfg config.IndexerConfig, opts ...Option) (*LocalController, error) {
	codec, err := updates.ParseCodec(cfg.PayloadCompression)
	if err != nil {
		return nil, err
	}
	c := &LocalController{
		cfg:     cfg,
		decoder: docfmt.Default,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
		logger: logger.WithComponent("index-controller"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metaStore == nil {
		fs, err := meta.OpenFileStore(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		c.metaStore = fs
	}
	c.updates, err = updates.Open[UpdateStatus](filepath.Join(cfg.DataDir, "updates"), codec)
	if err != nil {
		return nil, err
	}
	c.registry = registry.New(filepath.Join(cfg.DataDir, "indexes"), indexer.Options{Mmap: cfg.Mmap})
	c.scheduler = updates.NewScheduler(cfg.MaxConcurrentUpdates, cfg.UpdateTimeout, c.process)
	if err := c.recover(ctx); err != nil {
		c.scheduler.Close()
		c.registry.Close()
		return nil, err
	}
	return c, nil
}

func (c *LocalController) recover(ctx context.Context) error {
	metas, err := c.metaStore.List(ctx)
	if err != nil {
		return fmt.Errorf("listing index metadata: %w", err)
	}
	ids := make([]uuid.UUID, len(metas))
	for i, m := range metas {
		ids[i] = m.UUID
	}
	if err := c.registry.Open(ctx, ids); err != nil {
		return err
	}

	cat := newCatalog()
	for _, m := range metas {
		engine, _ := c.registry.Get(m.UUID)
		cat.put(&entry{meta: m, engine: engine})
	}
	c.catalog.Store(cat)

	if _, err := c.registry.RemoveOrphans(); err != nil {
		c.logger.Warn("failed to remove orphaned index data", "error", err)
	}
	for _, id := range c.updates.Indexes() {
		if _, ok := cat.byUUID[id]; !ok {
			if err := c.updates.Drop(id); err != nil {
				c.logger.Warn("failed to remove orphaned update log", "uuid", id, "error", err)
			}
		}
	}

	requeued := 0
	for _, e := range cat.sorted() {
		for _, st := range c.updates.Pending(e.meta.UUID) {
			c.scheduler.Schedule(e.meta.UUID, st.UpdateID())
			requeued++
		}
	}
	c.metrics.SetIndexes(len(metas))
	c.logger.Info("index controller ready",
		"data_dir", c.cfg.DataDir,
		"indexes", len(metas),
		"requeued_updates", requeued,
	)
	return nil
}

func (c *LocalController) lookup(name string) (*entry, bool) {
	e, ok := c.catalog.Load().byName[name]
	return e, ok
}

// advance returns a timestamp strictly after prev.
func (c *LocalController) advance(prev time.Time) time.Time {
	now := c.now()
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

func notFound(name string) error {
	return apperrors.Newf(apperrors.ErrIndexNotFound, http.StatusNotFound, "index %q not found", name)
}

func validateName(name *string) error {
	if name == nil || *name == "" {
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "index name is required")
	}
	if !indexNamePattern.MatchString(*name) {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"index name %q must be 1 to 400 alphanumeric, '-' or '_' characters", *name)
	}
	return nil
}

// createLocked registers a new index. The caller holds writeMu.
func (c *LocalController) createLocked(ctx context.Context, name string, primaryKey *string) (*entry, error) {
	cat := c.catalog.Load()
	if _, ok := cat.byName[name]; ok {
		return nil, apperrors.Newf(apperrors.ErrIndexAlreadyExists, http.StatusConflict, "index %q already exists", name)
	}
	now := c.now()
	m := IndexMetadata{
		Name:       name,
		UUID:       uuid.New(),
		CreatedAt:  now,
		UpdatedAt:  now,
		PrimaryKey: primaryKey,
	}
	m = m.Clone()
	engine, err := c.registry.Create(m.UUID)
	if err != nil {
		return nil, err
	}
	if err := c.metaStore.Put(ctx, m); err != nil {
		if rmErr := c.registry.Remove(m.UUID); rmErr != nil {
			c.logger.Error("failed to drop engine of unpersisted index", "index", name, "error", rmErr)
		}
		return nil, fmt.Errorf("persisting metadata of index %q: %w", name, err)
	}
	e := &entry{meta: m, engine: engine}
	next := cat.clone()
	next.put(e)
	c.catalog.Store(next)
	c.metrics.SetIndexes(len(next.byName))
	c.logger.Info("index created", "index", name, "uuid", m.UUID)
	return e, nil
}

func (c *LocalController) CreateIndex(ctx context.Context, settings IndexSettings) (IndexMetadata, error) {
	if err := validateName(settings.Name); err != nil {
		return IndexMetadata{}, err
	}
	if settings.PrimaryKey != nil && *settings.PrimaryKey == "" {
		return IndexMetadata{}, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "primary key must not be empty")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	e, err := c.createLocked(ctx, *settings.Name, settings.PrimaryKey)
	if err != nil {
		return IndexMetadata{}, err
	}
	return e.meta.Clone(), nil
}

func (c *LocalController) UpdateIndex(ctx context.Context, name string, settings IndexSettings) (IndexMetadata, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	cat := c.catalog.Load()
	e, ok := cat.byName[name]
	if !ok {
		return IndexMetadata{}, notFound(name)
	}
	if settings.Name != nil && *settings.Name != name {
		return IndexMetadata{}, apperrors.Newf(apperrors.ErrImmutableName, http.StatusBadRequest,
			"index %q cannot be renamed to %q", name, *settings.Name)
	}
	if settings.PrimaryKey == nil {
		return e.meta.Clone(), nil
	}
	if e.meta.PrimaryKey != nil {
		return IndexMetadata{}, apperrors.Newf(apperrors.ErrPrimaryKeyAlreadySet, http.StatusConflict,
			"index %q already has primary key %q", name, *e.meta.PrimaryKey)
	}
	pk := *settings.PrimaryKey
	if pk == "" {
		return IndexMetadata{}, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "primary key must not be empty")
	}
	if h, err := e.engine.Acquire(); err == nil {
		existing := h.PrimaryKey()
		h.Release()
		if existing != "" && existing != pk {
			return IndexMetadata{}, apperrors.Newf(apperrors.ErrPrimaryKeyAlreadySet, http.StatusConflict,
				"documents of index %q are stored under primary key %q", name, existing)
		}
	}

	m := e.meta.Clone()
	m.PrimaryKey = &pk
	m.UpdatedAt = c.advance(m.UpdatedAt)
	if err := c.metaStore.Put(ctx, m); err != nil {
		return IndexMetadata{}, fmt.Errorf("persisting metadata of index %q: %w", name, err)
	}
	next := cat.clone()
	next.put(&entry{meta: m, engine: e.engine})
	c.catalog.Store(next)
	c.logger.Info("index primary key set", "index", name, "primary_key", pk)
	return m.Clone(), nil
}

// recordPrimaryKey stores a primary key inferred while applying a documents
// addition, unless one was set in the meantime.
func (c *LocalController) recordPrimaryKey(ctx context.Context, id uuid.UUID, pk string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	cat := c.catalog.Load()
	e, ok := cat.byUUID[id]
	if !ok || e.meta.PrimaryKey != nil {
		return
	}
	m := e.meta.Clone()
	m.PrimaryKey = &pk
	m.UpdatedAt = c.advance(m.UpdatedAt)
	if err := c.metaStore.Put(ctx, m); err != nil {
		c.logger.Error("failed to persist inferred primary key", "index", m.Name, "primary_key", pk, "error", err)
		return
	}
	next := cat.clone()
	next.put(&entry{meta: m, engine: e.engine})
	c.catalog.Store(next)
	c.logger.Info("primary key inferred", "index", m.Name, "primary_key", pk)
}

// DeleteIndex removes the metadata first so that a failure further down
// never leaves the name pointing at released resources.
func (c *LocalController) DeleteIndex(ctx context.Context, name string) error {
	c.writeMu.Lock()
	cat := c.catalog.Load()
	e, ok := cat.byName[name]
	if !ok {
		c.writeMu.Unlock()
		return notFound(name)
	}
	if err := c.metaStore.Delete(ctx, name); err != nil {
		c.writeMu.Unlock()
		return fmt.Errorf("deleting metadata of index %q: %w", name, err)
	}
	next := cat.clone()
	next.remove(name)
	c.catalog.Store(next)
	c.writeMu.Unlock()

	id := e.meta.UUID
	c.scheduler.Forget(id)
	for _, st := range c.updates.Pending(id) {
		p := st.processing(c.now())
		c.finish(ctx, e.meta, NewFailed(p.Fail(causeIndexDeleted, c.now())))
	}

	var errs []error
	if err := c.updates.Drop(id); err != nil {
		errs = append(errs, err)
	}
	if err := c.registry.Remove(id); err != nil {
		errs = append(errs, err)
	}
	if rn, ok := c.notifier.(IndexRemovalNotifier); ok {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		if err := rn.IndexRemoved(nctx, e.meta); err != nil {
			c.logger.Warn("index removal notification failed", "index", name, "error", err)
		}
		cancel()
	}
	c.metrics.IndexRemoved(name)
	c.metrics.SetIndexes(len(next.byName))
	c.logger.Info("index deleted", "index", name, "uuid", id)
	return errors.Join(errs...)
}

func (c *LocalController) SwapIndices(ctx context.Context, name1, name2 string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	cat := c.catalog.Load()
	e1, ok := cat.byName[name1]
	if !ok {
		return notFound(name1)
	}
	e2, ok := cat.byName[name2]
	if !ok {
		return notFound(name2)
	}
	if name1 == name2 {
		return nil
	}

	m1 := e2.meta.Clone()
	m1.Name = name1
	m2 := e1.meta.Clone()
	m2.Name = name2
	if err := c.metaStore.Put(ctx, m1, m2); err != nil {
		return fmt.Errorf("persisting swap of %q and %q: %w", name1, name2, err)
	}
	next := cat.clone()
	next.put(&entry{meta: m1, engine: e2.engine})
	next.put(&entry{meta: m2, engine: e1.engine})
	c.catalog.Store(next)

	c.metrics.IndexRemoved(name1)
	c.metrics.IndexRemoved(name2)
	c.logger.Info("indexes swapped", "index1", name1, "index2", name2)
	return nil
}

func (c *LocalController) AddDocuments(ctx context.Context, index string, method IndexDocumentsMethod, format UpdateFormat, payload []byte) (UpdateStatus, error) {
	if !method.valid() {
		return UpdateStatus{}, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unknown documents method %q", method)
	}
	if !format.valid() {
		return UpdateStatus{}, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unknown update format %q", format)
	}
	if payload == nil {
		payload = []byte{}
	}
	return c.enqueue(ctx, index, true, DocumentsAdditionMeta(method, format), payload)
}

func (c *LocalController) ClearDocuments(ctx context.Context, index string) (UpdateStatus, error) {
	return c.enqueue(ctx, index, false, ClearDocumentsMeta(), nil)
}

func (c *LocalController) DeleteDocuments(ctx context.Context, index string, ids []string) (UpdateStatus, error) {
	if ids == nil {
		ids = []string{}
	}
	payload, err := json.Marshal(ids)
	if err != nil {
		return UpdateStatus{}, err
	}
	return c.enqueue(ctx, index, false, DeleteDocumentsMeta(), payload)
}

func (c *LocalController) UpdateSettings(ctx context.Context, index string, settings Settings) (UpdateStatus, error) {
	return c.enqueue(ctx, index, true, SettingsMeta(settings), nil)
}

// UpdateFacets enqueues a change of the facet level configuration.
func (c *LocalController) UpdateFacets(ctx context.Context, index string, facets Facets) (UpdateStatus, error) {
	if (facets.LevelGroupSize != nil && *facets.LevelGroupSize == 0) || (facets.MinLevelSize != nil && *facets.MinLevelSize == 0) {
		return UpdateStatus{}, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "facet sizes must be non-zero")
	}
	return c.enqueue(ctx, index, false, FacetsMeta(facets), nil)
}

func (c *LocalController) enqueue(ctx context.Context, name string, create bool, m UpdateMeta, payload []byte) (UpdateStatus, error) {
	if c.closed.Load() {
		return UpdateStatus{}, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "index controller is closed")
	}
	e, ok := c.lookup(name)
	if !ok {
		if !create {
			return UpdateStatus{}, notFound(name)
		}
		if err := validateName(&name); err != nil {
			return UpdateStatus{}, err
		}
		c.writeMu.Lock()
		e, ok = c.lookup(name)
		if !ok {
			var err error
			if e, err = c.createLocked(ctx, name, nil); err != nil {
				c.writeMu.Unlock()
				return UpdateStatus{}, err
			}
		}
		c.writeMu.Unlock()
	}

	st, err := c.updates.Enqueue(e.meta.UUID, payload, func(id uint64) UpdateStatus {
		return NewEnqueued(Enqueued{UpdateID: id, Meta: m, EnqueuedAt: c.now()})
	})
	if err != nil {
		return UpdateStatus{}, fmt.Errorf("enqueuing %s update for index %q: %w", m.Kind, name, err)
	}
	c.metrics.UpdateEnqueued(string(m.Kind))
	c.scheduler.Schedule(e.meta.UUID, st.UpdateID())
	c.logger.Debug("update enqueued", "index", name, "update_id", st.UpdateID(), "kind", m.Kind)
	return st, nil
}

// processing returns the Processing form of a non-terminal status.
func (s UpdateStatus) processing(now time.Time) Processing {
	if s.Kind == StatusProcessing {
		return *s.Processing
	}
	return s.enqueued().Start(now)
}

// process is the scheduler's handler: it runs one update of the index with
// the given uuid to a terminal state.
func (c *LocalController) process(ctx context.Context, id uuid.UUID, updateID uint64) {
	st, ok := c.updates.Get(id, updateID)
	if !ok || st.Terminal() {
		return
	}
	p := st.processing(c.now())
	if st.Kind == StatusEnqueued {
		if err := c.updates.Update(id, NewProcessing(p)); err != nil {
			c.logger.Error("failed to mark update as processing", "uuid", id, "update_id", updateID, "error", err)
			return
		}
	}
	var (
		m     = IndexMetadata{UUID: id}
		start time.Time
	)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("update processing panicked", "uuid", id, "update_id", updateID, "panic", r)
			if !start.IsZero() {
				c.metrics.UpdateFinished(string(p.Meta.Kind), string(StatusFailed), time.Since(start))
			}
			c.finish(ctx, m, NewFailed(p.Fail(fmt.Sprintf("internal error: %v", r), time.Now().UTC().Truncate(time.Microsecond))))
		}
	}()
	e, ok := c.catalog.Load().byUUID[id]
	if !ok {
		c.finish(ctx, m, NewFailed(p.Fail(causeIndexDeleted, c.now())))
		return
	}
	m = e.meta

	ctx = logger.WithUpdate(ctx, e.meta.Name, updateID)
	ctx, span := tracing.StartSpan(ctx, "update."+string(p.Meta.Kind), fmt.Sprintf("%s/%d", id, updateID))
	c.metrics.UpdateStarted()
	start = time.Now()

	var final UpdateStatus
	payload, err := c.updates.Payload(id, updateID)
	if err != nil {
		final = NewFailed(p.Fail(fmt.Sprintf("reading payload: %v", err), c.now()))
	} else if processed, err := c.apply(ctx, e, p, payload); err != nil {
		var failed *Failed
		if !errors.As(err, &failed) {
			failed = p.Fail(err.Error(), c.now())
		}
		final = NewFailed(failed)
	} else {
		final = NewProcessed(processed)
	}

	span.SetAttr("status", string(final.Kind))
	span.End()
	span.LogTo(logger.FromContext(ctx))
	c.metrics.UpdateFinished(string(p.Meta.Kind), string(final.Kind), time.Since(start))
	start = time.Time{}
	c.finish(ctx, e.meta, final)
}

// finish records a terminal status and notifies about it.
func (c *LocalController) finish(ctx context.Context, m IndexMetadata, final UpdateStatus) {
	if err := c.updates.Update(m.UUID, final); err != nil {
		if errors.Is(err, updates.ErrTerminal) || errors.Is(err, updates.ErrUnknownUpdate) {
			c.logger.Debug("update already settled", "uuid", m.UUID, "update_id", final.UpdateID(), "error", err)
			return
		}
		c.logger.Error("failed to record update status", "uuid", m.UUID, "update_id", final.UpdateID(), "error", err)
		return
	}
	log := logger.FromContext(ctx)
	if final.Kind == StatusFailed {
		log.Warn("update failed", "update_id", final.UpdateID(), "error", final.Failed.Cause)
	} else {
		log.Info("update processed", "update_id", final.UpdateID(), "kind", final.Meta().Kind)
	}
	if c.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := c.notifier.Notify(nctx, m, final); err != nil {
		log.Warn("update notification failed", "update_id", final.UpdateID(), "error", err)
	}
}

func (c *LocalController) HandleUpdate(ctx context.Context, index string, updateID uint64, processing Processing, payload []byte) (Processed, error) {
	if processing.UpdateID != updateID {
		return Processed{}, processing.Fail(fmt.Sprintf("update id %d does not match processing record %d", updateID, processing.UpdateID), c.now())
	}
	e, ok := c.lookup(index)
	if !ok {
		return Processed{}, processing.Fail(fmt.Sprintf("index %q not found", index), c.now())
	}
	return c.apply(ctx, e, processing, payload)
}

// apply runs the update against the index engine. Nothing is committed
// unless the returned error is nil.
func (c *LocalController) apply(ctx context.Context, e *entry, p Processing, payload []byte) (res Processed, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = Processed{}, p.Fail(fmt.Sprintf("internal error: %v", r), c.now())
		}
	}()
	var (
		result   UpdateResult
		inferred string
	)
	info, err := e.engine.Apply(ctx, func(txn *indexer.Txn) error {
		var err error
		result, inferred, err = c.mutate(txn, e.meta.UUID, p.Meta, payload)
		return err
	})
	if err != nil {
		return Processed{}, p.Fail(failureCause(err), c.now())
	}
	if inferred != "" {
		c.recordPrimaryKey(context.WithoutCancel(ctx), e.meta.UUID, inferred)
	}
	c.metrics.GenerationCommitted(e.meta.Name, info.StoreBytes, info.Documents)
	return p.Succeed(result, c.now()), nil
}

func failureCause(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return causeTimedOut
	case errors.Is(err, indexer.ErrClosed):
		return causeIndexDeleted
	default:
		return err.Error()
	}
}

// mutate applies one update to the transaction. It returns the result and
// the primary key it inferred, if any.
func (c *LocalController) mutate(txn *indexer.Txn, id uuid.UUID, m UpdateMeta, payload []byte) (UpdateResult, string, error) {
	switch m.Kind {
	case KindDocumentsAddition:
		return c.addDocuments(txn, id, m, payload)
	case KindClearDocuments:
		return DocumentDeletionResult(txn.Table.Clear()), "", nil
	case KindDeleteDocuments:
		n, err := deleteDocuments(txn.Table, payload)
		return DocumentDeletionResult(n), "", err
	case KindSettings:
		if m.Settings == nil {
			return UpdateResult{}, "", errors.New("settings update without settings")
		}
		if err := m.Settings.Validate(); err != nil {
			return UpdateResult{}, "", err
		}
		txn.Settings = m.Settings.Apply(txn.Settings)
		return OtherResult(), "", nil
	case KindFacets:
		if m.Facets == nil {
			return UpdateResult{}, "", errors.New("facets update without facets")
		}
		if v := m.Facets.LevelGroupSize; v != nil {
			txn.Settings.LevelGroupSize = int(*v)
		}
		if v := m.Facets.MinLevelSize; v != nil {
			txn.Settings.MinLevelSize = int(*v)
		}
		return OtherResult(), "", nil
	default:
		return UpdateResult{}, "", fmt.Errorf("unknown update kind %q", m.Kind)
	}
}

func (c *LocalController) addDocuments(txn *indexer.Txn, id uuid.UUID, m UpdateMeta, payload []byte) (UpdateResult, string, error) {
	records, err := c.decoder.Decode(docfmt.Format(m.Format), payload)
	if err != nil {
		return UpdateResult{}, "", fmt.Errorf("parsing %s payload: %w", m.Format, err)
	}
	var inferred string
	if txn.Table.PrimaryKey() == "" && len(records) > 0 {
		var pk string
		if cur, ok := c.catalog.Load().byUUID[id]; ok && cur.meta.PrimaryKey != nil {
			pk = *cur.meta.PrimaryKey
		}
		if pk == "" {
			k, ok := index.InferPrimaryKey(records[0].Keys)
			if !ok {
				return UpdateResult{}, "", fmt.Errorf("%w: no attribute of the first document can be used as the primary key", apperrors.ErrMissingPrimaryKey)
			}
			pk, inferred = k, k
		}
		if err := txn.Table.SetPrimaryKey(pk); err != nil {
			return UpdateResult{}, "", err
		}
	}
	for i, r := range records {
		doc := index.Document(r.Values)
		if m.Method == UpdateDocuments {
			_, err = txn.Table.Merge(doc, r.Keys)
		} else {
			_, err = txn.Table.Put(doc, r.Keys)
		}
		if err != nil {
			return UpdateResult{}, "", fmt.Errorf("document %d: %w", i, err)
		}
	}
	return DocumentsAdditionResult(uint64(len(records))), inferred, nil
}

func deleteDocuments(table *index.DocumentTable, payload []byte) (uint64, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var ids []any
	if err := dec.Decode(&ids); err != nil {
		return 0, fmt.Errorf("parsing document ids: %w", err)
	}
	var deleted uint64
	for _, v := range ids {
		key, err := index.DocumentID(v)
		if err != nil {
			return 0, err
		}
		if table.Delete(key) {
			deleted++
		}
	}
	return deleted, nil
}

func (c *LocalController) Index(name string) (*indexer.Handle, bool, error) {
	e, ok := c.lookup(name)
	if !ok {
		return nil, false, nil
	}
	h, err := e.engine.Acquire()
	if err != nil {
		if errors.Is(err, indexer.ErrClosed) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return h, true, nil
}

func (c *LocalController) UpdateStatus(index string, id uint64) (UpdateStatus, bool, error) {
	e, ok := c.lookup(index)
	if !ok {
		return UpdateStatus{}, false, nil
	}
	st, ok := c.updates.Get(e.meta.UUID, id)
	return st, ok, nil
}

func (c *LocalController) AllUpdateStatus(index string) ([]UpdateStatus, error) {
	e, ok := c.lookup(index)
	if !ok {
		return nil, nil
	}
	return c.updates.All(e.meta.UUID), nil
}

func (c *LocalController) ListIndexes() ([]IndexMetadata, error) {
	entries := c.catalog.Load().sorted()
	out := make([]IndexMetadata, len(entries))
	for i, e := range entries {
		out[i] = e.meta.Clone()
	}
	return out, nil
}

// IndexStats summarizes one index.
type IndexStats struct {
	Name           string    `json:"name"`
	UUID           uuid.UUID `json:"uuid"`
	Generation     uint64    `json:"generation"`
	Documents      uint64    `json:"numberOfDocuments"`
	Terms          int       `json:"terms"`
	StoreBytes     int       `json:"storeBytes"`
	PendingUpdates int       `json:"pendingUpdates"`
}

// Stats returns a summary of every index in creation order.
func (c *LocalController) Stats() []IndexStats {
	entries := c.catalog.Load().sorted()
	out := make([]IndexStats, 0, len(entries))
	for _, e := range entries {
		s := IndexStats{
			Name:           e.meta.Name,
			UUID:           e.meta.UUID,
			PendingUpdates: len(c.updates.Pending(e.meta.UUID)),
		}
		if h, err := e.engine.Acquire(); err == nil {
			s.Generation = h.Generation()
			s.Documents = h.NumDocuments()
			s.Terms = len(h.Terms())
			s.StoreBytes = h.Store().Size()
			h.Release()
		}
		out = append(out, s)
	}
	return out
}

// Ping reports whether the controller accepts updates.
func (c *LocalController) Ping(context.Context) error {
	if c.closed.Load() {
		return apperrors.ErrUnavailable
	}
	return nil
}

// Close waits for running updates, then closes every index. Updates still
// queued stay enqueued and are resumed by the next NewLocal.
func (c *LocalController) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.scheduler.Close()
	return errors.Join(c.registry.Close(), c.metaStore.Close())
}
