// Package updates keeps the update queue of every index: monotonic update
// ids, status records persisted beside the index data, spooled payloads and
// a scheduler running at most one update per index at a time.
package updates

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrTerminal is returned when a terminal status would be overwritten.
	ErrTerminal = errors.New("updates: status is terminal")
	// ErrUnknownUpdate is returned for an update id that was never enqueued.
	ErrUnknownUpdate = errors.New("updates: unknown update")
)

// StatusFile holds the status records of one index.
const StatusFile = "status.json"

// Status is implemented by the status records kept in a Store.
type Status interface {
	UpdateID() uint64
	Terminal() bool
}

type queueLog[S Status] struct {
	NextID   uint64 `json:"nextId"`
	Statuses []S    `json:"statuses"`
}

// Store records the updates of every index. Reads take a shared lock held
// only for the copy, so they never wait for an update being applied.
type Store[S Status] struct {
	dir    string
	spool  *Spool
	mu     sync.RWMutex
	logs   map[uuid.UUID]*queueLog[S]
	logger *slog.Logger
}

// Open loads the status records found under dir.
func Open[S Status](dir string, codec Codec) (*Store[S], error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating updates directory: %w", err)
	}
	s := &Store[S]{
		dir:    dir,
		spool:  NewSpool(dir, codec),
		logs:   make(map[uuid.UUID]*queueLog[S]),
		logger: slog.Default().With("component", "update-store"),
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading updates directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := uuid.Parse(entry.Name())
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name(), StatusFile))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading update log of %s: %w", id, err)
		}
		var l queueLog[S]
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, fmt.Errorf("parsing update log of %s: %w", id, err)
		}
		for i, st := range l.Statuses {
			if st.UpdateID() != uint64(i) {
				return nil, fmt.Errorf("update log of %s: record %d has id %d", id, i, st.UpdateID())
			}
		}
		s.logs[id] = &l
	}
	return s, nil
}

// Indexes returns every index with a status log.
func (s *Store[S]) Indexes() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(s.logs))
	for id := range s.logs {
		out = append(out, id)
	}
	return out
}

// Enqueue allocates the next update id of index, spools payload and records
// the status returned by build.
func (s *Store[S]) Enqueue(index uuid.UUID, payload []byte, build func(id uint64) S) (S, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[index]
	if !ok {
		l = &queueLog[S]{}
		s.logs[index] = l
	}
	id := l.NextID
	st := build(id)
	if payload != nil {
		if err := s.spool.Write(index, id, payload); err != nil {
			var zero S
			return zero, err
		}
	}
	l.Statuses = append(l.Statuses, st)
	l.NextID++
	if err := s.persist(index, l); err != nil {
		l.Statuses = l.Statuses[:len(l.Statuses)-1]
		l.NextID--
		s.spool.Remove(index, id)
		var zero S
		return zero, err
	}
	return st, nil
}

// Update replaces the record with the same id. Terminal records never
// change; the payload is dropped once st is terminal.
func (s *Store[S]) Update(index uuid.UUID, st S) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[index]
	id := st.UpdateID()
	if !ok || id >= uint64(len(l.Statuses)) {
		return fmt.Errorf("%w: %s/%d", ErrUnknownUpdate, index, id)
	}
	prev := l.Statuses[id]
	if prev.Terminal() {
		return fmt.Errorf("%w: %s/%d", ErrTerminal, index, id)
	}
	l.Statuses[id] = st
	if err := s.persist(index, l); err != nil {
		l.Statuses[id] = prev
		return err
	}
	if st.Terminal() {
		if err := s.spool.Remove(index, id); err != nil {
			s.logger.Warn("failed to remove payload", "uuid", index, "update_id", id, "error", err)
		}
	}
	return nil
}

// Get returns the record of one update.
func (s *Store[S]) Get(index uuid.UUID, id uint64) (S, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.logs[index]
	if !ok || id >= uint64(len(l.Statuses)) {
		var zero S
		return zero, false
	}
	return l.Statuses[id], true
}

// All returns every record of index in id order.
func (s *Store[S]) All(index uuid.UUID) []S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.logs[index]
	if !ok {
		return nil
	}
	return slices.Clone(l.Statuses)
}

// Pending returns the records of index that are not terminal yet.
func (s *Store[S]) Pending(index uuid.UUID) []S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.logs[index]
	if !ok {
		return nil
	}
	var out []S
	for _, st := range l.Statuses {
		if !st.Terminal() {
			out = append(out, st)
		}
	}
	return out
}

// Payload returns the spooled payload of an update.
func (s *Store[S]) Payload(index uuid.UUID, id uint64) ([]byte, error) {
	return s.spool.Read(index, id)
}

// Drop forgets every record of index and deletes its directory.
func (s *Store[S]) Drop(index uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs, index)
	if err := os.RemoveAll(filepath.Join(s.dir, index.String())); err != nil {
		return fmt.Errorf("removing update log of %s: %w", index, err)
	}
	return nil
}

func (s *Store[S]) persist(index uuid.UUID, l *queueLog[S]) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encoding update log: %w", err)
	}
	dir := filepath.Join(s.dir, index.String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating update log directory: %w", err)
	}
	path := filepath.Join(dir, StatusFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing update log: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("committing update log: %w", err)
	}
	return nil
}
