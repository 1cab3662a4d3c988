package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// FileName is the catalog file written by FileStore.
const FileName = "indexes.json"

// FileStore keeps the catalog in a single JSON file. Every change rewrites
// the whole file through a temporary file and a rename.
type FileStore struct {
	path    string
	mu      sync.Mutex
	records map[string]IndexMetadata
	logger  *slog.Logger
}

// OpenFileStore loads the catalog stored in dir, creating dir if needed.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating metadata directory: %w", err)
	}
	s := &FileStore{
		path:    filepath.Join(dir, FileName),
		records: make(map[string]IndexMetadata),
		logger:  slog.Default().With("component", "meta-file"),
	}
	data, err := os.ReadFile(s.path)
	switch {
	case os.IsNotExist(err):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}
	var list []IndexMetadata
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	for _, m := range list {
		s.records[m.Name] = m
	}
	s.logger.Info("index catalog loaded", "indexes", len(list))
	return s, nil
}

func (s *FileStore) List(_ context.Context) ([]IndexMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(), nil
}

func (s *FileStore) Put(_ context.Context, ms ...IndexMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := make(map[string]IndexMetadata, len(ms))
	for _, m := range ms {
		if old, ok := s.records[m.Name]; ok {
			prev[m.Name] = old
		}
		s.records[m.Name] = m.Clone()
	}
	if err := s.flush(); err != nil {
		for _, m := range ms {
			if old, ok := prev[m.Name]; ok {
				s.records[m.Name] = old
			} else {
				delete(s.records, m.Name)
			}
		}
		return err
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.records[name]
	if !ok {
		return nil
	}
	delete(s.records, name)
	if err := s.flush(); err != nil {
		s.records[name] = old
		return err
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) sorted() []IndexMetadata {
	out := make([]IndexMetadata, 0, len(s.records))
	for _, m := range s.records {
		out = append(out, m.Clone())
	}
	slices.SortFunc(out, func(a, b IndexMetadata) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

func (s *FileStore) flush() error {
	data, err := json.MarshalIndent(s.sorted(), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding index catalog: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing index catalog: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing index catalog: %w", err)
	}
	return nil
}
