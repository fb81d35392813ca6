package datastore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and demos.
//
// The fault hooks let tests inject listing failures, per-visit
// validation failures, and per-dataset fetch failures without standing
// up a real registry.
type MemoryStore struct {
	mu       sync.RWMutex
	visits   map[string]map[Visit]string // base collection -> visit -> obs date
	datasets map[Key]*Dataset

	// Fault hooks, consulted before the normal lookup. Nil means no
	// fault. Safe to set before the store is shared.
	ListErr      error
	VisitDateErr func(visit Visit) error
	GetErr       func(key Key) error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		visits:   make(map[string]map[Visit]string),
		datasets: make(map[Key]*Dataset),
	}
}

// PutVisit registers a visit under a base collection.
func (s *MemoryStore) PutVisit(baseCollection string, visit Visit, obsDate string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visits[baseCollection] == nil {
		s.visits[baseCollection] = make(map[Visit]string)
	}
	s.visits[baseCollection][visit] = obsDate
}

// RemoveVisit deletes a visit registration.
func (s *MemoryStore) RemoveVisit(baseCollection string, visit Visit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.visits[baseCollection], visit)
}

// PutDataset stores one dataset.
func (s *MemoryStore) PutDataset(ds *Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[ds.Key] = ds
}

// Exists implements Store.
func (s *MemoryStore) Exists(ctx context.Context, key Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.datasets[key]
	return ok, nil
}

// GetDataset implements Store.
func (s *MemoryStore) GetDataset(ctx context.Context, key Key) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.GetErr != nil {
		if err := s.GetErr(key); err != nil {
			return nil, err
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.datasets[key]
	if !ok {
		return nil, &NotFoundError{Key: key}
	}
	return ds, nil
}

// ListCollections implements Store.
func (s *MemoryStore) ListCollections(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for base, visits := range s.visits {
		if base != prefix && !strings.HasPrefix(base, prefix+"/") {
			continue
		}
		for v := range visits {
			names = append(names, CollectionForVisit(base, v))
		}
	}
	sort.Strings(names)
	return names, nil
}

// VisitDate implements Store.
func (s *MemoryStore) VisitDate(ctx context.Context, baseCollection string, visit Visit) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.VisitDateErr != nil {
		if err := s.VisitDateErr(visit); err != nil {
			return "", err
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	date, ok := s.visits[baseCollection][visit]
	if !ok {
		return "", &NotFoundError{Key: Key{Collection: baseCollection, Visit: visit, Product: "visit"}}
	}
	return date, nil
}

// Open implements Store.
func (s *MemoryStore) Open(ctx context.Context, baseCollection string, visit Visit) (*Handle, error) {
	if _, err := s.VisitDate(ctx, baseCollection, visit); err != nil {
		return nil, err
	}
	return newHandle(s, baseCollection, visit), nil
}
