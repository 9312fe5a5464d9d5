package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tripforge/tripforge/pkg/models"
)

// MemoryStore is an in-process Store used for development and tests. It
// clones on every boundary so callers never share document memory with the
// store.
type MemoryStore struct {
	mu        sync.RWMutex
	docs      map[string]*models.Itinerary
	revisions map[string]map[int]*models.Itinerary
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:      make(map[string]*models.Itinerary),
		revisions: make(map[string]map[int]*models.Itinerary),
	}
}

func (s *MemoryStore) Create(ctx context.Context, it *models.Itinerary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[it.ID]; exists {
		return ErrAlreadyExists
	}
	now := time.Now()
	it.Version = 1
	it.CreatedAt = now
	it.UpdatedAt = now
	s.docs[it.ID] = it.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Itinerary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, it *models.Itinerary, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[it.ID]
	if !ok {
		return ErrNotFound
	}
	if doc.Version != expectedVersion {
		return ErrVersionConflict
	}
	it.Version = expectedVersion + 1
	it.UpdatedAt = time.Now()
	s.docs[it.ID] = it.Clone()
	return nil
}

func (s *MemoryStore) SaveRevision(ctx context.Context, it *models.Itinerary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	revs, ok := s.revisions[it.ID]
	if !ok {
		revs = make(map[int]*models.Itinerary)
		s.revisions[it.ID] = revs
	}
	if _, exists := revs[it.Version]; exists {
		return nil
	}
	revs[it.Version] = it.Clone()
	return nil
}

func (s *MemoryStore) ListRevisions(ctx context.Context, id string) ([]RevisionMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.docs[id]; !ok {
		return nil, ErrNotFound
	}
	var out []RevisionMeta
	for _, rev := range s.revisions[id] {
		out = append(out, RevisionMeta{Version: rev.Version, CreatedAt: rev.UpdatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *MemoryStore) GetRevision(ctx context.Context, id string, version int) (*models.Itinerary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rev, ok := s.revisions[id][version]
	if !ok {
		return nil, ErrNotFound
	}
	return rev.Clone(), nil
}
