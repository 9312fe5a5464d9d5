package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/tripforge/tripforge/pkg/models"
	"github.com/tripforge/tripforge/pkg/pipeline"
	"github.com/tripforge/tripforge/pkg/store"
)

// ItineraryView is an itinerary document plus live generation state.
type ItineraryView struct {
	*models.Itinerary
	Generating bool `json:"generating"`
}

// ItineraryService serves reads and lifecycle operations on existing
// itineraries.
type ItineraryService struct {
	store        store.Store
	orchestrator *pipeline.Orchestrator
}

// NewItineraryService creates the itinerary read/lifecycle service.
func NewItineraryService(st store.Store, orch *pipeline.Orchestrator) *ItineraryService {
	return &ItineraryService{store: st, orchestrator: orch}
}

// Get returns the current document with generation state attached.
func (s *ItineraryService) Get(ctx context.Context, id string) (*ItineraryView, error) {
	it, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load itinerary: %w", err)
	}
	return &ItineraryView{
		Itinerary:  it,
		Generating: s.orchestrator.IsGenerating(id),
	}, nil
}

// ListRevisions returns the archived revision metadata for an itinerary.
func (s *ItineraryService) ListRevisions(ctx context.Context, id string) ([]store.RevisionMeta, error) {
	revs, err := s.store.ListRevisions(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}
	return revs, nil
}

// GetRevision returns one archived snapshot.
func (s *ItineraryService) GetRevision(ctx context.Context, id string, version int) (*models.Itinerary, error) {
	rev, err := s.store.GetRevision(ctx, id, version)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load revision: %w", err)
	}
	return rev, nil
}

// Cancel requests cancellation of an in-flight generation. The itinerary
// must exist; cancelling an idle itinerary returns ErrNotGenerating.
func (s *ItineraryService) Cancel(ctx context.Context, id string) error {
	if _, err := s.store.Get(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load itinerary: %w", err)
	}
	if err := s.orchestrator.Cancel(id); err != nil {
		if errors.Is(err, pipeline.ErrNotGenerating) {
			return ErrNotGenerating
		}
		return err
	}
	return nil
}
