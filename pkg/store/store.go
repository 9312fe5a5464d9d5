// Package store persists itineraries and their revision history. The
// interface exposes optimistic concurrency directly: Update succeeds only
// against the version the caller read, and callers own the re-read/re-apply
// loop.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/tripforge/tripforge/pkg/models"
)

// Sentinel errors returned by stores.
var (
	ErrNotFound        = errors.New("itinerary not found")
	ErrAlreadyExists   = errors.New("itinerary already exists")
	ErrVersionConflict = errors.New("itinerary version conflict")
)

// RevisionMeta describes one archived revision without its document body.
type RevisionMeta struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the persistence contract for itineraries.
type Store interface {
	// Create persists a new itinerary at version 1. Returns ErrAlreadyExists
	// if the id is taken.
	Create(ctx context.Context, it *models.Itinerary) error

	// Get returns the current document, or ErrNotFound.
	Get(ctx context.Context, id string) (*models.Itinerary, error)

	// Update writes the document if and only if the stored version equals
	// expectedVersion. On success the document is persisted at
	// expectedVersion+1 and it.Version and it.UpdatedAt are updated in
	// place. Returns ErrVersionConflict when the stored version moved.
	Update(ctx context.Context, it *models.Itinerary, expectedVersion int) error

	// SaveRevision archives a snapshot of the document at its current
	// version. Saving the same version twice is a no-op.
	SaveRevision(ctx context.Context, it *models.Itinerary) error

	// ListRevisions returns revision metadata ordered by ascending version.
	ListRevisions(ctx context.Context, id string) ([]RevisionMeta, error)

	// GetRevision returns one archived snapshot, or ErrNotFound.
	GetRevision(ctx context.Context, id string, version int) (*models.Itinerary, error)
}
