package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripforge/tripforge/pkg/models"
)

func sampleItinerary(id string) *models.Itinerary {
	return &models.Itinerary{
		ID:          id,
		UserID:      "user-1",
		Destination: "Lisbon",
		StartDate:   "2026-09-01",
		EndDate:     "2026-09-03",
		Days: []models.Day{
			{DayNumber: 1, Date: "2026-09-01", Nodes: []models.Node{}},
		},
	}
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	it := sampleItinerary("trip-1")
	require.NoError(t, s.Create(ctx, it))
	assert.Equal(t, 1, it.Version)
	assert.False(t, it.CreatedAt.IsZero())

	got, err := s.Get(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", got.Destination)
	assert.Equal(t, 1, got.Version)

	assert.ErrorIs(t, s.Create(ctx, sampleItinerary("trip-1")), ErrAlreadyExists)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreGetReturnsIndependentCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, sampleItinerary("trip-1")))

	got, err := s.Get(ctx, "trip-1")
	require.NoError(t, err)
	got.Destination = "Porto"
	got.Days[0].Nodes = append(got.Days[0].Nodes, models.Node{ID: "x"})

	again, err := s.Get(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", again.Destination)
	assert.Empty(t, again.Days[0].Nodes)
}

func TestMemoryStoreUpdateOptimisticConcurrency(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, sampleItinerary("trip-1")))

	doc, err := s.Get(ctx, "trip-1")
	require.NoError(t, err)

	doc.Summary = "updated"
	require.NoError(t, s.Update(ctx, doc, 1))
	assert.Equal(t, 2, doc.Version, "version is advanced in place")

	// A writer still holding version 1 loses.
	stale, _ := s.Get(ctx, "trip-1")
	stale.Summary = "stale write"
	assert.ErrorIs(t, s.Update(ctx, stale, 1), ErrVersionConflict)

	got, err := s.Get(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, "updated", got.Summary)

	assert.ErrorIs(t, s.Update(ctx, sampleItinerary("missing"), 1), ErrNotFound)
}

func TestMemoryStoreRevisions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	it := sampleItinerary("trip-1")
	require.NoError(t, s.Create(ctx, it))
	require.NoError(t, s.SaveRevision(ctx, it))

	it.Summary = "v2"
	require.NoError(t, s.Update(ctx, it, 1))
	require.NoError(t, s.SaveRevision(ctx, it))

	// Saving the same version again is a no-op.
	it.Summary = "mutated after archive"
	require.NoError(t, s.SaveRevision(ctx, it))

	revs, err := s.ListRevisions(ctx, "trip-1")
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, 1, revs[0].Version)
	assert.Equal(t, 2, revs[1].Version)

	v2, err := s.GetRevision(ctx, "trip-1", 2)
	require.NoError(t, err)
	assert.Equal(t, "v2", v2.Summary, "archived snapshot is immutable")

	_, err = s.GetRevision(ctx, "trip-1", 9)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.ListRevisions(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
