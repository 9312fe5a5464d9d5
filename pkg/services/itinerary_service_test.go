package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetReturnsDocumentWithGenerationState(t *testing.T) {
	initSvc, itinSvc, _, orch := newServiceFixture(t)
	ctx := context.Background()

	it, _, err := initSvc.CreateItinerary(ctx, validInput())
	require.NoError(t, err)

	view, err := itinSvc.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, it.ID, view.ID)

	require.Eventually(t, func() bool {
		return !orch.IsGenerating(it.ID)
	}, 15*time.Second, 20*time.Millisecond)

	view, err = itinSvc.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.False(t, view.Generating)
	assert.Greater(t, view.Version, 1, "completed generation advanced the document")

	_, err = itinSvc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRevisionHistoryAfterGeneration(t *testing.T) {
	initSvc, itinSvc, _, orch := newServiceFixture(t)
	ctx := context.Background()

	it, _, err := initSvc.CreateItinerary(ctx, validInput())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return !orch.IsGenerating(it.ID)
	}, 15*time.Second, 20*time.Millisecond)

	revs, err := itinSvc.ListRevisions(ctx, it.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(revs), 2, "initial and final revisions")
	assert.Equal(t, 1, revs[0].Version)

	final, err := itinSvc.GetRevision(ctx, it.ID, revs[len(revs)-1].Version)
	require.NoError(t, err)
	assert.NotEmpty(t, final.Days[0].Nodes)

	_, err = itinSvc.GetRevision(ctx, it.ID, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = itinSvc.ListRevisions(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelRequiresRunningGeneration(t *testing.T) {
	initSvc, itinSvc, _, orch := newServiceFixture(t)
	ctx := context.Background()

	it, _, err := initSvc.CreateItinerary(ctx, validInput())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return !orch.IsGenerating(it.ID)
	}, 15*time.Second, 20*time.Millisecond)

	assert.ErrorIs(t, itinSvc.Cancel(ctx, it.ID), ErrNotGenerating)
	assert.ErrorIs(t, itinSvc.Cancel(ctx, "missing"), ErrNotFound)
}
