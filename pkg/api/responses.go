package api

import (
	"github.com/tripforge/tripforge/pkg/models"
	"github.com/tripforge/tripforge/pkg/store"
)

// CreateItineraryResponse is returned from POST /api/v1/itineraries. The
// initial structure lets clients render placeholder days before the first
// event arrives.
type CreateItineraryResponse struct {
	ItineraryID            string            `json:"itinerary_id"`
	ExecutionID            string            `json:"execution_id"`
	Version                int               `json:"version"`
	Status                 string            `json:"status"`
	Channel                string            `json:"channel"`
	EventsURL              string            `json:"events_url"`
	EstimatedCompletionSec int               `json:"estimated_completion_sec"`
	InitialStructure       *models.Itinerary `json:"initial_structure"`
}

// RevisionsResponse is returned from GET /api/v1/itineraries/:id/revisions.
type RevisionsResponse struct {
	ItineraryID string               `json:"itinerary_id"`
	Revisions   []store.RevisionMeta `json:"revisions"`
}

// CancelResponse acknowledges a cancellation request.
type CancelResponse struct {
	ItineraryID string `json:"itinerary_id"`
	Status      string `json:"status"`
}
