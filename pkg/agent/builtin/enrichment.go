package builtin

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/tripforge/tripforge/pkg/agent"
	"github.com/tripforge/tripforge/pkg/models"
)

// EnrichmentAgent decorates a single node with a location fix and a visitor
// note. It runs node by node in the final enrichment phase; any single node
// failing is a skip, never a run failure.
type EnrichmentAgent struct{}

func NewEnrichmentAgent() *EnrichmentAgent { return &EnrichmentAgent{} }

func (a *EnrichmentAgent) Descriptor() agent.Descriptor {
	return agent.Descriptor{
		Name:      AgentEnrichment,
		Retryable: true,
	}
}

func (a *EnrichmentAgent) Run(ctx context.Context, execCtx *agent.ExecutionContext, input agent.Input) (agent.Output, error) {
	if input.Node == nil {
		return agent.Output{}, agent.E(agent.KindInternal, "The node to enrich was not found.")
	}
	node := input.Node.Clone()

	rng := seededRand(input.Itinerary.ID, "enrich:"+node.ID)

	if node.Location == nil {
		node.Location = syntheticLocation(rng, input.Itinerary.Destination)
	}
	if node.Details == "" || node.Type == models.NodeTypeAttraction {
		note := pick(rng, enrichmentNotes)
		if node.Details != "" {
			node.Details += " " + note
		} else {
			node.Details = note
		}
	}
	node.Status = models.NodeStatusEnhanced
	node.UpdatedBy = AgentEnrichment
	node.UpdatedAt = time.Now()

	return agent.Output{Node: node, Summary: "Enriched " + node.Title}, nil
}

// syntheticLocation fabricates a coordinate near a destination-derived
// anchor. The anchor is stable per destination string so nodes of one trip
// cluster together.
func syntheticLocation(rng *rand.Rand, destination string) *models.GeoPoint {
	anchor := seededRand(destination, "anchor")
	lat := -60 + 120*anchor.Float64()
	lng := -180 + 360*anchor.Float64()
	return &models.GeoPoint{
		Lat:     clampLat(lat + (rng.Float64()-0.5)*0.05),
		Lng:     wrapLng(lng + (rng.Float64()-0.5)*0.05),
		Address: destination,
	}
}

// clampLat pins a jittered latitude to the valid range.
func clampLat(lat float64) float64 {
	switch {
	case lat > 90:
		return 90
	case lat < -90:
		return -90
	}
	return lat
}

// wrapLng wraps a jittered longitude across the antimeridian.
func wrapLng(lng float64) float64 {
	switch {
	case lng > 180:
		return lng - 360
	case lng < -180:
		return lng + 360
	}
	return lng
}
