// Package builtin provides the deterministic planning agents that ship with
// the service. They generate plausible itinerary content from seeded
// pseudo-randomness so that the same request always yields the same plan,
// which keeps the pipeline reproducible and testable without external
// planning providers.
package builtin

import (
	"hash/fnv"
	"math/rand/v2"
	"strconv"
	"time"
)

// Agent names, also used as keys in the itinerary's agent status map.
const (
	AgentSkeletonPlanner = "skeleton_planner"
	AgentDayPlanner      = "day_planner"
	AgentActivityPlanner = "activity_planner"
	AgentMealPlanner     = "meal_planner"
	AgentTransportAgent  = "transport_planner"
	AgentCostEstimator   = "cost_estimator"
	AgentEnrichment      = "enrichment"
)

// AllAgentNames lists every built-in agent in pipeline order.
func AllAgentNames() []string {
	return []string{
		AgentSkeletonPlanner,
		AgentDayPlanner,
		AgentActivityPlanner,
		AgentMealPlanner,
		AgentTransportAgent,
		AgentCostEstimator,
		AgentEnrichment,
	}
}

// seededRand derives a deterministic generator from the itinerary id and a
// per-unit key, so parallel units produce stable content independently of
// scheduling order.
func seededRand(itineraryID, unitKey string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(itineraryID))
	h.Write([]byte{0})
	h.Write([]byte(unitKey))
	seed := h.Sum64()
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// pick returns a deterministic element of choices.
func pick[T any](rng *rand.Rand, choices []T) T {
	return choices[rng.IntN(len(choices))]
}

// nodeID builds a stable node identifier within a day.
func nodeID(dayNumber int, slot string, ordinal int) string {
	return "d" + strconv.Itoa(dayNumber) + "_" + slot + strconv.Itoa(ordinal)
}

// clock formats minutes-since-midnight as "15:04".
func clock(minutes int) string {
	return time.Date(2000, 1, 1, 0, minutes, 0, 0, time.UTC).Format("15:04")
}
