package pipeline

import (
	"github.com/tripforge/tripforge/pkg/agent"
	"github.com/tripforge/tripforge/pkg/agent/builtin"
	"github.com/tripforge/tripforge/pkg/models"
)

// Phase names as they appear on events.
const (
	PhaseSkeleton   = "skeleton"
	PhaseDayPlan    = "day_plan"
	PhaseActivities = "activities"
	PhaseMeals      = "meals"
	PhaseTransport  = "transport"
	PhaseCost       = "cost"
	PhaseEnrich     = "enrich"
	PhaseFinalize   = "finalize"
)

// Scope is the unit granularity a phase fans out over.
type Scope string

const (
	ScopeItinerary Scope = "itinerary"
	ScopeDay       Scope = "day"
	ScopeNode      Scope = "node"
)

// Phase binds one pipeline stage to the agent that executes it. Fatal phases
// abort the run on failure; others degrade to skipped units. Weight is the
// phase's share of overall progress.
type Phase struct {
	Name   string
	Scope  Scope
	Agent  agent.Agent
	Fatal  bool
	Weight int
}

// DefaultPhases returns the built-in pipeline in execution order. Only the
// skeleton is fatal: without the day structure nothing downstream can run,
// while every later phase improves an already-presentable plan.
func DefaultPhases() []Phase {
	return []Phase{
		{Name: PhaseSkeleton, Scope: ScopeItinerary, Agent: builtin.NewSkeletonPlanner(), Fatal: true, Weight: 10},
		{Name: PhaseDayPlan, Scope: ScopeDay, Agent: builtin.NewDayPlanner(), Weight: 15},
		{Name: PhaseActivities, Scope: ScopeDay, Agent: builtin.NewActivityPlanner(), Weight: 20},
		{Name: PhaseMeals, Scope: ScopeDay, Agent: builtin.NewMealPlanner(), Weight: 15},
		{Name: PhaseTransport, Scope: ScopeDay, Agent: builtin.NewTransportPlanner(), Weight: 10},
		{Name: PhaseCost, Scope: ScopeItinerary, Agent: builtin.NewCostEstimator(), Weight: 10},
		{Name: PhaseEnrich, Scope: ScopeNode, Agent: builtin.NewEnrichmentAgent(), Weight: 15},
	}
}

// agentNames lists the agent behind each phase, for status tracking.
func agentNames(phases []Phase) []string {
	names := make([]string, 0, len(phases))
	seen := make(map[string]bool)
	for _, p := range phases {
		name := p.Agent.Descriptor().Name
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// enrichable reports whether a node is worth sending through enrichment.
// Transport legs carry no enrichable content, and locked or booked nodes
// must not be touched.
func enrichable(n *models.Node) bool {
	if n.Locked || n.BookingRef != "" {
		return false
	}
	return n.Type != models.NodeTypeTransport
}
