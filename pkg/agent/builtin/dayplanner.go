package builtin

import (
	"context"
	"strconv"
	"time"

	"github.com/tripforge/tripforge/pkg/agent"
	"github.com/tripforge/tripforge/pkg/models"
)

// DayPlanner shapes one day: it keeps the skeleton's accommodation node and
// reserves the day's time window slots that later agents fill in. Days are
// independent, so a failed day becomes a skipped unit rather than ending the
// run.
type DayPlanner struct{}

func NewDayPlanner() *DayPlanner { return &DayPlanner{} }

func (a *DayPlanner) Descriptor() agent.Descriptor {
	return agent.Descriptor{
		Name:      AgentDayPlanner,
		Retryable: true,
	}
}

func (a *DayPlanner) Run(ctx context.Context, execCtx *agent.ExecutionContext, input agent.Input) (agent.Output, error) {
	src := input.Itinerary.DayByNumber(input.DayNumber)
	if src == nil {
		return agent.Output{}, agent.E(agent.KindInternal, "The day to plan was not found.")
	}
	day := src.Clone()

	rng := seededRand(input.Itinerary.ID, "day:"+strconv.Itoa(day.DayNumber))

	// Widen the window on packed days so more activities fit.
	if day.Pacing == "packed" {
		day.TimeWindow = &models.TimeWindow{Start: "08:00", End: "23:00"}
	}
	if day.Location == "" {
		day.Location = input.Itinerary.Destination
	}

	// First and last day lose time to arrival and departure.
	span := len(input.Itinerary.Days)
	if day.DayNumber == 1 && span > 1 {
		day.Nodes = append(day.Nodes, models.Node{
			ID:        nodeID(day.DayNumber, "arr", 0),
			Type:      models.NodeTypeTransport,
			Title:     "Arrival and check-in",
			Timing:    &models.Timing{StartTime: "10:00", EndTime: clock(600 + rng.IntN(4)*30)},
			Status:    models.NodeStatusPlanned,
			UpdatedBy: AgentDayPlanner,
			UpdatedAt: time.Now(),
		})
	}
	if day.DayNumber == span && span > 1 {
		day.Nodes = append(day.Nodes, models.Node{
			ID:        nodeID(day.DayNumber, "dep", 0),
			Type:      models.NodeTypeTransport,
			Title:     "Check-out and departure",
			Timing:    &models.Timing{StartTime: "17:00", EndTime: "19:00"},
			Status:    models.NodeStatusPlanned,
			UpdatedBy: AgentDayPlanner,
			UpdatedAt: time.Now(),
		})
	}

	return agent.Output{Day: day, Summary: "Planned day " + strconv.Itoa(day.DayNumber)}, nil
}
