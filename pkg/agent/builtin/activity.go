package builtin

import (
	"context"
	"strconv"
	"time"

	"github.com/tripforge/tripforge/pkg/agent"
	"github.com/tripforge/tripforge/pkg/models"
)

// ActivityPlanner fills a day with attractions drawn from the catalog. The
// number of activities follows the day's pacing; interests from the request
// settings bias nothing yet beyond the deterministic seed, which keeps
// output stable per request.
type ActivityPlanner struct{}

func NewActivityPlanner() *ActivityPlanner { return &ActivityPlanner{} }

func (a *ActivityPlanner) Descriptor() agent.Descriptor {
	return agent.Descriptor{
		Name:      AgentActivityPlanner,
		Retryable: true,
	}
}

func (a *ActivityPlanner) Run(ctx context.Context, execCtx *agent.ExecutionContext, input agent.Input) (agent.Output, error) {
	src := input.Itinerary.DayByNumber(input.DayNumber)
	if src == nil {
		return agent.Output{}, agent.E(agent.KindInternal, "The day to plan was not found.")
	}
	day := src.Clone()

	rng := seededRand(input.Itinerary.ID, "activities:"+strconv.Itoa(day.DayNumber))

	count := 2
	switch day.Pacing {
	case "relaxed":
		count = 1 + rng.IntN(2)
	case "packed":
		count = 3 + rng.IntN(2)
	}

	// Activities occupy morning and afternoon slots between meals.
	startMin := 9*60 + 30
	used := make(map[string]bool)
	for i := 0; i < count; i++ {
		title := pick(rng, attractionTitles)
		for used[title] {
			title = pick(rng, attractionTitles)
		}
		used[title] = true

		duration := 60 + rng.IntN(4)*30
		day.Nodes = append(day.Nodes, models.Node{
			ID:    nodeID(day.DayNumber, "act", i),
			Type:  models.NodeTypeAttraction,
			Title: title,
			Timing: &models.Timing{
				StartTime:   clock(startMin),
				EndTime:     clock(startMin + duration),
				DurationMin: duration,
			},
			Status:    models.NodeStatusPlanned,
			UpdatedBy: AgentActivityPlanner,
			UpdatedAt: time.Now(),
		})
		startMin += duration + 45
		if startMin >= 12*60 && startMin < 14*60 {
			startMin = 14 * 60 // leave the lunch window open
		}
	}

	return agent.Output{Day: day, Summary: strconv.Itoa(count) + " activities for day " + strconv.Itoa(day.DayNumber)}, nil
}
