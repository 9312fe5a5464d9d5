package builtin

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/tripforge/tripforge/pkg/agent"
	"github.com/tripforge/tripforge/pkg/models"
)

// TransportPlanner inserts transfers between the day's timed stops. It only
// connects adjacent activities and meals; arrival and departure transport is
// the day planner's job.
type TransportPlanner struct{}

func NewTransportPlanner() *TransportPlanner { return &TransportPlanner{} }

func (a *TransportPlanner) Descriptor() agent.Descriptor {
	return agent.Descriptor{
		Name:      AgentTransportAgent,
		Retryable: true,
	}
}

func (a *TransportPlanner) Run(ctx context.Context, execCtx *agent.ExecutionContext, input agent.Input) (agent.Output, error) {
	src := input.Itinerary.DayByNumber(input.DayNumber)
	if src == nil {
		return agent.Output{}, agent.E(agent.KindInternal, "The day to plan was not found.")
	}
	day := src.Clone()

	rng := seededRand(input.Itinerary.ID, "transport:"+strconv.Itoa(day.DayNumber))

	// Order timed, non-transport stops by start time and bridge the gaps.
	type stop struct {
		idx   int
		start string
	}
	var stops []stop
	for i := range day.Nodes {
		n := &day.Nodes[i]
		if n.Type == models.NodeTypeTransport || n.Type == models.NodeTypeAccommodation {
			continue
		}
		if n.Timing == nil || n.Timing.StartTime == "" {
			continue
		}
		stops = append(stops, stop{idx: i, start: n.Timing.StartTime})
	}
	sort.Slice(stops, func(i, j int) bool { return stops[i].start < stops[j].start })

	added := 0
	for i := 0; i+1 < len(stops); i++ {
		from := day.Nodes[stops[i].idx]
		to := day.Nodes[stops[i+1].idx]
		if from.Timing.EndTime == "" || from.Timing.EndTime >= to.Timing.StartTime {
			continue
		}
		mode := pick(rng, transportModes)
		day.Nodes = append(day.Nodes, models.Node{
			ID:    nodeID(day.DayNumber, "tr", added),
			Type:  models.NodeTypeTransport,
			Title: "Transfer by " + mode,
			Timing: &models.Timing{
				StartTime: from.Timing.EndTime,
				EndTime:   to.Timing.StartTime,
			},
			Details:   from.Title + " to " + to.Title,
			Status:    models.NodeStatusPlanned,
			UpdatedBy: AgentTransportAgent,
			UpdatedAt: time.Now(),
		})
		added++
	}

	return agent.Output{Day: day, Summary: strconv.Itoa(added) + " transfers for day " + strconv.Itoa(day.DayNumber)}, nil
}
