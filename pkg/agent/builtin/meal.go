package builtin

import (
	"context"
	"strconv"
	"time"

	"github.com/tripforge/tripforge/pkg/agent"
	"github.com/tripforge/tripforge/pkg/models"
)

// MealPlanner adds breakfast, lunch, and dinner to a day.
type MealPlanner struct{}

func NewMealPlanner() *MealPlanner { return &MealPlanner{} }

func (a *MealPlanner) Descriptor() agent.Descriptor {
	return agent.Descriptor{
		Name:      AgentMealPlanner,
		Retryable: true,
	}
}

var mealSlots = []struct {
	name  string
	start int // minutes since midnight
	dur   int
}{
	{"breakfast", 8 * 60, 45},
	{"lunch", 12*60 + 30, 60},
	{"dinner", 19 * 60, 90},
}

func (a *MealPlanner) Run(ctx context.Context, execCtx *agent.ExecutionContext, input agent.Input) (agent.Output, error) {
	src := input.Itinerary.DayByNumber(input.DayNumber)
	if src == nil {
		return agent.Output{}, agent.E(agent.KindInternal, "The day to plan was not found.")
	}
	day := src.Clone()

	rng := seededRand(input.Itinerary.ID, "meals:"+strconv.Itoa(day.DayNumber))

	for i, slot := range mealSlots {
		day.Nodes = append(day.Nodes, models.Node{
			ID:    nodeID(day.DayNumber, "meal", i),
			Type:  models.NodeTypeMeal,
			Title: pick(rng, mealTitles[slot.name]),
			Timing: &models.Timing{
				StartTime:   clock(slot.start),
				EndTime:     clock(slot.start + slot.dur),
				DurationMin: slot.dur,
			},
			Details:   slot.name,
			Status:    models.NodeStatusPlanned,
			UpdatedBy: AgentMealPlanner,
			UpdatedAt: time.Now(),
		})
	}

	return agent.Output{Day: day, Summary: "Meals for day " + strconv.Itoa(day.DayNumber)}, nil
}
