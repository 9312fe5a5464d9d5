package builtin

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/tripforge/tripforge/pkg/agent"
	"github.com/tripforge/tripforge/pkg/models"
)

// SkeletonPlanner lays out the day structure of the itinerary: one dated day
// per calendar day with a placeholder accommodation node and a pacing hint.
// It is the only agent every later phase depends on, so its failure is fatal.
type SkeletonPlanner struct{}

func NewSkeletonPlanner() *SkeletonPlanner { return &SkeletonPlanner{} }

func (a *SkeletonPlanner) Descriptor() agent.Descriptor {
	return agent.Descriptor{
		Name:           AgentSkeletonPlanner,
		Retryable:      true,
		FatalOnFailure: true,
	}
}

func (a *SkeletonPlanner) Run(ctx context.Context, execCtx *agent.ExecutionContext, input agent.Input) (agent.Output, error) {
	it := input.Itinerary.Clone()

	span, err := models.DaySpan(it.StartDate, it.EndDate)
	if err != nil {
		return agent.Output{}, agent.Wrap(agent.KindInvalidInput, "The travel dates could not be interpreted.", err)
	}

	rng := seededRand(it.ID, "skeleton")
	start, _ := time.Parse(models.DateLayout, it.StartDate)

	it.Days = make([]models.Day, span)
	for i := 0; i < span; i++ {
		dayNum := i + 1
		it.Days[i] = models.Day{
			DayNumber: dayNum,
			Date:      start.AddDate(0, 0, i).Format(models.DateLayout),
			Location:  it.Destination,
			Pacing:    pacing(rng, it.Settings.Pace),
			TimeWindow: &models.TimeWindow{
				Start: "09:00",
				End:   "22:00",
			},
			Nodes: []models.Node{{
				ID:        nodeID(dayNum, "stay", 0),
				Type:      models.NodeTypeAccommodation,
				Title:     "Accommodation in " + it.Destination,
				Status:    models.NodeStatusPlaceholder,
				UpdatedBy: AgentSkeletonPlanner,
				UpdatedAt: time.Now(),
			}},
		}
	}

	if it.Summary == "" {
		it.Summary = summaryFor(it, span)
	}

	return agent.Output{Itinerary: it, Summary: "Planned " + it.Destination + " skeleton"}, nil
}

// pacing honors an explicit request pace and otherwise picks one
// deterministically.
func pacing(rng *rand.Rand, pace string) string {
	for _, p := range pacingLabels {
		if pace == p {
			return p
		}
	}
	return pick(rng, pacingLabels)
}

func summaryFor(it *models.Itinerary, span int) string {
	s := strconv.Itoa(span) + "-day trip to " + it.Destination
	if it.Origin != "" {
		s += " from " + it.Origin
	}
	return s
}
