package builtin

import (
	"context"
	"math"
	"strconv"

	"github.com/tripforge/tripforge/pkg/agent"
	"github.com/tripforge/tripforge/pkg/models"
)

// CostEstimator prices every costable node and rolls per-day totals up onto
// the days. It reads the whole itinerary at once, after the day-scoped
// phases, so its estimates see the complete plan.
type CostEstimator struct{}

func NewCostEstimator() *CostEstimator { return &CostEstimator{} }

func (a *CostEstimator) Descriptor() agent.Descriptor {
	return agent.Descriptor{
		Name:      AgentCostEstimator,
		Retryable: true,
	}
}

func (a *CostEstimator) Run(ctx context.Context, execCtx *agent.ExecutionContext, input agent.Input) (agent.Output, error) {
	it := input.Itinerary.Clone()

	currency := it.Currency
	if currency == "" {
		currency = "EUR"
		it.Currency = currency
	}
	tier := it.Settings.BudgetTier
	if _, ok := baseCostPerPerson[tier]; !ok {
		tier = "standard"
	}
	party := it.Settings.Party.Adults + it.Settings.Party.Children
	if party < 1 {
		party = 1
	}

	rng := seededRand(it.ID, "cost")

	for d := range it.Days {
		day := &it.Days[d]
		var total float64
		var totalMin int
		for n := range day.Nodes {
			node := &day.Nodes[n]
			if node.Locked || node.BookingRef != "" {
				if node.Cost != nil {
					total += node.Cost.Amount
				}
				continue
			}
			var perPerson float64
			switch node.Type {
			case models.NodeTypeAttraction:
				perPerson = baseCostPerPerson[tier]
			case models.NodeTypeMeal:
				perPerson = mealCostPerPerson[tier]
			case models.NodeTypeTransport:
				perPerson = 3
			default:
				continue
			}
			// Spread estimates a little so identical node types do not all
			// price the same.
			amount := round2(perPerson * float64(party) * (0.85 + 0.3*rng.Float64()))
			node.Cost = &models.Cost{Amount: amount, Currency: currency}
			node.UpdatedBy = AgentCostEstimator
			total += amount
			if node.Timing != nil {
				totalMin += node.Timing.DurationMin
			}
		}
		day.Totals = &models.DayTotals{
			Cost:        &models.Cost{Amount: round2(total), Currency: currency},
			DurationMin: totalMin,
		}
	}

	return agent.Output{Itinerary: it, Summary: "Estimated costs for " + strconv.Itoa(len(it.Days)) + " days"}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
