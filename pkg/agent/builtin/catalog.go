package builtin

// Static content catalogs the deterministic agents draw from. Titles are
// generic on purpose; real destination knowledge belongs to external
// providers, and these agents only need to produce structurally complete
// plans.

var attractionTitles = []string{
	"Old Town Walking Tour",
	"City History Museum",
	"Botanical Gardens",
	"Harbor Viewpoint",
	"Modern Art Gallery",
	"Central Market Hall",
	"Riverside Promenade",
	"Castle Hill",
	"Observation Deck",
	"Craft Quarter Stroll",
	"Cathedral and Square",
	"Hidden Courtyards Tour",
}

var mealTitles = map[string][]string{
	"breakfast": {
		"Cafe near the hotel",
		"Local bakery breakfast",
		"Market hall breakfast",
	},
	"lunch": {
		"Bistro lunch",
		"Street food stalls",
		"Garden terrace lunch",
		"Neighborhood trattoria",
	},
	"dinner": {
		"Traditional tavern dinner",
		"Waterfront restaurant",
		"Chef's table dinner",
		"Wine bar with small plates",
	},
}

var transportModes = []string{"walk", "tram", "metro", "taxi"}

var pacingLabels = []string{"relaxed", "balanced", "packed"}

var enrichmentNotes = []string{
	"Book tickets ahead to skip the line.",
	"Best visited early before the crowds arrive.",
	"Cash only at some stalls; carry small bills.",
	"Closes early on Sundays; check opening hours.",
	"Photography is allowed without flash.",
	"Audio guide available in several languages.",
}

// baseCostPerPerson maps budget tier to a per-activity cost anchor.
var baseCostPerPerson = map[string]float64{
	"budget":   12,
	"standard": 25,
	"premium":  60,
}

// mealCostPerPerson maps budget tier to a per-meal cost anchor.
var mealCostPerPerson = map[string]float64{
	"budget":   10,
	"standard": 22,
	"premium":  55,
}
