package api

import "github.com/tripforge/tripforge/pkg/models"

// CreateItineraryRequest is the body of POST /api/v1/itineraries.
type CreateItineraryRequest struct {
	UserID      string   `json:"user_id"`
	Origin      string   `json:"origin"`
	Destination string   `json:"destination"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	Currency    string   `json:"currency"`
	Themes      []string `json:"themes"`

	Party      *PartyRequest `json:"party"`
	BudgetTier string        `json:"budget_tier"`
	Interests  []string      `json:"interests"`
	Pace       string        `json:"pace"`
}

// PartyRequest describes who is travelling.
type PartyRequest struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
}

// settings converts request fields to the domain settings struct.
func (r *CreateItineraryRequest) settings() models.Settings {
	s := models.Settings{
		BudgetTier: r.BudgetTier,
		Interests:  r.Interests,
		Pace:       r.Pace,
	}
	if r.Party != nil {
		s.Party = models.Party{Adults: r.Party.Adults, Children: r.Party.Children}
	}
	return s
}
