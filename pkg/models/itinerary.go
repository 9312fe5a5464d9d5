// Package models defines the core domain entities shared across the service:
// itineraries, days, nodes, and per-agent status tracking.
package models

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for itinerary and day dates.
const DateLayout = "2006-01-02"

// NodeType classifies a single unit of plan within a day.
type NodeType string

// Node type values.
const (
	NodeTypeAttraction    NodeType = "attraction"
	NodeTypeMeal          NodeType = "meal"
	NodeTypeAccommodation NodeType = "accommodation"
	NodeTypeTransport     NodeType = "transport"
	NodeTypeOther         NodeType = "other"
)

// NodeStatus tracks how far through the pipeline a node has progressed.
type NodeStatus string

// Node status values.
const (
	NodeStatusPlaceholder NodeStatus = "placeholder"
	NodeStatusPlanned     NodeStatus = "planned"
	NodeStatusEnhanced    NodeStatus = "enhanced"
)

// AgentState is the lifecycle state of one pipeline agent for an itinerary.
type AgentState string

// Agent state values. Once succeeded or failed, the state is terminal.
const (
	AgentStatePending   AgentState = "pending"
	AgentStateRunning   AgentState = "running"
	AgentStateSucceeded AgentState = "succeeded"
	AgentStateFailed    AgentState = "failed"
	AgentStateSkipped   AgentState = "skipped"
)

// Itinerary is the versioned, ordered plan consisting of Days and Nodes.
// Version strictly increases with each successful durable mutation.
type Itinerary struct {
	ID          string                 `json:"itinerary_id"`
	Version     int                    `json:"version"`
	UserID      string                 `json:"user_id"`
	Summary     string                 `json:"summary,omitempty"`
	Currency    string                 `json:"currency,omitempty"`
	Themes      []string               `json:"themes,omitempty"`
	Origin      string                 `json:"origin,omitempty"`
	Destination string                 `json:"destination"`
	StartDate   string                 `json:"start_date"`
	EndDate     string                 `json:"end_date"`
	Days        []Day                  `json:"days"`
	Settings    Settings               `json:"settings"`
	Agents      map[string]AgentStatus `json:"agents"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Day is a dated segment of the itinerary holding an ordered sequence of Nodes.
type Day struct {
	DayNumber  int         `json:"day_number"`
	Date       string      `json:"date"`
	Location   string      `json:"location,omitempty"`
	Nodes      []Node      `json:"nodes"`
	Pacing     string      `json:"pacing,omitempty"`
	TimeWindow *TimeWindow `json:"time_window,omitempty"`
	Totals     *DayTotals  `json:"totals,omitempty"`
}

// Node is a single unit of plan with optional timing, cost, and location.
type Node struct {
	ID         string     `json:"id"`
	Type       NodeType   `json:"type"`
	Title      string     `json:"title"`
	Location   *GeoPoint  `json:"location,omitempty"`
	Timing     *Timing    `json:"timing,omitempty"`
	Cost       *Cost      `json:"cost,omitempty"`
	Details    string     `json:"details,omitempty"`
	BookingRef string     `json:"booking_ref,omitempty"`
	Locked     bool       `json:"locked"`
	Status     NodeStatus `json:"status"`
	UpdatedBy  string     `json:"updated_by,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// GeoPoint is a validated coordinate pair with an optional address.
type GeoPoint struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// Valid reports whether the coordinates are within range.
func (g *GeoPoint) Valid() bool {
	return g.Lat >= -90 && g.Lat <= 90 && g.Lng >= -180 && g.Lng <= 180
}

// Timing holds the scheduled window for a node.
type Timing struct {
	StartTime   string `json:"start_time,omitempty"` // "15:04"
	EndTime     string `json:"end_time,omitempty"`
	DurationMin int    `json:"duration_min,omitempty"`
}

// Cost is a monetary amount in a specific currency.
type Cost struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// TimeWindow bounds a day's plannable hours.
type TimeWindow struct {
	Start string `json:"start"` // "09:00"
	End   string `json:"end"`   // "22:00"
}

// DayTotals aggregates estimated cost and duration for a day.
type DayTotals struct {
	Cost        *Cost `json:"cost,omitempty"`
	DurationMin int   `json:"duration_min,omitempty"`
}

// Settings captures the request parameters that shape generation.
type Settings struct {
	Party      Party    `json:"party"`
	BudgetTier string   `json:"budget_tier,omitempty"`
	Interests  []string `json:"interests,omitempty"`
	Pace       string   `json:"pace,omitempty"`
}

// Party describes who is travelling.
type Party struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
}

// AgentStatus is the per-agent progress record stored on the itinerary.
type AgentStatus struct {
	State       AgentState `json:"state"`
	Progress    int        `json:"progress"` // 0..100, never decreases
	LastMessage string     `json:"last_message,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// DaySpan returns the inclusive number of days between two DateLayout dates.
// Returns an error if the dates do not parse or end precedes start.
func DaySpan(startDate, endDate string) (int, error) {
	start, err := time.Parse(DateLayout, startDate)
	if err != nil {
		return 0, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	end, err := time.Parse(DateLayout, endDate)
	if err != nil {
		return 0, fmt.Errorf("invalid end date %q: %w", endDate, err)
	}
	if end.Before(start) {
		return 0, fmt.Errorf("end date %s precedes start date %s", endDate, startDate)
	}
	return int(end.Sub(start).Hours()/24) + 1, nil
}

// DayByNumber returns a pointer to the day with the given 1-based number,
// or nil if out of range.
func (it *Itinerary) DayByNumber(n int) *Day {
	for i := range it.Days {
		if it.Days[i].DayNumber == n {
			return &it.Days[i]
		}
	}
	return nil
}

// NodeByID locates a node anywhere in the itinerary. Returns the owning day
// number and the node, or (0, nil) when absent.
func (it *Itinerary) NodeByID(id string) (int, *Node) {
	for d := range it.Days {
		for n := range it.Days[d].Nodes {
			if it.Days[d].Nodes[n].ID == id {
				return it.Days[d].DayNumber, &it.Days[d].Nodes[n]
			}
		}
	}
	return 0, nil
}

// IsPlaceholder reports whether the day has no planned content yet.
func (d *Day) IsPlaceholder() bool {
	for i := range d.Nodes {
		if d.Nodes[i].Status != NodeStatusPlaceholder {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the itinerary for copy-on-write mutation.
func (it *Itinerary) Clone() *Itinerary {
	out := *it
	out.Themes = append([]string(nil), it.Themes...)
	out.Settings.Interests = append([]string(nil), it.Settings.Interests...)
	out.Days = make([]Day, len(it.Days))
	for i := range it.Days {
		out.Days[i] = *it.Days[i].Clone()
	}
	out.Agents = make(map[string]AgentStatus, len(it.Agents))
	for k, v := range it.Agents {
		out.Agents[k] = v
	}
	return &out
}

// Clone returns a deep copy of the day.
func (d *Day) Clone() *Day {
	out := *d
	if d.TimeWindow != nil {
		tw := *d.TimeWindow
		out.TimeWindow = &tw
	}
	if d.Totals != nil {
		t := *d.Totals
		if d.Totals.Cost != nil {
			c := *d.Totals.Cost
			t.Cost = &c
		}
		out.Totals = &t
	}
	out.Nodes = make([]Node, len(d.Nodes))
	for i := range d.Nodes {
		out.Nodes[i] = *d.Nodes[i].Clone()
	}
	return &out
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	out := *n
	if n.Location != nil {
		l := *n.Location
		out.Location = &l
	}
	if n.Timing != nil {
		t := *n.Timing
		out.Timing = &t
	}
	if n.Cost != nil {
		c := *n.Cost
		out.Cost = &c
	}
	return &out
}
