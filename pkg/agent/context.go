package agent

import (
	"sync"
	"time"

	"github.com/tripforge/tripforge/pkg/events"
	"github.com/tripforge/tripforge/pkg/models"
)

// ExecutionContext carries the identity and dependencies of one generation
// attempt. Created by the orchestrator when a pipeline launches and torn
// down when it terminates; agents receive it by reference and must not
// retain it past their invocation.
type ExecutionContext struct {
	ExecutionID string
	ItineraryID string
	UserID      string
	Deadline    time.Time

	Publisher *events.Publisher
	Statuses  *StatusBook

	mu      sync.RWMutex
	phase   string
	scratch map[string]map[string]any
}

// NewExecutionContext creates a context for one generation attempt.
func NewExecutionContext(executionID, itineraryID, userID string, deadline time.Time, publisher *events.Publisher, statuses *StatusBook) *ExecutionContext {
	return &ExecutionContext{
		ExecutionID: executionID,
		ItineraryID: itineraryID,
		UserID:      userID,
		Deadline:    deadline,
		Publisher:   publisher,
		Statuses:    statuses,
		scratch:     make(map[string]map[string]any),
	}
}

// Scope returns the event scope for this execution.
func (c *ExecutionContext) Scope() events.Scope {
	return events.Scope{ItineraryID: c.ItineraryID, ExecutionID: c.ExecutionID}
}

// SetPhase records the currently running pipeline phase.
func (c *ExecutionContext) SetPhase(phase string) {
	c.mu.Lock()
	c.phase = phase
	c.mu.Unlock()
}

// Phase returns the currently running pipeline phase.
func (c *ExecutionContext) Phase() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// Put stores a per-agent scratchpad value. The scratchpad is partitioned by
// agent name; agents never observe each other's entries.
func (c *ExecutionContext) Put(agentName, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.scratch[agentName]
	if !ok {
		m = make(map[string]any)
		c.scratch[agentName] = m
	}
	m[key] = value
}

// Get reads a per-agent scratchpad value.
func (c *ExecutionContext) Get(agentName, key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.scratch[agentName][key]
	return v, ok
}

// StatusBook is the thread-safe record of per-agent status for one
// generation. The orchestrator snapshots it into the itinerary document
// before each persist, so polling clients see agent progress too.
type StatusBook struct {
	mu       sync.Mutex
	statuses map[string]models.AgentStatus
}

// NewStatusBook initializes every named agent as pending.
func NewStatusBook(agentNames ...string) *StatusBook {
	b := &StatusBook{statuses: make(map[string]models.AgentStatus, len(agentNames))}
	for _, name := range agentNames {
		b.statuses[name] = models.AgentStatus{State: models.AgentStatePending}
	}
	return b
}

// MarkRunning transitions an agent to running, unless it already reached a
// terminal state.
func (b *StatusBook) MarkRunning(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.statuses[name]
	if terminal(s.State) {
		return
	}
	now := time.Now()
	s.State = models.AgentStateRunning
	if s.StartedAt == nil {
		s.StartedAt = &now
	}
	b.statuses[name] = s
}

// MarkSucceeded transitions an agent to succeeded.
func (b *StatusBook) MarkSucceeded(name, message string) {
	b.markTerminal(name, models.AgentStateSucceeded, message, 100)
}

// MarkFailed transitions an agent to failed.
func (b *StatusBook) MarkFailed(name, message string) {
	b.markTerminal(name, models.AgentStateFailed, message, -1)
}

// MarkSkipped marks an agent that never ran as skipped. Agents that already
// reached a terminal state are left untouched.
func (b *StatusBook) MarkSkipped(name string) {
	b.markTerminal(name, models.AgentStateSkipped, "", -1)
}

// MarkAllUnfinishedSkipped marks every non-terminal agent skipped. Called on
// fatal failure or cancellation so the persisted document reflects what
// never ran.
func (b *StatusBook) MarkAllUnfinishedSkipped() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, s := range b.statuses {
		if !terminal(s.State) {
			now := time.Now()
			s.State = models.AgentStateSkipped
			s.FinishedAt = &now
			b.statuses[name] = s
		}
	}
}

// MarkUnitDone records one completed unit of a multi-unit phase without
// terminalizing the agent. An agent stays running until the orchestrator
// settles its terminal state at the phase boundary, so a later unit failure
// can still surface as failed.
func (b *StatusBook) MarkUnitDone(name, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.statuses[name]
	if terminal(s.State) {
		return
	}
	if message != "" {
		s.LastMessage = message
	}
	b.statuses[name] = s
}

// SetProgress raises an agent's progress. Progress never decreases.
func (b *StatusBook) SetProgress(name string, progress int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.statuses[name]
	if progress > s.Progress {
		s.Progress = progress
	}
	if message != "" {
		s.LastMessage = message
	}
	b.statuses[name] = s
}

// Get returns the current status for an agent.
func (b *StatusBook) Get(name string) models.AgentStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statuses[name]
}

// Snapshot returns a copy of all statuses for persisting on the itinerary.
func (b *StatusBook) Snapshot() map[string]models.AgentStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]models.AgentStatus, len(b.statuses))
	for k, v := range b.statuses {
		out[k] = v
	}
	return out
}

func (b *StatusBook) markTerminal(name string, state models.AgentState, message string, progress int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.statuses[name]
	if terminal(s.State) {
		return
	}
	now := time.Now()
	s.State = state
	s.FinishedAt = &now
	if message != "" {
		s.LastMessage = message
	}
	if progress > s.Progress {
		s.Progress = progress
	}
	b.statuses[name] = s
}

// terminal reports whether a state admits no further transitions.
func terminal(s models.AgentState) bool {
	return s == models.AgentStateSucceeded || s == models.AgentStateFailed || s == models.AgentStateSkipped
}
