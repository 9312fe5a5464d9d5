// Package agent provides the agent contract and the runtime that executes
// agent invocations with retry, timeout, and cancellation semantics.
// Agents are opaque behind the Agent interface: the pipeline knows their
// declared behavior (retryability, timeouts, fatality) but nothing about how
// they produce their output.
package agent

import (
	"context"
	"strconv"
	"time"

	"github.com/tripforge/tripforge/pkg/models"
)

// Default runtime policy applied when a descriptor leaves fields zero.
const (
	DefaultMaxAttempts       = 3
	DefaultBaseBackoff       = 500 * time.Millisecond
	DefaultPerAttemptTimeout = 60 * time.Second
	MaxBackoff               = 30 * time.Second
)

// Descriptor declares an agent's name and runtime behavior. The runtime
// reads it once per invocation; agents must return a stable value.
type Descriptor struct {
	Name              string
	Retryable         bool
	MaxAttempts       int
	BaseBackoff       time.Duration
	PerAttemptTimeout time.Duration
	FatalOnFailure    bool
}

// withDefaults fills zero fields with runtime defaults.
func (d Descriptor) withDefaults() Descriptor {
	if d.MaxAttempts < 1 {
		d.MaxAttempts = DefaultMaxAttempts
	}
	if !d.Retryable {
		d.MaxAttempts = 1
	}
	if d.BaseBackoff <= 0 {
		d.BaseBackoff = DefaultBaseBackoff
	}
	if d.PerAttemptTimeout <= 0 {
		d.PerAttemptTimeout = DefaultPerAttemptTimeout
	}
	return d
}

// Input is the unit of work handed to an agent. Itinerary is a read-only
// snapshot; day- and node-scoped agents additionally receive their unit.
// Agents must not mutate the input; they return new values in Output.
type Input struct {
	Itinerary *models.Itinerary
	DayNumber int          // 0 for itinerary-scoped agents
	Node      *models.Node // nil except for node-scoped agents
}

// Output is an agent's result. Exactly one of the fields below is set,
// matching the agent's scope; Skipped marks the sentinel result the runtime
// returns for a non-fatal failure.
type Output struct {
	Itinerary *models.Itinerary // itinerary-scoped result (skeleton, cost)
	Day       *models.Day       // day-scoped result
	Node      *models.Node      // node-scoped result
	Summary   string            // short human-readable note for status tracking
	Skipped   bool
}

// Agent is the single capability every pipeline agent implements. Agents
// must be re-entrant and stateless across invocations; per-invocation state
// belongs on the execution context scratchpad.
type Agent interface {
	Descriptor() Descriptor
	Run(ctx context.Context, execCtx *ExecutionContext, input Input) (Output, error)
}

// unitScope names the unit an input targets, for partial_failure events.
func unitScope(input Input) string {
	if input.Node != nil {
		return "node:" + input.Node.ID
	}
	if input.DayNumber > 0 {
		return "day:" + strconv.Itoa(input.DayNumber)
	}
	return "itinerary"
}
