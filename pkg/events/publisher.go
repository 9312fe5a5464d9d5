package events

import (
	"sync"
	"time"

	"github.com/tripforge/tripforge/pkg/models"
)

// Scope identifies the generation an event belongs to. Carried by the
// execution context and stamped on every envelope.
type Scope struct {
	ItineraryID string
	ExecutionID string
}

// Publisher is the typed facade through which the orchestrator and the agent
// runtime emit events. It normalizes envelopes, applies severity
// classification, enforces the per-execution progress watermark, and hands
// finished envelopes to the bus for sequencing and fan-out.
type Publisher struct {
	bus *Bus

	// Highest progress seen per execution id. A progress report below the
	// watermark is silently raised to it; progress saturates at 100 only via
	// PublishGenerationComplete.
	mu         sync.Mutex
	watermarks map[string]int
}

// NewPublisher creates a publisher bound to a bus.
func NewPublisher(bus *Bus) *Publisher {
	return &Publisher{
		bus:        bus,
		watermarks: make(map[string]int),
	}
}

// Bus returns the underlying bus (used by the connection manager).
func (p *Publisher) Bus() *Bus { return p.bus }

// PublishPhaseStarted announces that a pipeline phase began.
func (p *Publisher) PublishPhaseStarted(scope Scope, phase string, expectedUnits int) int64 {
	return p.emit(scope, EventTypePhaseStarted, "", PhaseStartedPayload{
		Phase:         phase,
		ExpectedUnits: expectedUnits,
	})
}

// PublishPhaseCompleted announces that a pipeline phase finished.
func (p *Publisher) PublishPhaseCompleted(scope Scope, phase string, producedUnits int, duration time.Duration) int64 {
	return p.emit(scope, EventTypePhaseCompleted, "", PhaseCompletedPayload{
		Phase:         phase,
		ProducedUnits: producedUnits,
		DurationMs:    duration.Milliseconds(),
	})
}

// PublishDayCompleted announces a newly populated day at the version that
// persisted it.
func (p *Publisher) PublishDayCompleted(scope Scope, day *models.Day, version int) int64 {
	return p.emit(scope, EventTypeDayCompleted, "", DayCompletedPayload{
		DayNumber: day.DayNumber,
		Day:       day,
		Version:   version,
	})
}

// PublishNodeEnhanced announces a single enhanced node.
func (p *Publisher) PublishNodeEnhanced(scope Scope, dayNumber int, node *models.Node, version int) int64 {
	return p.emit(scope, EventTypeNodeEnhanced, "", NodeEnhancedPayload{
		DayNumber: dayNumber,
		NodeID:    node.ID,
		Node:      node,
		Version:   version,
	})
}

// PublishProgress reports overall generation progress. The reported
// percentage is clamped to the execution's monotone watermark and capped at
// 99; only generation_complete carries the stream to 100.
func (p *Publisher) PublishProgress(scope Scope, overallPct int, phase, currentActivity string) int64 {
	if overallPct > 99 {
		overallPct = 99
	}
	p.mu.Lock()
	if prev := p.watermarks[scope.ExecutionID]; overallPct < prev {
		overallPct = prev
	} else {
		p.watermarks[scope.ExecutionID] = overallPct
	}
	p.mu.Unlock()

	return p.emit(scope, EventTypeProgress, "", ProgressPayload{
		OverallPct:      overallPct,
		Phase:           phase,
		CurrentActivity: currentActivity,
	})
}

// PublishGenerationComplete emits the terminal success event (progress 100)
// and releases the execution's watermark.
func (p *Publisher) PublishGenerationComplete(scope Scope, finalVersion int) int64 {
	p.emit(scope, EventTypeProgress, "", ProgressPayload{OverallPct: 100, Phase: "finalize"})
	id := p.emit(scope, EventTypeGenerationComplete, "", GenerationCompletePayload{
		FinalVersion: finalVersion,
	})
	p.releaseExecution(scope.ExecutionID)
	return id
}

// PublishError emits a run-level error event. An empty severity defaults to
// fatal. PublishError is reserved for failures that end the run; unit-level
// failures go through PublishPartialFailure.
func (p *Publisher) PublishError(scope Scope, kind, userMessage string, severity Severity, retryable bool, retryAfter time.Duration) int64 {
	if severity == "" {
		severity = SeverityFatal
	}
	id := p.emit(scope, EventTypeError, severity, FailurePayload{
		Kind:         kind,
		UserMessage:  userMessage,
		Retryable:    retryable,
		RetryAfterMs: retryAfter.Milliseconds(),
	})
	if severity == SeverityFatal {
		p.releaseExecution(scope.ExecutionID)
	}
	return id
}

// PublishPartialFailure emits a recoverable per-unit failure that does not
// abort the pipeline. Scope strings name the unit ("day:3", "node:d2_n3").
func (p *Publisher) PublishPartialFailure(scope Scope, unitScope, kind, userMessage string) int64 {
	return p.emit(scope, EventTypePartialFailure, SeverityError, FailurePayload{
		Kind:        kind,
		UserMessage: userMessage,
		Retryable:   false,
		Scope:       unitScope,
	})
}

// emit stamps the envelope and hands it to the bus for id assignment and
// delivery.
func (p *Publisher) emit(scope Scope, eventType string, severity Severity, payload any) int64 {
	return p.bus.Broadcast(scope.ItineraryID, Envelope{
		ExecutionID: scope.ExecutionID,
		Type:        eventType,
		Timestamp:   time.Now().Format(time.RFC3339Nano),
		Severity:    severity,
		Payload:     payload,
	})
}

func (p *Publisher) releaseExecution(executionID string) {
	p.mu.Lock()
	delete(p.watermarks, executionID)
	p.mu.Unlock()
}
