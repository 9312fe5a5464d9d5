package events

import "github.com/tripforge/tripforge/pkg/models"

// ConnectedPayload is the payload for the connected handshake message.
// LastEventID is the current watermark so the client knows where the
// sequenced stream stands at subscribe time.
type ConnectedPayload struct {
	SubscriptionID string `json:"subscription_id"`
	LastEventID    int64  `json:"last_event_id"`
}

// RecoveryIncompletePayload is sent when a reconnecting client's
// last_event_id predates the history tail. OldestRetained is the smallest
// event id still resident; the client should refetch the full itinerary.
type RecoveryIncompletePayload struct {
	RequestedAfter int64 `json:"requested_after"`
	OldestRetained int64 `json:"oldest_retained"`
}

// PhaseStartedPayload is the payload for phase_started events.
type PhaseStartedPayload struct {
	Phase         string `json:"phase"`
	ExpectedUnits int    `json:"expected_units"`
}

// PhaseCompletedPayload is the payload for phase_completed events.
type PhaseCompletedPayload struct {
	Phase         string `json:"phase"`
	ProducedUnits int    `json:"produced_units"`
	DurationMs    int64  `json:"duration_ms"`
}

// ProgressPayload is the payload for progress events. OverallPct is monotone
// non-decreasing for a given execution (enforced by the publisher watermark).
type ProgressPayload struct {
	OverallPct      int    `json:"overall_pct"`
	Phase           string `json:"phase"`
	CurrentActivity string `json:"current_activity,omitempty"`
}

// DayCompletedPayload carries the newly populated day at the version that
// persisted it.
type DayCompletedPayload struct {
	DayNumber int         `json:"day_number"`
	Day       *models.Day `json:"day"`
	Version   int         `json:"version"`
}

// NodeEnhancedPayload carries a single enhanced node.
type NodeEnhancedPayload struct {
	DayNumber int          `json:"day_number"`
	NodeID    string       `json:"node_id"`
	Node      *models.Node `json:"node"`
	Version   int          `json:"version"`
}

// FailurePayload is the payload for both error and partial_failure events.
// Scope is set for partial failures ("day:3", "node:d2_n3"); empty for
// run-level errors.
type FailurePayload struct {
	Kind         string `json:"kind"`
	UserMessage  string `json:"user_message"`
	Retryable    bool   `json:"retryable"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// GenerationCompletePayload is the payload for generation_complete events.
type GenerationCompletePayload struct {
	FinalVersion int `json:"final_version"`
}
