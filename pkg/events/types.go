// Package events provides real-time event delivery for itinerary generation:
// an in-memory bus with per-itinerary sequencing and bounded history, a typed
// publisher used by the pipeline and agents, and the WebSocket connection
// manager that fans events out to subscribed clients.
//
// ════════════════════════════════════════════════════════════════
// Event stream contract
// ════════════════════════════════════════════════════════════════
//
// Every sequenced event carries an event_id that is assigned by the bus and
// strictly increases per itinerary. A subscriber that reconnects with
// last_event_id = L receives every retained event in (L, head] in order
// before any live event. If L has already been evicted from the history
// tail, the subscriber receives a single recovery_incomplete message and is
// expected to resync via GET /api/v1/itineraries/:id.
//
// Handshake messages (connected, recovery_incomplete) are NOT part of the
// sequenced stream and carry no event_id.
// ════════════════════════════════════════════════════════════════
package events

import "fmt"

// Sequenced event types.
const (
	EventTypePhaseStarted       = "phase_started"
	EventTypePhaseCompleted     = "phase_completed"
	EventTypeProgress           = "progress"
	EventTypeDayCompleted       = "day_completed"
	EventTypeNodeEnhanced       = "node_enhanced"
	EventTypePartialFailure     = "partial_failure"
	EventTypeError              = "error"
	EventTypeGenerationComplete = "generation_complete"
)

// Handshake message types (no event_id, not retained in the tail).
const (
	EventTypeConnected          = "connected"
	EventTypeRecoveryIncomplete = "recovery_incomplete"
)

// Severity classifies error-bearing events.
type Severity string

// Severity values, ordered by impact.
const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityFatal   Severity = "fatal"
)

// ItineraryChannel returns the subscription channel name for an itinerary.
// Format: "itinerary:{itinerary_id}"
func ItineraryChannel(itineraryID string) string {
	return "itinerary:" + itineraryID
}

// Envelope is the on-wire event structure. EventID is zero (and omitted) for
// handshake messages; for sequenced events it is assigned by the bus.
type Envelope struct {
	EventID     int64    `json:"event_id,omitempty"`
	ItineraryID string   `json:"itinerary_id"`
	ExecutionID string   `json:"execution_id,omitempty"`
	Type        string   `json:"type"`
	Timestamp   string   `json:"timestamp"` // RFC3339Nano
	Severity    Severity `json:"severity,omitempty"`
	Payload     any      `json:"payload,omitempty"`
}

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action      string `json:"action"`                  // "subscribe", "unsubscribe", "catchup", "ping"
	ItineraryID string `json:"itinerary_id,omitempty"`  // target itinerary
	LastEventID *int64 `json:"last_event_id,omitempty"` // resume position for subscribe/catchup
}

// validateClientMessage rejects malformed client messages before dispatch.
func validateClientMessage(msg *ClientMessage) error {
	switch msg.Action {
	case "subscribe", "unsubscribe", "catchup":
		if msg.ItineraryID == "" {
			return fmt.Errorf("itinerary_id is required for %s", msg.Action)
		}
		return nil
	case "ping":
		return nil
	default:
		return fmt.Errorf("unknown action %q", msg.Action)
	}
}
