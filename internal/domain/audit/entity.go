package audit

import "time"

// EventType enum
type EventType string

const (
	EventSessionCreated     EventType = "session_created"
	EventStageTransition    EventType = "stage_transition"
	EventExternalAnalysis   EventType = "external_analysis"
	EventAnonymityViolation EventType = "anonymity_violation"
	EventProviderFallback   EventType = "provider_fallback"
	EventResponseLeak       EventType = "response_leak_detected"
	EventStageFailure       EventType = "stage_failure"
	EventValidationFailure  EventType = "validation_failure"
	EventSessionComplete    EventType = "session_complete"
)

// Event is one append-only compliance record. DetailsHash is the SHA-256 of
// the event details; the details themselves are never stored.
type Event struct {
	ID                int64     `json:"id,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
	SessionID         string    `json:"session_id"`
	EventType         EventType `json:"event_type"`
	DetailsHash       string    `json:"details_hash"`
	AnonymityVerified bool      `json:"anonymity_verified"`
}
