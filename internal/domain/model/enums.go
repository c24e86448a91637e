package model

// EventType identifies the kind of lifecycle or usage event recorded in the audit log.
type EventType string

const (
	EventCreated     EventType = "created"
	EventValidated   EventType = "validated"
	EventUsed        EventType = "used"
	EventRegenerated EventType = "regenerated"
	EventDeleted     EventType = "deleted"
	EventRejected    EventType = "rejected" // Malformed input refused before any lookup.
	EventListed      EventType = "listed"
)

// Valid reports whether e is a known event type.
func (e EventType) Valid() bool {
	switch e {
	case EventCreated, EventValidated, EventUsed, EventRegenerated, EventDeleted, EventRejected, EventListed:
		return true
	}
	return false
}

// Outcome is the result recorded for an audited call.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	return o == OutcomeSuccess || o == OutcomeFailure
}
