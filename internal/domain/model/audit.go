package model

import "time"

// AuditEntry is one observable lifecycle or usage event. SubjectID is nil when
// the call failed before a credential could be resolved.
type AuditEntry struct {
	ID        string
	SubjectID *string
	EventType EventType
	Source    string
	RequestID string
	Endpoint  string
	Outcome   Outcome
	Detail    string
	At        time.Time
}

// AuditFilter narrows an audit log listing. Zero fields match all.
type AuditFilter struct {
	SubjectID string
	EventType EventType
	Outcome   Outcome
	Limit     int
}
