package model

import "time"

// RotationEdge links a retired credential to its replacement. The retired
// record is deleted during rotation, so its owner and label are copied here.
type RotationEdge struct {
	ID               int64
	RetiredID        string
	RetiredKeyHash   string
	RetiredKeyPrefix string
	ReplacementID    string
	Owner            string
	Label            string
	Reason           string
	At               time.Time
}

// RotationFilter narrows a rotation ledger listing. Zero fields match all.
type RotationFilter struct {
	ReplacementID string
	RetiredID     string
	Limit         int
}
