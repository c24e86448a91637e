package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ericfisherdev/keyledger/internal/domain/model"
	"github.com/ericfisherdev/keyledger/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AuditLog = (*AuditLog)(nil)

// AuditLog is an append-only in-memory audit trail.
type AuditLog struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

// NewAuditLog creates an empty AuditLog.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// Append stores entry, stamping it with the current time when At is zero.
func (l *AuditLog) Append(_ context.Context, entry model.AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	entry.At = entry.At.UTC()
	l.entries = append(l.entries, entry)
	return nil
}

// List returns matching entries, newest first.
func (l *AuditLog) List(_ context.Context, filter model.AuditFilter) ([]model.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := []model.AuditEntry{}
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if filter.SubjectID != "" && (e.SubjectID == nil || *e.SubjectID != filter.SubjectID) {
			continue
		}
		if filter.EventType != "" && e.EventType != filter.EventType {
			continue
		}
		if filter.Outcome != "" && e.Outcome != filter.Outcome {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of entries appended so far.
func (l *AuditLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
