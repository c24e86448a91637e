package application

import (
	"context"

	"github.com/ericfisherdev/keyledger/internal/domain/model"
	"github.com/ericfisherdev/keyledger/internal/domain/port/driven"
)

// DefaultInspectLimit caps audit and rotation listings when the caller gives no limit.
const DefaultInspectLimit = 100

// maxInspectLimit is the largest listing an inspection call may request.
const maxInspectLimit = 1000

// AuditService exposes read-only views of the audit log and rotation ledger.
// Inspection calls are not themselves audited.
type AuditService struct {
	audit     driven.AuditLog
	rotations driven.RotationLedger
}

// NewAuditService creates a new AuditService with the required dependencies.
func NewAuditService(audit driven.AuditLog, rotations driven.RotationLedger) *AuditService {
	return &AuditService{
		audit:     audit,
		rotations: rotations,
	}
}

// ListEntries returns audit entries matching filter, newest first.
func (s *AuditService) ListEntries(ctx context.Context, filter model.AuditFilter) ([]model.AuditEntry, error) {
	if filter.EventType != "" && !filter.EventType.Valid() {
		return nil, model.ErrValidation("unknown event type %q", filter.EventType)
	}
	if filter.Outcome != "" && !filter.Outcome.Valid() {
		return nil, model.ErrValidation("unknown outcome %q", filter.Outcome)
	}
	limit, err := inspectLimit(filter.Limit)
	if err != nil {
		return nil, err
	}
	filter.Limit = limit

	entries, err := s.audit.List(ctx, filter)
	if err != nil {
		return nil, model.ErrStorage("list audit entries", err)
	}
	return entries, nil
}

// ListRotations returns rotation edges matching filter, newest first.
func (s *AuditService) ListRotations(ctx context.Context, filter model.RotationFilter) ([]model.RotationEdge, error) {
	limit, err := inspectLimit(filter.Limit)
	if err != nil {
		return nil, err
	}
	filter.Limit = limit

	edges, err := s.rotations.List(ctx, filter)
	if err != nil {
		return nil, model.ErrStorage("list rotations", err)
	}
	return edges, nil
}

func inspectLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, model.ErrValidation("limit must not be negative")
	case limit == 0:
		return DefaultInspectLimit, nil
	case limit > maxInspectLimit:
		return maxInspectLimit, nil
	}
	return limit, nil
}
