package driven

import (
	"context"

	"github.com/ericfisherdev/keyledger/internal/domain/model"
)

// AuditLog defines the driven port for the append-only audit trail.
type AuditLog interface {
	Append(ctx context.Context, entry model.AuditEntry) error
	List(ctx context.Context, filter model.AuditFilter) ([]model.AuditEntry, error)
}
