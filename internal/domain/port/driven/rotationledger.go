package driven

import (
	"context"

	"github.com/ericfisherdev/keyledger/internal/domain/model"
)

// RotationLedger defines the driven port for the append-only rotation history.
type RotationLedger interface {
	Record(ctx context.Context, edge model.RotationEdge) error
	List(ctx context.Context, filter model.RotationFilter) ([]model.RotationEdge, error)
}
