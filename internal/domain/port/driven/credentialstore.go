package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/keyledger/internal/domain/model"
)

// Sentinel errors returned by CredentialStore implementations.
var (
	// ErrCredentialNotFound indicates the referenced credential does not exist.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrCredentialConflict indicates the credential's ID or key hash is already
	// in use, either by a live record or by a deleted one.
	ErrCredentialConflict = errors.New("credential already exists")
)

// CredentialStore defines the driven port for credential persistence.
// Lookups return (nil, nil) when nothing matches.
type CredentialStore interface {
	// Insert persists a new credential. Returns ErrCredentialConflict if the ID
	// or key hash exists, including hashes of deleted credentials.
	Insert(ctx context.Context, cred model.Credential) (model.Credential, error)

	// FindByKeyHash returns the credential with the given hash regardless of
	// whether it is active.
	FindByKeyHash(ctx context.Context, keyHash string) (*model.Credential, error)

	// FindActiveByKeyHash returns the credential only if it is active.
	FindActiveByKeyHash(ctx context.Context, keyHash string) (*model.Credential, error)

	GetByID(ctx context.Context, id string) (*model.Credential, error)

	// MarkUsed sets LastUsedAt. Returns ErrCredentialNotFound for unknown IDs.
	MarkUsed(ctx context.Context, id string, at time.Time) error

	// Deactivate flags the credential inactive without deleting it.
	Deactivate(ctx context.Context, id string) error

	// Delete removes the credential and tombstones its key hash so it can
	// never be reissued. Returns ErrCredentialNotFound for unknown IDs.
	Delete(ctx context.Context, id string) error

	// ListAll returns at most limit credentials, newest first.
	ListAll(ctx context.Context, limit int) ([]model.Credential, error)
}
