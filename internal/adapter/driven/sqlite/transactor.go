package sqlite

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/keyledger/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Transactor = (*Transactor)(nil)

// Transactor runs lifecycle writes inside a single writer transaction.
type Transactor struct {
	db *DB
}

// NewTransactor creates a new Transactor backed by the given DB.
func NewTransactor(db *DB) *Transactor {
	return &Transactor{db: db}
}

type txStores struct {
	creds *CredentialRepo
	rots  *RotationRepo
}

func (s txStores) Credentials() driven.CredentialStore { return s.creds }
func (s txStores) Rotations() driven.RotationLedger    { return s.rots }

// WithinTx begins a transaction on the writer connection, runs fn with
// repositories bound to it, and commits if fn succeeds.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, tx driven.TxStores) error) error {
	tx, err := t.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	stores := txStores{
		creds: &CredentialRepo{db: t.db, tx: tx},
		rots:  &RotationRepo{db: t.db, tx: tx},
	}

	if err := fn(ctx, stores); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
