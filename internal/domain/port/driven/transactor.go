package driven

import "context"

// TxStores exposes the stores bound to a single transaction.
type TxStores interface {
	Credentials() CredentialStore
	Rotations() RotationLedger
}

// Transactor runs fn inside one storage transaction. If fn returns an error
// every write made through tx is rolled back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx TxStores) error) error
}
