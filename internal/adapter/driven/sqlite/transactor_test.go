package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/keyledger/internal/domain/model"
	"github.com/ericfisherdev/keyledger/internal/domain/port/driven"
)

func TestTransactor_Commit(t *testing.T) {
	db := setupTestDB(t)
	txr := NewTransactor(db)
	creds := NewCredentialRepo(db)
	rots := NewRotationRepo(db)
	ctx := context.Background()

	_, err := creds.Insert(ctx, makeCredential("old", "hash-0001", testTime))
	require.NoError(t, err)

	err = txr.WithinTx(ctx, func(ctx context.Context, tx driven.TxStores) error {
		if _, err := tx.Credentials().Insert(ctx, makeCredential("new", "hash-0002", testTime)); err != nil {
			return err
		}
		if err := tx.Rotations().Record(ctx, makeEdge("old", "new", testTime)); err != nil {
			return err
		}
		return tx.Credentials().Delete(ctx, "old")
	})
	require.NoError(t, err)

	old, err := creds.GetByID(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, old)

	replacement, err := creds.GetByID(ctx, "new")
	require.NoError(t, err)
	assert.NotNil(t, replacement)

	edges, err := rots.List(ctx, model.RotationFilter{})
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestTransactor_RollbackOnError(t *testing.T) {
	db := setupTestDB(t)
	txr := NewTransactor(db)
	creds := NewCredentialRepo(db)
	rots := NewRotationRepo(db)
	ctx := context.Background()

	errBoom := errors.New("boom")
	err := txr.WithinTx(ctx, func(ctx context.Context, tx driven.TxStores) error {
		if _, err := tx.Credentials().Insert(ctx, makeCredential("new", "hash-0002", testTime)); err != nil {
			return err
		}
		if err := tx.Rotations().Record(ctx, makeEdge("old", "new", testTime)); err != nil {
			return err
		}
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	replacement, err := creds.GetByID(ctx, "new")
	require.NoError(t, err)
	assert.Nil(t, replacement, "insert must be rolled back")

	edges, err := rots.List(ctx, model.RotationFilter{})
	require.NoError(t, err)
	assert.Empty(t, edges, "edge must be rolled back")
}
