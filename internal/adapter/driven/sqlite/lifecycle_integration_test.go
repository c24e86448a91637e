package sqlite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/keyledger/internal/application"
	"github.com/ericfisherdev/keyledger/internal/domain/model"
	"github.com/ericfisherdev/keyledger/internal/keygen"
)

func setupLifecycle(t *testing.T) (*application.LifecycleService, *DB) {
	t.Helper()

	db := setupTestDB(t)
	hasher, err := keygen.NewHasherFromSecret([]byte("sqlite-integration-secret"))
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := application.NewLifecycleService(
		NewCredentialRepo(db),
		NewTransactor(db),
		application.NewSyncAuditor(NewAuditRepo(db), time.Second, logger),
		hasher,
		0,
		logger,
	)
	return svc, db
}

func TestLifecycle_SQLiteRoundTrip(t *testing.T) {
	svc, db := setupLifecycle(t)
	ctx := context.Background()
	caller := model.Caller{Origin: "127.0.0.1:1", ClientID: "test"}

	issued, err := svc.Issue(ctx, caller, "alice", "billing")
	require.NoError(t, err)

	info, err := svc.Validate(ctx, caller, issued.Key)
	require.NoError(t, err)
	require.NotNil(t, info.LastUsedAt)

	rotated, err := svc.Rotate(ctx, caller, issued.Key, "")
	require.NoError(t, err)

	_, err = svc.Validate(ctx, caller, issued.Key)
	var iErr *model.InvalidCredentialError
	require.ErrorAs(t, err, &iErr)

	edges, err := NewRotationRepo(db).List(ctx, model.RotationFilter{})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, issued.Credential.ID, edges[0].RetiredID)
	assert.Equal(t, rotated.Issued.Credential.ID, edges[0].ReplacementID)

	require.NoError(t, svc.Revoke(ctx, caller, rotated.Issued.Key))
	err = svc.Revoke(ctx, caller, rotated.Issued.Key)
	var nErr *model.NotFoundError
	require.ErrorAs(t, err, &nErr)

	creds, err := svc.List(ctx, caller)
	require.NoError(t, err)
	assert.Empty(t, creds)

	// issue, validate, rotate, validate, revoke, revoke, list
	entries, err := NewAuditRepo(db).List(ctx, model.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 7)
}

func TestLifecycle_SQLiteConcurrentRotate(t *testing.T) {
	svc, db := setupLifecycle(t)
	ctx := context.Background()
	caller := model.Caller{Origin: "127.0.0.1:1"}

	issued, err := svc.Issue(ctx, caller, "alice", "billing")
	require.NoError(t, err)

	const callers = 5
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Rotate(ctx, caller, issued.Key, "race")
			var nErr *model.NotFoundError
			if err != nil && !errors.As(err, &nErr) {
				t.Errorf("unexpected rotate error: %v", err)
			}
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)

	edges, err := NewRotationRepo(db).List(ctx, model.RotationFilter{})
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}
