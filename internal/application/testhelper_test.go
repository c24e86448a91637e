package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/keyledger/internal/adapter/driven/memory"
	"github.com/ericfisherdev/keyledger/internal/domain/model"
	"github.com/ericfisherdev/keyledger/internal/domain/port/driven"
	"github.com/ericfisherdev/keyledger/internal/keygen"
)

var (
	testTime   = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	testCaller = model.Caller{Origin: "203.0.113.7:5123", ClientID: "curl/8.5", RequestID: "req-1"}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testHasher(t *testing.T) *keygen.Hasher {
	t.Helper()
	h, err := keygen.NewHasherFromSecret([]byte("application-test-secret"))
	require.NoError(t, err)
	return h
}

type testEnv struct {
	svc    *LifecycleService
	store  *memory.Store
	audit  *memory.AuditLog
	hasher *keygen.Hasher
}

// newTestEnv wires a LifecycleService to in-memory adapters with a
// synchronous auditor so audit entries are visible as soon as a call returns.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	audit := memory.NewAuditLog()
	hasher := testHasher(t)

	svc := NewLifecycleService(
		store.Credentials(),
		store,
		NewSyncAuditor(audit, time.Second, discardLogger()),
		hasher,
		0,
		discardLogger(),
	)

	return &testEnv{svc: svc, store: store, audit: audit, hasher: hasher}
}

// entries returns every audit entry in append order.
func (e *testEnv) entries(t *testing.T) []model.AuditEntry {
	t.Helper()
	got, err := e.audit.List(context.Background(), model.AuditFilter{})
	require.NoError(t, err)
	slices.Reverse(got)
	return got
}

func (e *testEnv) lastEntry(t *testing.T) model.AuditEntry {
	t.Helper()
	all := e.entries(t)
	require.NotEmpty(t, all)
	return all[len(all)-1]
}

func (e *testEnv) issue(t *testing.T, owner, label string) *model.IssuedCredential {
	t.Helper()
	issued, err := e.svc.Issue(context.Background(), testCaller, owner, label)
	require.NoError(t, err)
	return issued
}

// --- Mock implementations for failure paths ---

var errBoom = errors.New("disk on fire")

// failingCredentialStore wraps a real store and fails selected operations.
type failingCredentialStore struct {
	driven.CredentialStore
	insertErr error
	findErr   error
	markErr   error
	deleteErr error
	listErr   error
}

func (f *failingCredentialStore) Insert(ctx context.Context, cred model.Credential) (model.Credential, error) {
	if f.insertErr != nil {
		return model.Credential{}, f.insertErr
	}
	return f.CredentialStore.Insert(ctx, cred)
}

func (f *failingCredentialStore) FindByKeyHash(ctx context.Context, hash string) (*model.Credential, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.CredentialStore.FindByKeyHash(ctx, hash)
}

func (f *failingCredentialStore) FindActiveByKeyHash(ctx context.Context, hash string) (*model.Credential, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.CredentialStore.FindActiveByKeyHash(ctx, hash)
}

func (f *failingCredentialStore) MarkUsed(ctx context.Context, id string, at time.Time) error {
	if f.markErr != nil {
		return f.markErr
	}
	return f.CredentialStore.MarkUsed(ctx, id, at)
}

func (f *failingCredentialStore) Delete(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.CredentialStore.Delete(ctx, id)
}

func (f *failingCredentialStore) ListAll(ctx context.Context, limit int) ([]model.Credential, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.CredentialStore.ListAll(ctx, limit)
}

// failingAuditLog rejects every append.
type failingAuditLog struct {
	calls int
}

func (f *failingAuditLog) Append(_ context.Context, _ model.AuditEntry) error {
	f.calls++
	return errBoom
}

func (f *failingAuditLog) List(_ context.Context, _ model.AuditFilter) ([]model.AuditEntry, error) {
	return nil, errBoom
}

// failingTransactor fails every transaction without running it.
type failingTransactor struct{}

func (failingTransactor) WithinTx(_ context.Context, _ func(context.Context, driven.TxStores) error) error {
	return errBoom
}
