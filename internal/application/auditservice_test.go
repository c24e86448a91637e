package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/keyledger/internal/domain/model"
)

func TestAuditService_ListEntries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	issued := env.issue(t, "alice", "billing")
	_, err := env.svc.Validate(ctx, testCaller, issued.Key)
	require.NoError(t, err)
	_, _ = env.svc.Validate(ctx, testCaller, "unknown")

	svc := NewAuditService(env.audit, env.store.Rotations())

	all, err := svc.ListEntries(ctx, model.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	bySubject, err := svc.ListEntries(ctx, model.AuditFilter{SubjectID: issued.Credential.ID})
	require.NoError(t, err)
	assert.Len(t, bySubject, 2)

	failures, err := svc.ListEntries(ctx, model.AuditFilter{Outcome: model.OutcomeFailure})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Nil(t, failures[0].SubjectID)

	limited, err := svc.ListEntries(ctx, model.AuditFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, model.EventValidated, limited[0].EventType)
}

func TestAuditService_RejectsBadFilters(t *testing.T) {
	svc := NewAuditService(&failingAuditLog{}, nil)

	tests := []struct {
		name   string
		filter model.AuditFilter
	}{
		{name: "unknown event", filter: model.AuditFilter{EventType: "exploded"}},
		{name: "unknown outcome", filter: model.AuditFilter{Outcome: "maybe"}},
		{name: "negative limit", filter: model.AuditFilter{Limit: -1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ListEntries(context.Background(), tc.filter)
			var vErr *model.ValidationError
			require.ErrorAs(t, err, &vErr)
		})
	}
}

func TestAuditService_StorageFailure(t *testing.T) {
	svc := NewAuditService(&failingAuditLog{}, nil)

	_, err := svc.ListEntries(context.Background(), model.AuditFilter{})

	var sErr *model.StorageError
	require.ErrorAs(t, err, &sErr)
	assert.ErrorIs(t, err, errBoom)
}

func TestAuditService_ListRotations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.issue(t, "alice", "billing")
	second := env.issue(t, "bob", "search")

	r1, err := env.svc.Rotate(ctx, testCaller, first.Key, "scheduled")
	require.NoError(t, err)
	_, err = env.svc.Rotate(ctx, testCaller, second.Key, "")
	require.NoError(t, err)

	svc := NewAuditService(env.audit, env.store.Rotations())

	all, err := svc.ListRotations(ctx, model.RotationFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "bob", all[0].Owner)

	byReplacement, err := svc.ListRotations(ctx, model.RotationFilter{ReplacementID: r1.Issued.Credential.ID})
	require.NoError(t, err)
	require.Len(t, byReplacement, 1)
	assert.Equal(t, first.Credential.ID, byReplacement[0].RetiredID)
	assert.Equal(t, "scheduled", byReplacement[0].Reason)
}

func TestInspectLimit(t *testing.T) {
	got, err := inspectLimit(0)
	require.NoError(t, err)
	assert.Equal(t, DefaultInspectLimit, got)

	got, err = inspectLimit(maxInspectLimit + 50)
	require.NoError(t, err)
	assert.Equal(t, maxInspectLimit, got)

	got, err = inspectLimit(7)
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}
